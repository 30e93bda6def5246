package events

import (
	"encoding/json"
	"fmt"

	"noeta/internal/term"
)

// jsonTerm is the wire representation of a term.Term: its canonical KIF
// text. Encoding/decoding terms as opaque structs (rather than via
// reflection over internal/term) keeps the round-trip invariant of
// spec.md §6.2 explicit and is the only shape JSON can express without
// leaking the unexported Term internals — grounded on the design note in
// spec.md §9 rejecting reflection-based envelope serialization.
type jsonTerm string

func encodeTerm(t term.Term) jsonTerm { return jsonTerm(term.KIF(t)) }

func decodeTerm(j jsonTerm) (term.Term, error) {
	if j == "" {
		return term.Term{}, nil
	}
	return term.Parse(string(j))
}

type jsonAssertion struct {
	ID               string   `json:"id"`
	Kif              jsonTerm `json:"kif"`
	Priority         float64  `json:"priority"`
	Timestamp        int64    `json:"timestamp"`
	SourceID         string   `json:"sourceId"`
	SourceNoteID     string   `json:"sourceNoteId,omitempty"`
	JustificationIDs []string `json:"justificationIds,omitempty"`
	Type             string   `json:"type"`
	QuantifiedVars   []string `json:"quantifiedVars,omitempty"`
	DerivationDepth  int      `json:"derivationDepth"`
	IsActive         bool     `json:"isActive"`
	KB               string   `json:"kb"`
}

func (a Assertion) toJSON() jsonAssertion {
	return jsonAssertion{
		ID: a.ID, Kif: encodeTerm(a.Kif), Priority: a.Priority, Timestamp: a.Timestamp,
		SourceID: a.SourceID, SourceNoteID: a.SourceNoteID, JustificationIDs: a.JustificationIDs,
		Type: string(a.Type), QuantifiedVars: a.QuantifiedVars, DerivationDepth: a.DerivationDepth,
		IsActive: a.IsActive, KB: a.KB,
	}
}

func (j jsonAssertion) toAssertion() (Assertion, error) {
	kif, err := decodeTerm(j.Kif)
	if err != nil {
		return Assertion{}, err
	}
	return Assertion{
		ID: j.ID, Kif: kif, Priority: j.Priority, Timestamp: j.Timestamp,
		SourceID: j.SourceID, SourceNoteID: j.SourceNoteID, JustificationIDs: j.JustificationIDs,
		Type: AssertionType(j.Type), QuantifiedVars: j.QuantifiedVars, DerivationDepth: j.DerivationDepth,
		IsActive: j.IsActive, KB: j.KB,
	}, nil
}

// wireEnvelope is the flattened, type-tagged JSON shape transported over
// the wire (spec.md §6.2): {"eventType": "...", ...payload fields}.
type wireEnvelope struct {
	EventType Type   `json:"eventType"`
	ContextID string `json:"contextId,omitempty"`

	Asserted *jsonAssertion `json:"asserted,omitempty"`

	RetractedAssertionID string `json:"retractedAssertionId,omitempty"`
	RetractedReason      string `json:"retractedReason,omitempty"`

	EvictedAssertionID string `json:"evictedAssertionId,omitempty"`
	EvictedReason      string `json:"evictedReason,omitempty"`

	StateAssertionID string `json:"stateAssertionId,omitempty"`
	StateIsActive    bool   `json:"stateIsActive,omitempty"`

	RuleID string `json:"ruleId,omitempty"`

	InputKif      jsonTerm `json:"inputKif,omitempty"`
	InputSourceID string   `json:"inputSourceId,omitempty"`

	RetractKind   RetractKind `json:"retractKind,omitempty"`
	RetractTarget string      `json:"retractTarget,omitempty"`

	ContradictionAssertionID string `json:"contradictionAssertionId,omitempty"`
	ContradictionOtherID     string `json:"contradictionOtherId,omitempty"`
	ContradictionResolvedBy  string `json:"contradictionResolvedBy,omitempty"`

	AnswerQueryID  string             `json:"answerQueryId,omitempty"`
	AnswerBindings []map[string]string `json:"answerBindings,omitempty"`
	AnswerStatus   AnswerStatus       `json:"answerStatus,omitempty"`

	QueryID     string    `json:"queryId,omitempty"`
	QueryType   QueryType `json:"queryType,omitempty"`
	QueryKif    jsonTerm  `json:"queryKif,omitempty"`
	QueryTarget string    `json:"queryTarget,omitempty"`

	TaskID     string `json:"taskId,omitempty"`
	TaskStatus string `json:"taskStatus,omitempty"`
	TaskDetail string `json:"taskDetail,omitempty"`

	StatusReason string `json:"statusReason,omitempty"`
	StatusFatal  bool   `json:"statusFatal,omitempty"`

	DialogueID     string   `json:"dialogueId,omitempty"`
	DialoguePrompt string   `json:"dialoguePrompt,omitempty"`
	DialogueResp   jsonTerm `json:"dialogueResponse,omitempty"`
}

// Marshal serializes e to its JSON wire form (spec.md §6.2).
func Marshal(e Event) ([]byte, error) {
	w := wireEnvelope{EventType: e.Type, ContextID: e.ContextID}
	switch e.Type {
	case TypeAsserted:
		j := e.Asserted.toJSON()
		w.Asserted = &j
	case TypeRetracted:
		w.RetractedAssertionID = e.Retracted.AssertionID
		w.RetractedReason = e.Retracted.Reason
	case TypeAssertionEvicted:
		w.EvictedAssertionID = e.AssertionEvicted.AssertionID
		w.EvictedReason = e.AssertionEvicted.Reason
	case TypeAssertionState:
		w.StateAssertionID = e.AssertionState.AssertionID
		w.StateIsActive = e.AssertionState.IsActive
	case TypeRuleAdded:
		w.RuleID = e.RuleAdded.RuleID
	case TypeRuleRemoved:
		w.RuleID = e.RuleRemoved.RuleID
	case TypeExternalInput:
		w.InputKif = encodeTerm(e.ExternalInput.Kif)
		w.InputSourceID = e.ExternalInput.SourceID
	case TypeRetractionRequest:
		w.RetractKind = e.RetractionRequest.Kind
		w.RetractTarget = e.RetractionRequest.Target
	case TypeContradictionDetected:
		w.ContradictionAssertionID = e.ContradictionDetected.AssertionID
		w.ContradictionOtherID = e.ContradictionDetected.OtherID
		w.ContradictionResolvedBy = e.ContradictionDetected.ResolvedBy
	case TypeAnswer:
		w.AnswerQueryID = e.Answer.QueryID
		w.AnswerStatus = e.Answer.Status
		for _, b := range e.Answer.Bindings {
			row := make(map[string]string, len(b))
			for k, v := range b {
				row[k] = term.KIF(v)
			}
			w.AnswerBindings = append(w.AnswerBindings, row)
		}
	case TypeQuery:
		w.QueryID = e.Query.QueryID
		w.QueryType = e.Query.QueryType
		w.QueryKif = encodeTerm(e.Query.Pattern)
		w.QueryTarget = e.Query.TargetKbID
	case TypeTaskUpdate:
		w.TaskID = e.TaskUpdate.TaskID
		w.TaskStatus = e.TaskUpdate.Status
		w.TaskDetail = e.TaskUpdate.Detail
	case TypeSystemStatus:
		w.StatusReason = e.SystemStatus.Reason
		w.StatusFatal = e.SystemStatus.Fatal
	case TypeDialogueRequest:
		w.DialogueID = e.DialogueRequest.DialogueID
		w.DialoguePrompt = e.DialogueRequest.Prompt
	case TypeDialogueResponse:
		w.DialogueID = e.DialogueResponse.DialogueID
		w.DialogueResp = encodeTerm(e.DialogueResponse.Response)
	default:
		return nil, fmt.Errorf("events: unknown event type %q", e.Type)
	}
	return json.Marshal(w)
}

// Unmarshal parses a JSON wire form back into an Event (spec.md §6.2).
func Unmarshal(data []byte) (Event, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, err
	}
	e := Event{Type: w.EventType, ContextID: w.ContextID}
	switch w.EventType {
	case TypeAsserted:
		if w.Asserted == nil {
			return Event{}, fmt.Errorf("events: Asserted missing payload")
		}
		a, err := w.Asserted.toAssertion()
		if err != nil {
			return Event{}, err
		}
		e.Asserted = &a
	case TypeRetracted:
		e.Retracted = &RetractedPayload{AssertionID: w.RetractedAssertionID, Reason: w.RetractedReason}
	case TypeAssertionEvicted:
		e.AssertionEvicted = &AssertionEvictedPayload{AssertionID: w.EvictedAssertionID, Reason: w.EvictedReason}
	case TypeAssertionState:
		e.AssertionState = &AssertionStatePayload{AssertionID: w.StateAssertionID, IsActive: w.StateIsActive}
	case TypeRuleAdded:
		e.RuleAdded = &RulePayload{RuleID: w.RuleID}
	case TypeRuleRemoved:
		e.RuleRemoved = &RulePayload{RuleID: w.RuleID}
	case TypeExternalInput:
		kif, err := decodeTerm(w.InputKif)
		if err != nil {
			return Event{}, err
		}
		e.ExternalInput = &ExternalInputPayload{Kif: kif, SourceID: w.InputSourceID}
	case TypeRetractionRequest:
		e.RetractionRequest = &RetractionRequestPayload{Kind: w.RetractKind, Target: w.RetractTarget}
	case TypeContradictionDetected:
		e.ContradictionDetected = &ContradictionPayload{
			AssertionID: w.ContradictionAssertionID, OtherID: w.ContradictionOtherID, ResolvedBy: w.ContradictionResolvedBy,
		}
	case TypeAnswer:
		p := &AnswerPayload{QueryID: w.AnswerQueryID, Status: w.AnswerStatus}
		for _, row := range w.AnswerBindings {
			decoded := make(map[string]term.Term, len(row))
			for k, v := range row {
				tm, err := term.Parse(v)
				if err != nil {
					return Event{}, err
				}
				decoded[k] = tm
			}
			p.Bindings = append(p.Bindings, decoded)
		}
		e.Answer = p
	case TypeQuery:
		pattern, err := decodeTerm(w.QueryKif)
		if err != nil {
			return Event{}, err
		}
		e.Query = &QueryPayload{QueryID: w.QueryID, QueryType: w.QueryType, Pattern: pattern, TargetKbID: w.QueryTarget}
	case TypeTaskUpdate:
		e.TaskUpdate = &TaskUpdatePayload{TaskID: w.TaskID, Status: w.TaskStatus, Detail: w.TaskDetail}
	case TypeSystemStatus:
		e.SystemStatus = &SystemStatusPayload{Reason: w.StatusReason, Fatal: w.StatusFatal}
	case TypeDialogueRequest:
		e.DialogueRequest = &DialogueRequestPayload{DialogueID: w.DialogueID, Prompt: w.DialoguePrompt}
	case TypeDialogueResponse:
		resp, err := decodeTerm(w.DialogueResp)
		if err != nil {
			return Event{}, err
		}
		e.DialogueResponse = &DialogueResponsePayload{DialogueID: w.DialogueID, Response: resp}
	default:
		return Event{}, fmt.Errorf("events: unknown event type %q", w.EventType)
	}
	return e, nil
}
