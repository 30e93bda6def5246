// Package events defines the bus-level event envelope types shared by the
// event bus, reasoners, TMS, and the external transport (spec.md §3.6,
// §6.2).
package events

import "noeta/internal/term"

// Type tags an event's payload shape, used both for bus dispatch and as
// the wire "eventType" discriminator (spec.md §6.2).
type Type string

const (
	TypeAsserted            Type = "Asserted"
	TypeRetracted            Type = "Retracted"
	TypeAssertionEvicted     Type = "AssertionEvicted"
	TypeAssertionState       Type = "AssertionState"
	TypeRuleAdded            Type = "RuleAdded"
	TypeRuleRemoved          Type = "RuleRemoved"
	TypeExternalInput        Type = "ExternalInput"
	TypeRetractionRequest    Type = "RetractionRequest"
	TypeContradictionDetected Type = "ContradictionDetected"
	TypeAnswer               Type = "Answer"
	TypeQuery                Type = "Query"
	TypeTaskUpdate           Type = "TaskUpdate"
	TypeSystemStatus         Type = "SystemStatus"
	TypeDialogueRequest      Type = "DialogueRequest"
	TypeDialogueResponse     Type = "DialogueResponse"
)

// AssertionType mirrors spec.md §3.2's Assertion.type.
type AssertionType string

const (
	Ground      AssertionType = "GROUND"
	Universal   AssertionType = "UNIVERSAL"
	Skolemized  AssertionType = "SKOLEMIZED"
	Negation    AssertionType = "NEGATION"
)

// RetractKind mirrors spec.md §6.3's retract.type.
type RetractKind string

const (
	ByID   RetractKind = "BY_ID"
	ByKIF  RetractKind = "BY_KIF"
	ByNote RetractKind = "BY_NOTE"
)

// QueryType mirrors spec.md §4.6.4 / §4.7.
type QueryType string

const (
	AskBindings QueryType = "ASK_BINDINGS"
	AskTrueFalse QueryType = "ASK_TRUE_FALSE"
	AchieveGoal  QueryType = "ACHIEVE_GOAL"
)

// AnswerStatus mirrors spec.md §4.6.4.
type AnswerStatus string

const (
	StatusSuccess AnswerStatus = "SUCCESS"
	StatusFailure AnswerStatus = "FAILURE"
	StatusTimeout AnswerStatus = "TIMEOUT"
	StatusError   AnswerStatus = "ERROR"
)

// Assertion is the wire/event-carried shape of spec.md §3.2's Assertion
// record. The reasoning packages (kb/tms) hold their own richer internal
// struct; this is the snapshot handed to events/transport/persistence.
type Assertion struct {
	ID               string
	Kif              term.Term
	Priority         float64
	Timestamp        int64
	SourceID         string
	SourceNoteID     string // "" means global
	JustificationIDs []string
	Type             AssertionType
	QuantifiedVars   []string
	DerivationDepth  int
	IsActive         bool
	KB               string
}

// Event is the tagged-variant envelope. Exactly one payload field is set,
// selected by Type, mirroring spec.md §3.6 / §6.2. Unused pointer fields
// stay nil; JSON serialization is handled in internal/events/codec.go.
type Event struct {
	Type      Type
	ContextID string

	Asserted            *Assertion
	Retracted            *RetractedPayload
	AssertionEvicted     *AssertionEvictedPayload
	AssertionState       *AssertionStatePayload
	RuleAdded            *RulePayload
	RuleRemoved          *RulePayload
	ExternalInput        *ExternalInputPayload
	RetractionRequest    *RetractionRequestPayload
	ContradictionDetected *ContradictionPayload
	Answer               *AnswerPayload
	Query                *QueryPayload
	TaskUpdate           *TaskUpdatePayload
	SystemStatus         *SystemStatusPayload
	DialogueRequest      *DialogueRequestPayload
	DialogueResponse     *DialogueResponsePayload
}

type RetractedPayload struct {
	AssertionID string
	Reason      string
}

type AssertionEvictedPayload struct {
	AssertionID string
	Reason      string
}

type AssertionStatePayload struct {
	AssertionID string
	IsActive    bool
}

type RulePayload struct {
	RuleID string
}

type ExternalInputPayload struct {
	Kif      term.Term
	SourceID string
}

type RetractionRequestPayload struct {
	Kind   RetractKind
	Target string
}

type ContradictionPayload struct {
	AssertionID  string
	OtherID      string
	ResolvedBy   string // which id was deactivated, "" if both/none
}

type AnswerPayload struct {
	QueryID  string
	Bindings []map[string]term.Term
	Status   AnswerStatus
}

type QueryPayload struct {
	QueryID      string
	QueryType    QueryType
	Pattern      term.Term
	TargetKbID   string
}

type TaskUpdatePayload struct {
	TaskID string
	Status string
	Detail string
}

type SystemStatusPayload struct {
	Reason string
	Fatal  bool
}

type DialogueRequestPayload struct {
	DialogueID string
	Prompt     string
}

type DialogueResponsePayload struct {
	DialogueID string
	Response   term.Term
}
