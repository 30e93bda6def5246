// Package persistence implements the state-snapshot codec of spec.md
// §6.4: three arrays (notes, active assertions, rules) plus a
// configuration object, reversible and rejecting unknown fields.
// Grounded on the teacher's internal/store package's "migrations on open,
// single schema owner" discipline (not copied verbatim — that package
// manages a much larger multi-table schema unrelated to this single
// snapshot shape); the pure-Go modernc.org/sqlite driver choice carries
// over for SQLiteStore.
package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"noeta/internal/config"
	"noeta/internal/events"
	"noeta/internal/notes"
	"noeta/internal/rulestore"
	"noeta/internal/term"
)

// NoteRecord is notes.Note's on-disk shape.
type NoteRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// AssertionRecord is events.Assertion's on-disk shape: Kif is stored as
// its canonical KIF text (spec.md §4.1's round-trip invariant) rather
// than a structural encoding, since term.Term has no JSON form of its
// own.
type AssertionRecord struct {
	ID               string   `json:"id"`
	Kif              string   `json:"kif"`
	Priority         float64  `json:"priority"`
	Timestamp        int64    `json:"timestamp"`
	SourceID         string   `json:"sourceId"`
	SourceNoteID     string   `json:"sourceNoteId"`
	JustificationIDs []string `json:"justificationIds"`
	Type             string   `json:"type"`
	QuantifiedVars   []string `json:"quantifiedVars,omitempty"`
	DerivationDepth  int      `json:"derivationDepth"`
	KB               string   `json:"kb"`
}

// RuleRecord is rulestore.Rule's on-disk shape: only the original Form is
// stored; Antecedent/Consequent/Kind are re-derived by re-registering the
// form through AddFromForm on load.
type RuleRecord struct {
	ID           string  `json:"id"`
	Form         string  `json:"form"`
	Priority     float64 `json:"priority"`
	SourceNoteID string  `json:"sourceNoteId"`
}

// Snapshot is the full persisted state (spec.md §6.4).
type Snapshot struct {
	Notes       []NoteRecord      `json:"notes"`
	Assertions  []AssertionRecord `json:"assertions"`
	Rules       []RuleRecord      `json:"rules"`
	Config      config.Config     `json:"config"`
}

// BuildSnapshot assembles a Snapshot from live in-memory state. allAssertions
// should be every active assertion across every context KB (the caller,
// Cognition, is in the best position to enumerate its kbs map).
func BuildSnapshot(noteStore *notes.Store, allAssertions []*events.Assertion, allRules []*rulestore.Rule, cfg config.Config) Snapshot {
	snap := Snapshot{Config: cfg}

	for _, n := range noteStore.All() {
		snap.Notes = append(snap.Notes, NoteRecord{ID: n.ID, Title: n.Title, Text: n.Text, Status: string(n.Status)})
	}
	for _, a := range allAssertions {
		snap.Assertions = append(snap.Assertions, AssertionRecord{
			ID: a.ID, Kif: term.KIF(a.Kif), Priority: a.Priority, Timestamp: a.Timestamp,
			SourceID: a.SourceID, SourceNoteID: a.SourceNoteID, JustificationIDs: a.JustificationIDs,
			Type: string(a.Type), QuantifiedVars: a.QuantifiedVars, DerivationDepth: a.DerivationDepth, KB: a.KB,
		})
	}
	for _, r := range allRules {
		snap.Rules = append(snap.Rules, RuleRecord{ID: r.ID, Form: term.KIF(r.Form), Priority: r.Priority, SourceNoteID: r.SourceNoteID})
	}
	return snap
}

// Codec persists and loads a Snapshot. JSONFileStore and SQLiteStore both
// implement it.
type Codec interface {
	Save(Snapshot) error
	Load() (Snapshot, error)
}

// JSONFileStore is the default Codec: one JSON file holding the whole
// snapshot.
type JSONFileStore struct {
	Path string
}

func NewJSONFileStore(path string) *JSONFileStore { return &JSONFileStore{Path: path} }

func (s *JSONFileStore) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	return os.WriteFile(s.Path, data, 0644)
}

// Load decodes the snapshot, rejecting unknown fields (spec.md §6.4's
// "the codec must be reversible and reject unknown fields").
func (s *JSONFileStore) Load() (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("persistence: read snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return snap, fmt.Errorf("persistence: decode snapshot: %w", err)
	}
	return snap, nil
}
