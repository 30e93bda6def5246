// Package notes implements the minimal note record of SPEC_FULL.md §4.15:
// each note owns exactly one KB context and is otherwise opaque to the
// reasoning core. Grounded on spec.md §3.2's sourceNoteId field and
// internal/cognition.Cognition.Retract's BY_NOTE semantics — there is no
// teacher file to adapt directly since the teacher's notes are full
// TUI-editable documents, out of scope here (spec.md §1's "note text
// editing semantics" non-goal).
package notes

import (
	"sync"

	"github.com/google/uuid"

	"noeta/internal/kb"
)

// Status is a note's lifecycle state.
type Status string

const (
	StatusOpen     Status = "open"
	StatusArchived Status = "archived"
)

// Note is the minimal record the core needs: identity, display text, and
// the lifecycle flag that governs whether its context still accepts input.
type Note struct {
	ID     string
	Title  string
	Text   string
	Status Status
}

// ContextID returns the KB context id this note owns (spec.md §3.4's
// per-note context naming convention).
func (n Note) ContextID() string {
	if n.ID == kb.GlobalContextID {
		return n.ID
	}
	return "kb://note/" + n.ID
}

// Store is an in-memory registry of notes, independent of persistence
// (which snapshots it — see internal/persistence).
type Store struct {
	mu    sync.RWMutex
	notes map[string]*Note
}

func NewStore() *Store { return &Store{notes: make(map[string]*Note)} }

// Create allocates a new open note and returns it.
func (s *Store) Create(title, text string) *Note {
	n := &Note{ID: uuid.NewString(), Title: title, Text: text, Status: StatusOpen}
	s.mu.Lock()
	s.notes[n.ID] = n
	s.mu.Unlock()
	return n
}

// Put installs n verbatim, used when replaying a persisted snapshot
// (preserving the original id).
func (s *Store) Put(n *Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = n
}

func (s *Store) Get(id string) (*Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	return n, ok
}

// Archive flips a note's status without deleting it or its KB context.
func (s *Store) Archive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return false
	}
	n.Status = StatusArchived
	return true
}

// Delete removes the note record itself. Callers are responsible for
// calling Cognition.Retract(..., BY_NOTE, ...) first to tear down its KB.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
}

// All returns every note, for persistence snapshots.
func (s *Store) All() []*Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Note, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, n)
	}
	return out
}
