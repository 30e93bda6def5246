// Package tms implements the truth maintenance system: the justification
// graph, active/retracted propagation, and contradiction detection
// against explicit negation (spec.md §3.5, §4.4). Grounded on the
// teacher's reverse-index retraction fan-out in
// internal/mangle/engine.go's fileFacts map, generalized from "facts for
// one file" to "assertions justified by one parent."
package tms

import (
	"sync"

	"noeta/internal/events"
	"noeta/internal/kb"
	"noeta/internal/term"
)

// ContradictionPolicy selects how checkContradiction resolves a detected
// pair (spec.md §4.4).
type ContradictionPolicy string

const (
	PreferOld ContradictionPolicy = "prefer_old"
	PreferNew ContradictionPolicy = "prefer_new"
	FlagBoth  ContradictionPolicy = "flag_both"
)

// KBLookup is the narrow view of the owning Cognition facade's
// per-context KBs the TMS needs to find an assertion's negation partner.
type KBLookup interface {
	KBFor(contextID string) (*kb.KB, bool)
}

// Emitter is the narrow bus dependency the TMS needs.
type Emitter interface {
	Emit(events.Event)
}

// TMS owns the justification graph described in spec.md §3.5.
type TMS struct {
	mu     sync.Mutex
	policy ContradictionPolicy

	justifiers map[string][][]string // assertion id -> list of justification sets (parent ids)
	justifiees map[string]map[string]bool // parent id -> set of dependent assertion ids
	assertions map[string]*events.Assertion
	kbs        KBLookup
	emitter    Emitter
}

// SetPolicy changes the contradiction-resolution policy applied to
// contradictions detected from this point on; assertions already
// resolved under the old policy are untouched.
func (tm *TMS) SetPolicy(policy ContradictionPolicy) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.policy = policy
}

// New creates a TMS using policy (defaults to PreferOld if empty).
func New(policy ContradictionPolicy, kbs KBLookup, emitter Emitter) *TMS {
	if policy == "" {
		policy = PreferOld
	}
	return &TMS{
		policy:     policy,
		justifiers: make(map[string][][]string),
		justifiees: make(map[string]map[string]bool),
		assertions: make(map[string]*events.Assertion),
		kbs:        kbs,
		emitter:    emitter,
	}
}

// Record registers a with one justification set (its parent ids). Input
// facts pass an empty justification slice. On record, contradiction is
// checked; if none blocks activation, a.IsActive becomes true and an
// AssertionState event fires (spec.md §4.4 point 1).
func (tm *TMS) Record(a *events.Assertion, justification []string) {
	tm.mu.Lock()
	tm.assertions[a.ID] = a
	if justification == nil {
		justification = []string{}
	}
	tm.justifiers[a.ID] = append(tm.justifiers[a.ID], justification)
	for _, p := range justification {
		set, ok := tm.justifiees[p]
		if !ok {
			set = make(map[string]bool)
			tm.justifiees[p] = set
		}
		set[a.ID] = true
	}
	tm.mu.Unlock()

	wasActive := a.IsActive
	active := tm.computeActiveLocked(a.ID)
	a.IsActive = active
	if active {
		tm.checkContradiction(a)
	}
	if a.IsActive != wasActive {
		tm.emitState(a)
	}
}

func (tm *TMS) computeActiveLocked(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	sets := tm.justifiers[id]
	if len(sets) == 0 {
		return true // input fact
	}
	for _, set := range sets {
		if tm.allActiveLocked(set) {
			return true
		}
	}
	return false
}

func (tm *TMS) allActiveLocked(ids []string) bool {
	for _, id := range ids {
		a, ok := tm.assertions[id]
		if !ok || !a.IsActive {
			return false
		}
	}
	return true
}

func (tm *TMS) emitState(a *events.Assertion) {
	if tm.emitter == nil {
		return
	}
	tm.emitter.Emit(events.Event{
		Type: events.TypeAssertionState, ContextID: a.KB,
		AssertionState: &events.AssertionStatePayload{AssertionID: a.ID, IsActive: a.IsActive},
	})
}

// HasActiveDependents implements kb.DependencyChecker: whether any active
// assertion's justification set includes id.
func (tm *TMS) HasActiveDependents(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for dep := range tm.justifiees[id] {
		if a, ok := tm.assertions[dep]; ok && a.IsActive {
			return true
		}
	}
	return false
}

// JustifiesActiveUniversal implements kb.DependencyChecker (spec.md §9's
// open-question resolution: forbid evicting a justifier of an active
// UNIVERSAL assertion).
func (tm *TMS) JustifiesActiveUniversal(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for dep := range tm.justifiees[id] {
		a, ok := tm.assertions[dep]
		if ok && a.IsActive && a.Type == events.Universal {
			return true
		}
	}
	return false
}

// Retract marks id inactive and cascades: for each x in justifiees[id],
// if no remaining justification set of x is fully active, x is retracted
// too (depth-first, cycle-safe via a visited set) (spec.md §4.4 point 2,
// §8 property 6).
func (tm *TMS) Retract(id, reason string) {
	visited := make(map[string]bool)
	tm.retractRec(id, reason, visited)
}

func (tm *TMS) retractRec(id, reason string, visited map[string]bool) {
	if visited[id] {
		return
	}
	visited[id] = true

	tm.mu.Lock()
	a, ok := tm.assertions[id]
	if !ok || !a.IsActive {
		tm.mu.Unlock()
		return
	}
	a.IsActive = false
	dependents := make([]string, 0, len(tm.justifiees[id]))
	for dep := range tm.justifiees[id] {
		dependents = append(dependents, dep)
	}
	tm.mu.Unlock()

	tm.emitRetracted(a, reason)
	if kbHandle, ok := tm.kbHandleFor(a); ok {
		_ = kbHandle.Remove(a.ID, reason)
	}

	for _, dep := range dependents {
		if tm.stillJustified(dep) {
			continue
		}
		tm.retractRec(dep, "justification collapsed", visited)
	}
}

func (tm *TMS) stillJustified(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	sets := tm.justifiers[id]
	for _, set := range sets {
		if tm.allActiveLocked(set) {
			return true
		}
	}
	return len(sets) == 0
}

func (tm *TMS) kbHandleFor(a *events.Assertion) (*kb.KB, bool) {
	if tm.kbs == nil {
		return nil, false
	}
	return tm.kbs.KBFor(a.KB)
}

func (tm *TMS) emitRetracted(a *events.Assertion, reason string) {
	if tm.emitter == nil {
		return
	}
	tm.emitter.Emit(events.Event{
		Type: events.TypeRetracted, ContextID: a.KB,
		Retracted: &events.RetractedPayload{AssertionID: a.ID, Reason: reason},
	})
}

// checkContradiction looks for an active assertion whose kif is the
// explicit negation of a.kif (or vice versa) in a's KB, and resolves per
// policy (spec.md §4.4 point 3).
func (tm *TMS) checkContradiction(a *events.Assertion) {
	if tm.kbs == nil {
		return
	}
	store, ok := tm.kbs.KBFor(a.KB)
	if !ok {
		return
	}
	negated := negate(a.Kif)
	for _, cand := range store.Drain() {
		if cand.ID == a.ID || !cand.IsActive {
			continue
		}
		if cand.Kif.Equal(negated) || negate(cand.Kif).Equal(a.Kif) {
			tm.resolveContradiction(a, cand)
			return
		}
	}
}

func negate(t term.Term) term.Term {
	return term.Lst(term.Atom("not"), t)
}

func (tm *TMS) resolveContradiction(a, other *events.Assertion) {
	resolvedBy := ""
	switch tm.policy {
	case PreferNew:
		tm.deactivate(other, "contradiction:prefer_new")
		resolvedBy = other.ID
	case FlagBoth:
		tm.deactivate(a, "contradiction:flag_both")
		tm.deactivate(other, "contradiction:flag_both")
		resolvedBy = ""
	default: // PreferOld
		tm.deactivate(a, "contradiction:prefer_old")
		resolvedBy = a.ID
	}
	if tm.emitter != nil {
		tm.emitter.Emit(events.Event{
			Type: events.TypeContradictionDetected, ContextID: a.KB,
			ContradictionDetected: &events.ContradictionPayload{AssertionID: a.ID, OtherID: other.ID, ResolvedBy: resolvedBy},
		})
	}
}

func (tm *TMS) deactivate(a *events.Assertion, reason string) {
	tm.mu.Lock()
	a.IsActive = false
	tm.mu.Unlock()
	tm.emitRetracted(a, reason)
	if store, ok := tm.kbHandleFor(a); ok {
		_ = store.Remove(a.ID, reason)
	}
}
