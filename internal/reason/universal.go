package reason

import (
	"noeta/internal/events"
	"noeta/internal/term"
	"noeta/internal/unify"
)

// universalEntry is one registered UNIVERSAL assertion, indexed by its
// body's head operator for quick candidate lookup (spec.md §4.6.3).
type universalEntry struct {
	assertion *events.Assertion
	body      term.Term
}

// onAssertedUniversal implements universal instantiation (spec.md
// §4.6.3): UNIVERSAL assertions register themselves against a pattern
// index keyed by body shape; ground facts that unify with a registered
// body instantiate it.
func (e *Engine) onAssertedUniversal(ev events.Event) {
	if ev.Asserted == nil {
		return
	}
	a := ev.Asserted

	if a.Type == events.Universal {
		e.registerUniversal(a)
		return
	}
	if a.Type != events.Ground {
		return
	}

	e.univMu.Lock()
	entries := append([]*universalEntry(nil), e.univByHead[a.Kif.Head()]...)
	e.univMu.Unlock()

	for _, u := range entries {
		if θ, ok := unify.Unify(u.body, a.Kif, unify.Bindings{}); ok {
			ground := unify.Subst(u.body, θ)
			e.deriveAndCommit(a.KB, ground, []*events.Assertion{u.assertion, a}, "reasoner:ui", events.Ground, nil)
		}
	}
}

// registerUniversal indexes a UNIVERSAL assertion of the form
// (forall (?v1 ?v2 ...) body) by body's head operator.
func (e *Engine) registerUniversal(a *events.Assertion) {
	if !a.Kif.IsLst() || a.Kif.Arity() != 3 {
		return
	}
	body := a.Kif.Child(2)
	head := body.Head()

	e.univMu.Lock()
	e.univByHead[head] = append(e.univByHead[head], &universalEntry{assertion: a, body: body})
	e.univMu.Unlock()
}
