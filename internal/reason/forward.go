package reason

import (
	"noeta/internal/events"
	"noeta/internal/rulestore"
	"noeta/internal/unify"
)

// partialMatch tracks, for one conjunctive rule, which conjuncts have been
// satisfied so far and by which assertions, mirroring a RETE β-memory row
// (spec.md §4.6.1).
type partialMatch struct {
	mask     []bool
	bindings unify.Bindings
	parents  []*events.Assertion // aligned with mask; nil where mask[i] is false
}

func allTrue(mask []bool) bool {
	for _, v := range mask {
		if !v {
			return false
		}
	}
	return true
}

func overlaps(a, b []bool) bool {
	for i := range a {
		if a[i] && b[i] {
			return true
		}
	}
	return false
}

// mergeBindings combines two binding sets, failing if they disagree on a
// shared variable. Partial matches only ever bind ground terms in
// practice, so equality is a sufficient reconciliation check.
func mergeBindings(a, b unify.Bindings) (unify.Bindings, bool) {
	merged := a.Clone()
	for k, v := range b {
		if existing, ok := merged[k]; ok {
			if !existing.Equal(v) {
				return nil, false
			}
			continue
		}
		merged[k] = v
	}
	return merged, true
}

func orMask(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] || b[i]
	}
	return out
}

func mergeParents(a, b []*events.Assertion) []*events.Assertion {
	out := make([]*events.Assertion, len(a))
	for i := range a {
		if a[i] != nil {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return out
}

// onAssertedForward is the non-conjunctive half of forward chaining
// (spec.md §4.6.1): a plain-antecedent rule fires whenever its antecedent
// unifies with the newly asserted kif.
func (e *Engine) onAssertedForward(ev events.Event) {
	if ev.Asserted == nil {
		return
	}
	a := ev.Asserted

	for _, r := range e.rules.RulesMatchingHead(a.Kif.Head()) {
		if r.Kind != rulestore.KindImplication || (r.Antecedent.IsLst() && r.Antecedent.Head() == "and") {
			continue
		}
		if θ, ok := unify.Unify(r.Antecedent, a.Kif, unify.Bindings{}); ok {
			consequent := unify.Subst(r.Consequent, θ)
			e.deriveAndCommit(a.KB, consequent, []*events.Assertion{a}, "reasoner:fc", events.Ground, nil)
		}
	}

	e.forwardConjunctive(a)
}

// forwardConjunctive extends or completes partial matches for every
// conjunctive rule against the newly asserted fact (spec.md §4.6.1's
// RETE-style partial-match table).
func (e *Engine) forwardConjunctive(a *events.Assertion) {
	for _, r := range e.rules.ConjunctiveRules() {
		conjuncts := r.Antecedent.Children()[1:]
		n := len(conjuncts)

		var singles []*partialMatch
		for i, c := range conjuncts {
			θ, ok := unify.Unify(c, a.Kif, unify.Bindings{})
			if !ok {
				continue
			}
			mask := make([]bool, n)
			parents := make([]*events.Assertion, n)
			mask[i] = true
			parents[i] = a
			singles = append(singles, &partialMatch{mask: mask, bindings: θ, parents: parents})
		}
		if len(singles) == 0 {
			continue
		}

		e.fwdMu.Lock()
		existing := append([]*partialMatch(nil), e.fwdMatches[r.ID]...)
		var toStore []*partialMatch
		var fired []*partialMatch

		for _, single := range singles {
			if allTrue(single.mask) {
				fired = append(fired, single)
				continue
			}
			for _, ex := range existing {
				if overlaps(single.mask, ex.mask) {
					continue
				}
				bindings, ok := mergeBindings(single.bindings, ex.bindings)
				if !ok {
					continue
				}
				pm := &partialMatch{
					mask:     orMask(single.mask, ex.mask),
					bindings: bindings,
					parents:  mergeParents(single.parents, ex.parents),
				}
				if allTrue(pm.mask) {
					fired = append(fired, pm)
				} else {
					toStore = append(toStore, pm)
				}
			}
			toStore = append(toStore, single)
		}
		e.fwdMatches[r.ID] = append(e.fwdMatches[r.ID], toStore...)
		e.fwdMu.Unlock()

		for _, pm := range fired {
			consequent := unify.Subst(r.Consequent, pm.bindings)
			e.deriveAndCommit(a.KB, consequent, pm.parents, "reasoner:fc", events.Ground, nil)
		}
	}
}

// onRetractedForward evicts any partial match that depended on a retracted
// assertion (spec.md §4.6.1: "Partial matches are evicted when any
// contributing fact is retracted.").
func (e *Engine) onRetractedForward(ev events.Event) {
	if ev.Retracted == nil {
		return
	}
	id := ev.Retracted.AssertionID

	e.fwdMu.Lock()
	defer e.fwdMu.Unlock()
	for ruleID, pms := range e.fwdMatches {
		kept := pms[:0:0]
		for _, pm := range pms {
			drop := false
			for _, p := range pm.parents {
				if p != nil && p.ID == id {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, pm)
			}
		}
		e.fwdMatches[ruleID] = kept
	}
}
