package reason

import (
	"noeta/internal/events"
	"noeta/internal/rulestore"
	"noeta/internal/term"
	"noeta/internal/unify"
)

// onAssertedRewrite implements the equality rewrite reasoner of spec.md
// §4.6.2: one leftmost-outermost rewrite per Asserted event, driven by
// (= lhs rhs) rules.
func (e *Engine) onAssertedRewrite(ev events.Event) {
	if ev.Asserted == nil {
		return
	}
	a := ev.Asserted
	rules := e.rules.All(rulestore.KindRewrite)
	if len(rules) == 0 {
		return
	}
	if rewritten, ok := rewriteOnce(a.Kif, rules); ok {
		e.deriveAndCommit(a.KB, rewritten, []*events.Assertion{a}, "reasoner:rewrite", events.Ground, nil)
	}
}

// rewriteOnce tries every rewrite rule at t itself before recursing into
// t's children left to right, so the first match found is the
// leftmost-outermost one (spec.md §4.6.2).
func rewriteOnce(t term.Term, rules []*rulestore.Rule) (term.Term, bool) {
	for _, r := range rules {
		if θ, ok := unify.Unify(r.Antecedent, t, unify.Bindings{}); ok {
			return unify.Subst(r.Consequent, θ), true
		}
	}
	if !t.IsLst() {
		return t, false
	}
	children := t.Children()
	for i, c := range children {
		if rewritten, ok := rewriteOnce(c, rules); ok {
			newChildren := append([]term.Term(nil), children...)
			newChildren[i] = rewritten
			return term.Lst(newChildren...), true
		}
	}
	return t, false
}
