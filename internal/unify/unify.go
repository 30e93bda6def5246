// Package unify implements first-order unification with occurs-check and
// capture-avoiding substitution over internal/term.Term (spec.md §4.2).
package unify

import (
	"fmt"
	"sync/atomic"

	"noeta/internal/term"
)

// Bindings maps variable name -> bound Term. A nil Bindings is treated as
// empty; Unify never mutates the map it receives, it returns a new one.
type Bindings map[string]term.Term

// Clone returns a shallow copy.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

type pair struct {
	pattern, instance term.Term
}

// Unify attempts to unify pattern against instance, returning the most
// general bindings that make subst(pattern,θ) == subst(instance,θ).
// Unification is iterative over a work stack (spec.md §4.2).
func Unify(pattern, instance term.Term, base Bindings) (Bindings, bool) {
	theta := base.Clone()
	stack := []pair{{pattern, instance}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		a := resolve(p.pattern, theta)
		b := resolve(p.instance, theta)

		if a.Equal(b) {
			continue
		}

		if a.IsVar() {
			if occurs(a.Name(), b, theta) {
				return nil, false
			}
			theta[a.Name()] = b
			continue
		}
		if b.IsVar() {
			if occurs(b.Name(), a, theta) {
				return nil, false
			}
			theta[b.Name()] = a
			continue
		}

		if a.IsAtom() || b.IsAtom() {
			// Already handled equal case above; different atoms, or
			// atom-vs-list, fail.
			return nil, false
		}

		// Both Lst.
		if a.Arity() != b.Arity() {
			return nil, false
		}
		for i := 0; i < a.Arity(); i++ {
			stack = append(stack, pair{a.Child(i), b.Child(i)})
		}
	}
	return theta, true
}

// resolve follows variable bindings in theta to a fixed point, without
// mutating theta.
func resolve(t term.Term, theta Bindings) term.Term {
	for t.IsVar() {
		next, ok := theta[t.Name()]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

// occurs reports whether varName occurs (after resolving bindings) inside
// t — the occurs-check (spec.md §4.2, §8 property 3).
func occurs(varName string, t term.Term, theta Bindings) bool {
	t = resolve(t, theta)
	switch t.Kind() {
	case term.KindVar:
		return t.Name() == varName
	case term.KindLst:
		for _, c := range t.Children() {
			if occurs(varName, c, theta) {
				return true
			}
		}
	}
	return false
}

// Subst performs capture-avoiding substitution of theta into t. When theta
// is empty or touches nothing in t, the original t is returned unchanged
// (spec.md §4.2).
func Subst(t term.Term, theta Bindings) term.Term {
	if len(theta) == 0 {
		return t
	}
	switch t.Kind() {
	case term.KindVar:
		if bound, ok := theta[t.Name()]; ok {
			return Subst(bound, theta)
		}
		return t
	case term.KindLst:
		children := t.Children()
		changed := false
		out := make([]term.Term, len(children))
		for i, c := range children {
			nc := Subst(c, theta)
			out[i] = nc
			if !nc.Equal(c) {
				changed = true
			}
		}
		if !changed {
			return t
		}
		return term.Lst(out...)
	default:
		return t
	}
}

var renameCounter uint64

// FreshCounter returns a monotonically increasing counter usable as a
// source of fresh variable suffixes for Rename.
func FreshCounter() *uint64 { return &renameCounter }

// Rename produces an alpha-renamed copy of t, mapping every distinct Var
// name to a fresh unique name using the shared counter. It returns the
// renamed term and the substitution used, so rule consequents can be
// renamed consistently with their antecedent (spec.md §4.2).
func Rename(t term.Term, counter *uint64) (term.Term, Bindings) {
	mapping := make(Bindings)
	renamed := renameWith(t, mapping, counter)
	return renamed, mapping
}

func renameWith(t term.Term, mapping Bindings, counter *uint64) term.Term {
	switch t.Kind() {
	case term.KindVar:
		if fresh, ok := mapping[t.Name()]; ok {
			return fresh
		}
		n := atomic.AddUint64(counter, 1)
		fresh := term.Var(fmt.Sprintf("%s_%d", t.Name(), n))
		mapping[t.Name()] = fresh
		return fresh
	case term.KindLst:
		children := t.Children()
		out := make([]term.Term, len(children))
		for i, c := range children {
			out[i] = renameWith(c, mapping, counter)
		}
		return term.Lst(out...)
	default:
		return t
	}
}
