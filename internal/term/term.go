// Package term implements the immutable KIF term model: atoms, variables,
// and lists, plus structural hashing and a canonical text form.
package term

import (
	"fmt"
	"strings"
)

// Kind tags the three term shapes.
type Kind int

const (
	KindAtom Kind = iota
	KindVar
	KindLst
)

// Term is the sum type described in spec.md §3.1. The zero value is not a
// valid Term; use Atom, Var, or Lst to build one.
type Term struct {
	kind     Kind
	name     string // Atom / Var
	children []Term // Lst
	hash     uint64
	hashed   bool
}

// Atom builds a predicate/constant/operator symbol. Names beginning with
// '?' are reserved for variables and are rejected here.
func Atom(name string) Term {
	if strings.HasPrefix(name, "?") {
		panic("term: atom name must not start with '?': " + name)
	}
	return Term{kind: KindAtom, name: name}
}

// Var builds a logical variable; a name without a leading '?' gets one
// prepended.
func Var(name string) Term {
	if !strings.HasPrefix(name, "?") {
		name = "?" + name
	}
	return Term{kind: KindVar, name: name}
}

// Lst builds an ordered application/list term.
func Lst(children ...Term) Term {
	cp := make([]Term, len(children))
	copy(cp, children)
	return Term{kind: KindLst, children: cp}
}

func (t Term) Kind() Kind          { return t.kind }
func (t Term) IsAtom() bool        { return t.kind == KindAtom }
func (t Term) IsVar() bool         { return t.kind == KindVar }
func (t Term) IsLst() bool         { return t.kind == KindLst }
func (t Term) Name() string        { return t.name }
func (t Term) Children() []Term    { return t.children }
func (t Term) Arity() int          { return len(t.children) }
func (t Term) Child(i int) Term    { return t.children[i] }

// Head returns the operator atom name of a list term, or "" if the list
// is empty or its head is not an Atom.
func (t Term) Head() string {
	if t.kind != KindLst || len(t.children) == 0 {
		return ""
	}
	if h := t.children[0]; h.kind == KindAtom {
		return h.name
	}
	return ""
}

// Equal reports structural equality.
func (t Term) Equal(o Term) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindAtom, KindVar:
		return t.name == o.name
	case KindLst:
		if len(t.children) != len(o.children) {
			return false
		}
		for i := range t.children {
			if !t.children[i].Equal(o.children[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Hash returns a structural hash, stable across calls, suitable for map
// keys when paired with Equal for collision resolution (e.g. via KIF()).
func (t *Term) Hash() uint64 {
	if t.hashed {
		return t.hash
	}
	const fnvOffset = 14695981039346656037
	const fnvPrime = 1099511628211
	h := uint64(fnvOffset)
	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			h ^= uint64(s[i])
			h *= fnvPrime
		}
	}
	switch t.kind {
	case KindAtom:
		mix("A:")
		mix(t.name)
	case KindVar:
		mix("V:")
		mix(t.name)
	case KindLst:
		mix("L:")
		for i := range t.children {
			ch := t.children[i]
			mix(fmt.Sprintf("%d:", ch.Hash()))
		}
	}
	t.hash = h
	t.hashed = true
	return h
}

// Vars collects the set of distinct variable names occurring in t.
func (t Term) Vars() map[string]struct{} {
	out := make(map[string]struct{})
	t.collectVars(out)
	return out
}

func (t Term) collectVars(out map[string]struct{}) {
	switch t.kind {
	case KindVar:
		out[t.name] = struct{}{}
	case KindLst:
		for _, c := range t.children {
			c.collectVars(out)
		}
	}
}

// ReservedOperators lists operator atoms with built-in meaning to the
// reasoning engine (spec.md §3.1).
var ReservedOperators = map[string]bool{
	"=>": true, "<=>": true, "and": true, "or": true, "not": true,
	"forall": true, "exists": true, "=": true,
}
