package unify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"noeta/internal/term"
)

func mustParse(t *testing.T, s string) term.Term {
	t.Helper()
	tm, err := term.Parse(s)
	require.NoError(t, err)
	return tm
}

func TestUnifySoundness(t *testing.T) {
	p := mustParse(t, "(instance ?x Dog)")
	i := mustParse(t, "(instance rex Dog)")
	theta, ok := Unify(p, i, nil)
	require.True(t, ok)
	require.True(t, Subst(p, theta).Equal(Subst(i, theta)))
}

func TestOccursCheckFails(t *testing.T) {
	x := term.Var("x")
	f := mustParse(t, "(f ?x)")
	_, ok := Unify(x, f, nil)
	require.False(t, ok)
}

func TestUnifyArityMismatchFails(t *testing.T) {
	a := mustParse(t, "(f ?x ?y)")
	b := mustParse(t, "(f 1)")
	_, ok := Unify(a, b, nil)
	require.False(t, ok)
}

func TestUnifyDifferentAtomsFail(t *testing.T) {
	a := term.Atom("foo")
	b := term.Atom("bar")
	_, ok := Unify(a, b, nil)
	require.False(t, ok)
}

func TestSubstUnchangedWhenEmpty(t *testing.T) {
	tm := mustParse(t, "(f ?x)")
	require.True(t, Subst(tm, nil).Equal(tm))
}

func TestRenameProducesFreshVars(t *testing.T) {
	counter := new(uint64)
	tm := mustParse(t, "(likes ?x ?y)")
	r1, _ := Rename(tm, counter)
	r2, _ := Rename(tm, counter)
	require.False(t, r1.Equal(r2))
	require.False(t, r1.Equal(tm))
}
