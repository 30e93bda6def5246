package term

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"(instance rex Dog)",
		"(=> (instance ?x Dog) (attribute ?x Canine))",
		"(forall (?v1 ?v2) (likes ?v1 ?v2))",
		`(noteSummary "hello world")`,
		"()",
		"(add (s (s 0)) (s 0))",
	}
	for _, c := range cases {
		tm, err := Parse(c)
		require.NoError(t, err, c)
		again := KIF(tm)
		tm2, err := Parse(again)
		require.NoError(t, err)
		require.True(t, tm2.Equal(tm), "round trip mismatch for %q -> %q", c, again)
		// toKif . parse . toKif = toKif
		require.Equal(t, again, KIF(tm2))
	}
}

func TestParseComment(t *testing.T) {
	tm, err := Parse("(foo bar) ; trailing comment")
	require.NoError(t, err)
	require.Equal(t, "(foo bar)", KIF(tm))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("(foo")
	require.Error(t, err)
	_, err = Parse("foo)")
	require.Error(t, err)
	_, err = Parse(`(foo "unterminated)`)
	require.Error(t, err)
}

func TestVarReservation(t *testing.T) {
	require.Panics(t, func() { Atom("?x") })
	v := Var("x")
	require.Equal(t, "?x", v.Name())
}

func TestHeadAndVars(t *testing.T) {
	tm, err := Parse("(=> (instance ?x Dog) (attribute ?x Canine))")
	require.NoError(t, err)
	require.Equal(t, "=>", tm.Head())
	vars := tm.Vars()
	_, ok := vars["?x"]
	require.True(t, ok)
	require.Len(t, vars, 1)
}
