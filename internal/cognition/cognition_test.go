package cognition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"noeta/internal/config"
	"noeta/internal/events"
	"noeta/internal/kb"
	"noeta/internal/term"
	"noeta/internal/tms"
)

func parse(t *testing.T, s string) term.Term {
	t.Helper()
	tm, err := term.Parse(s)
	require.NoError(t, err)
	return tm
}

func TestAddInputCommitsIntoTargetKB(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	a, err := c.AddInput(parse(t, "(color sky blue)"), "user", "note-1")
	require.NoError(t, err)
	require.True(t, a.IsActive)
	require.Equal(t, "note-1", a.KB)
	require.Equal(t, events.Ground, a.Type)

	store, ok := c.KBFor("note-1")
	require.True(t, ok)
	got, found := store.Lookup(parse(t, "(color sky blue)"))
	require.True(t, found)
	require.Equal(t, a.ID, got.ID)
}

func TestAddInputClassifiesUniversal(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	a, err := c.AddInput(parse(t, "(forall (?x) (=> (bird ?x) (flies ?x)))"), "user", "")
	require.NoError(t, err)
	require.Equal(t, events.Universal, a.Type)
	require.Equal(t, []string{"?x"}, a.QuantifiedVars)
	require.Equal(t, kb.GlobalContextID, a.KB)
}

func TestRetractByID(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	a, err := c.AddInput(parse(t, "(p a)"), "user", "note-1")
	require.NoError(t, err)

	require.NoError(t, c.Retract(events.ByID, a.ID, "user request", "note-1"))

	store, ok := c.KBFor("note-1")
	require.True(t, ok)
	_, found := store.Lookup(parse(t, "(p a)"))
	require.False(t, found)
}

func TestRetractByKIF(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	_, err := c.AddInput(parse(t, "(p a)"), "user", "note-1")
	require.NoError(t, err)

	require.NoError(t, c.Retract(events.ByKIF, "(p a)", "superseded", "note-1"))

	store, ok := c.KBFor("note-1")
	require.True(t, ok)
	_, found := store.Lookup(parse(t, "(p a)"))
	require.False(t, found)
}

func TestRetractByNoteDeletesContextKB(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	_, err := c.AddInput(parse(t, "(p a)"), "user", "note-1")
	require.NoError(t, err)
	_, err = c.AddInput(parse(t, "(q b)"), "user", "note-1")
	require.NoError(t, err)

	require.Contains(t, c.ActiveContexts(), "note-1")

	require.NoError(t, c.Retract(events.ByNote, "note-1", "note deleted", ""))

	_, ok := c.KBFor("note-1")
	require.False(t, ok)
	require.NotContains(t, c.ActiveContexts(), "note-1")
}

func TestStatusReportsContextsAndRules(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	_, err := c.AddInput(parse(t, "(p a)"), "user", "note-1")
	require.NoError(t, err)
	_, err = c.AddRule(parse(t, "(=> (p ?x) (q ?x))"), 0.9, "note-1")
	require.NoError(t, err)

	status := c.Status()
	require.Contains(t, status.Contexts, "note-1")
	require.Equal(t, 1, status.AssertionCounts["note-1"])
	require.Equal(t, 1, status.RuleCount)
}

func TestAddKIFRoutesRuleShapedFormToRuleStore(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	require.NoError(t, c.AddKIF(parse(t, "(=> (likes ?x ?y) (friend ?x ?y))"), "user", ""))

	status := c.Status()
	require.Equal(t, 1, status.RuleCount)

	store, ok := c.KBFor(kb.GlobalContextID)
	require.True(t, ok)
	_, found := store.Lookup(parse(t, "(=> (likes ?x ?y) (friend ?x ?y))"))
	require.False(t, found, "a rule-shaped form must not also land in the global KB as a ground fact")
}

func TestAddKIFRoutesGroundFormToGlobalKB(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	require.NoError(t, c.AddKIF(parse(t, "(likes tom jerry)"), "user", ""))

	status := c.Status()
	require.Equal(t, 0, status.RuleCount)

	store, ok := c.KBFor(kb.GlobalContextID)
	require.True(t, ok)
	_, found := store.Lookup(parse(t, "(likes tom jerry)"))
	require.True(t, found)
}

func TestSetContradictionPolicyTakesEffectOnNextContradiction(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	c.SetContradictionPolicy(tms.PreferNew)

	a, err := c.AddInput(parse(t, "(p a)"), "user", "")
	require.NoError(t, err)
	b, err := c.AddInput(parse(t, "(not (p a))"), "user", "")
	require.NoError(t, err)

	require.False(t, a.IsActive, "prefer_new must deactivate the older conflicting assertion")
	require.True(t, b.IsActive)
}

func TestFromFileConfigAdaptsFields(t *testing.T) {
	fc := config.DefaultConfig()
	fc.Reasoning.DepthLimit = 9
	fc.KB.GlobalCapacity = 111

	cc := FromFileConfig(fc)
	require.Equal(t, 9, cc.ReasoningDepthLimit)
	require.Equal(t, 111, cc.GlobalKBCapacity)
	require.Equal(t, 60*1000, int(cc.QueryTimeout.Milliseconds()))
}
