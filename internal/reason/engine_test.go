package reason

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"noeta/internal/bus"
	"noeta/internal/errs"
	"noeta/internal/events"
	"noeta/internal/kb"
	"noeta/internal/rulestore"
	"noeta/internal/term"
	"noeta/internal/tms"
	"noeta/internal/unify"
)

type kbLookup struct{ kbs map[string]*kb.KB }

func (l *kbLookup) KBFor(id string) (*kb.KB, bool) { k, ok := l.kbs[id]; return k, ok }

func parse(t *testing.T, s string) term.Term {
	t.Helper()
	tm, err := term.Parse(s)
	require.NoError(t, err)
	return tm
}

func newTestEngine(t *testing.T) (*Engine, *kb.KB, *rulestore.Store, *tms.TMS, *bus.Bus) {
	t.Helper()
	b := bus.New(32)
	t.Cleanup(b.Stop)

	store := kb.New(kb.GlobalContextID, kb.DefaultConfig(), b)
	lookup := &kbLookup{kbs: map[string]*kb.KB{kb.GlobalContextID: store}}
	tm := tms.New(tms.PreferOld, lookup, b)
	store.SetDependencyChecker(tm)
	rules := rulestore.New(b)
	eng := New(b, lookup, rules, tm, DefaultConfig())
	return eng, store, rules, tm, b
}

// TestRewriteOnce_PeanoAddS1 drives repeated leftmost-outermost rewriting
// to a fixpoint, matching spec scenario S1.
func TestRewriteOnce_PeanoAddS1(t *testing.T) {
	rules := rulestore.New(nil)
	_, err := rules.AddFromForm(parse(t, "(= (add 0 ?n) ?n)"), 1.0, "")
	require.NoError(t, err)
	_, err = rules.AddFromForm(parse(t, "(= (add (s ?m) ?n) (s (add ?m ?n)))"), 1.0, "")
	require.NoError(t, err)

	rewriteRules := rules.All(rulestore.KindRewrite)
	cur := parse(t, "(add (s (s 0)) (s 0))")
	for i := 0; i < 10; i++ {
		next, ok := rewriteOnce(cur, rewriteRules)
		if !ok {
			break
		}
		cur = next
	}
	require.True(t, cur.Equal(parse(t, "(s (s (s 0)))")))
}

// TestForwardChainingS2 checks a plain-antecedent rule fires with the
// derivation-depth and priority-decay contract of spec scenario S2.
func TestForwardChainingS2(t *testing.T) {
	eng, store, rules, tm, _ := newTestEngine(t)
	_, err := rules.AddFromForm(parse(t, "(=> (instance ?x Dog) (attribute ?x Canine))"), 1.0, "")
	require.NoError(t, err)

	rex := &events.Assertion{Kif: parse(t, "(instance rex Dog)"), Priority: 1.0, Timestamp: 1, SourceID: "user", Type: events.Ground}
	res, err := store.Commit(rex)
	require.NoError(t, err)
	tm.Record(res.Assertion, nil)

	eng.onAssertedForward(events.Event{Type: events.TypeAsserted, ContextID: kb.GlobalContextID, Asserted: res.Assertion})

	derived, ok := store.Lookup(parse(t, "(attribute rex Canine)"))
	require.True(t, ok)
	require.Equal(t, 1, derived.DerivationDepth)
	require.InDelta(t, 0.95, derived.Priority, 1e-9)
	require.Equal(t, []string{res.Assertion.ID}, derived.JustificationIDs)
}

// TestConjunctiveForwardChaining checks the partial-match table fires only
// once every conjunct of an (and ...) antecedent has a matching fact
// (spec.md §4.6.1).
func TestConjunctiveForwardChaining(t *testing.T) {
	eng, store, rules, tm, _ := newTestEngine(t)
	_, err := rules.AddFromForm(parse(t, "(=> (and (p ?x) (q ?x)) (r ?x))"), 1.0, "")
	require.NoError(t, err)

	pa := &events.Assertion{Kif: parse(t, "(p a)"), Priority: 1.0, Timestamp: 1, SourceID: "u", Type: events.Ground}
	resP, err := store.Commit(pa)
	require.NoError(t, err)
	tm.Record(resP.Assertion, nil)
	eng.onAssertedForward(events.Event{Type: events.TypeAsserted, ContextID: kb.GlobalContextID, Asserted: resP.Assertion})

	_, ok := store.Lookup(parse(t, "(r a)"))
	require.False(t, ok, "should not fire on a partial match")

	qa := &events.Assertion{Kif: parse(t, "(q a)"), Priority: 1.0, Timestamp: 2, SourceID: "u", Type: events.Ground}
	resQ, err := store.Commit(qa)
	require.NoError(t, err)
	tm.Record(resQ.Assertion, nil)
	eng.onAssertedForward(events.Event{Type: events.TypeAsserted, ContextID: kb.GlobalContextID, Asserted: resQ.Assertion})

	ra, ok := store.Lookup(parse(t, "(r a)"))
	require.True(t, ok)
	require.ElementsMatch(t, []string{resP.Assertion.ID, resQ.Assertion.ID}, ra.JustificationIDs)
}

// TestUniversalInstantiation checks a ground fact matching a registered
// UNIVERSAL's body gets that universal recorded as an additional
// justifier (spec.md §4.6.3).
func TestUniversalInstantiation(t *testing.T) {
	eng, store, _, tm, _ := newTestEngine(t)

	universal := &events.Assertion{
		Kif: parse(t, "(forall (?x) (likes ?x chocolate))"), Priority: 1.0, Timestamp: 1,
		SourceID: "user", Type: events.Universal, QuantifiedVars: []string{"?x"},
	}
	resU, err := store.Commit(universal)
	require.NoError(t, err)
	tm.Record(resU.Assertion, nil)
	eng.onAssertedUniversal(events.Event{Type: events.TypeAsserted, ContextID: kb.GlobalContextID, Asserted: resU.Assertion})

	fact := &events.Assertion{Kif: parse(t, "(likes bob chocolate)"), Priority: 1.0, Timestamp: 2, SourceID: "user", Type: events.Ground}
	resF, err := store.Commit(fact)
	require.NoError(t, err)
	tm.Record(resF.Assertion, nil)
	eng.onAssertedUniversal(events.Event{Type: events.TypeAsserted, ContextID: kb.GlobalContextID, Asserted: resF.Assertion})

	require.True(t, tm.HasActiveDependents(resU.Assertion.ID))
}

// TestBackwardChainingLeafAndRule proves a goal through one rule expansion
// down to a leaf fact.
func TestBackwardChainingLeafAndRule(t *testing.T) {
	eng, store, rules, tm, _ := newTestEngine(t)
	_, err := rules.AddFromForm(parse(t, "(=> (instance ?x Dog) (attribute ?x Canine))"), 1.0, "")
	require.NoError(t, err)

	rex := &events.Assertion{Kif: parse(t, "(instance rex Dog)"), Priority: 1.0, Timestamp: 1, SourceID: "user", Type: events.Ground}
	res, err := store.Commit(rex)
	require.NoError(t, err)
	tm.Record(res.Assertion, nil)

	results, err := eng.prove(context.Background(), kb.GlobalContextID, parse(t, "(attribute rex ?c)"), unify.Bindings{}, nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "Canine", unify.Subst(term.Var("?c"), results[0]).Name())
}

func TestCycleDetectedInBackwardChaining(t *testing.T) {
	eng, _, _, _, _ := newTestEngine(t)
	_, err := eng.prove(context.Background(), kb.GlobalContextID, parse(t, "(p ?y)"), unify.Bindings{}, []term.Term{parse(t, "(p ?z)")}, 0)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindCycleDetected))
}

// TestDialogueAskUser drives spec scenario S6's suspend/resume mechanic.
func TestDialogueAskUser(t *testing.T) {
	eng, _, _, _, b := newTestEngine(t)

	recorded := make(chan events.Event, 4)
	unsub := b.Subscribe(func(e events.Event) { recorded <- e }, events.TypeDialogueRequest)
	defer unsub()

	type outcome struct {
		results []unify.Bindings
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := eng.prove(context.Background(), kb.GlobalContextID, parse(t, `(ask-user ?c "color?")`), unify.Bindings{}, nil, 0)
		done <- outcome{res, err}
	}()

	var req events.Event
	select {
	case req = <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a DialogueRequest event")
	}
	require.Equal(t, "color?", req.DialogueRequest.Prompt)

	eng.onDialogueResponse(events.Event{
		Type: events.TypeDialogueResponse,
		DialogueResponse: &events.DialogueResponsePayload{
			DialogueID: req.DialogueRequest.DialogueID,
			Response:   parse(t, `"blue"`),
		},
	})

	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.Len(t, out.results, 1)
		require.Equal(t, parse(t, `"blue"`).Name(), unify.Subst(term.Var("?c"), out.results[0]).Name())
	case <-time.After(2 * time.Second):
		t.Fatal("prove did not resume after DialogueResponse")
	}
}
