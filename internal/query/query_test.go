package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"noeta/internal/bus"
	"noeta/internal/events"
	"noeta/internal/term"
)

func TestQuerySyncReceivesMatchingAnswer(t *testing.T) {
	b := bus.New(16)
	defer b.Stop()

	// A fake reasoner: echoes back an Answer for whatever Query it sees.
	b.Subscribe(func(ev events.Event) {
		if ev.Query == nil {
			return
		}
		b.Emit(events.Event{
			Type: events.TypeAnswer,
			Answer: &events.AnswerPayload{
				QueryID:  ev.Query.QueryID,
				Bindings: []map[string]term.Term{{"?x": term.Atom("ok")}},
				Status:   events.StatusSuccess,
			},
		})
	}, events.TypeQuery)

	e := New(b)
	defer e.Close()

	pattern, err := term.Parse("(p ?x)")
	require.NoError(t, err)

	res := e.QuerySync(context.Background(), events.AskBindings, pattern, "", time.Second)
	require.Equal(t, events.StatusSuccess, res.Status)
	require.Len(t, res.Bindings, 1)
	require.Equal(t, "ok", res.Bindings[0]["?x"].Name())
}

func TestQuerySyncTimesOut(t *testing.T) {
	b := bus.New(16)
	defer b.Stop()

	e := New(b)
	defer e.Close()

	pattern, err := term.Parse("(p ?x)")
	require.NoError(t, err)

	res := e.QuerySync(context.Background(), events.AskBindings, pattern, "", 50*time.Millisecond)
	require.Equal(t, events.StatusTimeout, res.Status)
}

func TestQuerySyncIgnoresOtherQueryIDs(t *testing.T) {
	b := bus.New(16)
	defer b.Stop()

	e := New(b)
	defer e.Close()

	// An Answer for an unrelated query must not satisfy a concurrent wait.
	b.Emit(events.Event{Type: events.TypeAnswer, Answer: &events.AnswerPayload{QueryID: "unrelated", Status: events.StatusSuccess}})

	pattern, err := term.Parse("(p ?x)")
	require.NoError(t, err)

	res := e.QuerySync(context.Background(), events.AskBindings, pattern, "", 50*time.Millisecond)
	require.Equal(t, events.StatusTimeout, res.Status)
}
