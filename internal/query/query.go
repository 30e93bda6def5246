// Package query implements the synchronous query façade of spec.md §4.7:
// querySync publishes a Query event and awaits the matching Answer,
// enforcing a timeout. Grounded on the teacher's internal/mangle Engine's
// Query method — a goroutine + channel + context.Done() timeout race —
// generalized here to await a bus event instead of a direct function
// return.
package query

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"noeta/internal/bus"
	"noeta/internal/events"
	"noeta/internal/term"
)

// DefaultTimeout is spec.md §6.5's queryTimeoutMs default.
const DefaultTimeout = 60 * time.Second

// Engine answers queries synchronously over an asynchronous bus.
type Engine struct {
	bus *bus.Bus

	mu      sync.Mutex
	waiters map[string]chan *events.AnswerPayload

	unsubscribe func()
}

// New subscribes to Answer events and returns a ready Engine. Call Close
// to stop listening.
func New(b *bus.Bus) *Engine {
	e := &Engine{bus: b, waiters: make(map[string]chan *events.AnswerPayload)}
	e.unsubscribe = b.Subscribe(e.onAnswer, events.TypeAnswer)
	return e
}

func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

func (e *Engine) onAnswer(ev events.Event) {
	if ev.Answer == nil {
		return
	}
	e.mu.Lock()
	ch, ok := e.waiters[ev.Answer.QueryID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ev.Answer:
	default:
	}
}

// Result is QuerySync's outcome: the coalesced binding list and status
// (spec.md §4.7).
type Result struct {
	Bindings []map[string]term.Term
	Status   events.AnswerStatus
}

// QuerySync publishes a Query(qt, pattern, targetKbID) and awaits the
// Answer whose queryId matches, up to timeout (0 means DefaultTimeout).
// Timing out yields Status == StatusTimeout rather than an error, matching
// spec.md §4.7's "Timeout yields QueryStatus.TIMEOUT."
func (e *Engine) QuerySync(ctx context.Context, qt events.QueryType, pattern term.Term, targetKBID string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	queryID := uuid.NewString()
	ch := make(chan *events.AnswerPayload, 1)

	e.mu.Lock()
	e.waiters[queryID] = ch
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.waiters, queryID)
		e.mu.Unlock()
	}()

	e.bus.Emit(events.Event{
		Type: events.TypeQuery,
		Query: &events.QueryPayload{
			QueryID: queryID, QueryType: qt, Pattern: pattern, TargetKbID: targetKBID,
		},
	})

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case answer := <-ch:
		return Result{Bindings: answer.Bindings, Status: answer.Status}
	case <-timeoutCtx.Done():
		return Result{Status: events.StatusTimeout}
	}
}
