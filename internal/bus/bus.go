// Package bus implements the typed publish/subscribe event bus described
// in spec.md §3.6 / §5: one dispatch goroutine, ordered per-subscriber
// delivery via an unbounded per-subscriber backlog, and a pause flag that
// gates delivery without dropping events. Grounded on the teacher's
// discipline of funneling every store mutation through one logical owner
// (internal/mangle/engine.go's mutex-guarded Engine), generalized here
// into an explicit single dispatch goroutine.
package bus

import (
	"sync"

	"noeta/internal/events"
)

// Handler processes one event. Handlers run on their subscriber's own
// goroutine so a slow or blocking handler (LLM call, bulk rewrite) never
// stalls the dispatch thread or other subscribers (spec.md §5).
type Handler func(events.Event)

// subscriber owns an unbounded backlog of its own: push (called from the
// dispatch goroutine) only ever appends and returns, and run (the
// subscriber's own goroutine) drains it at whatever pace handler keeps
// up with. A slow handler grows this subscriber's backlog; it never
// blocks push, so it never stalls the dispatch goroutine or any other
// subscriber (spec.md §5).
type subscriber struct {
	id      int
	types   map[events.Type]bool // nil/empty means "all types"
	handler Handler

	mu      sync.Mutex
	cond    *sync.Cond
	pending []events.Event
	closed  bool
}

func newSubscriber(id int, types map[events.Type]bool, handler Handler, backlogHint int) *subscriber {
	s := &subscriber{
		id:      id,
		types:   types,
		handler: handler,
		pending: make([]events.Event, 0, backlogHint),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) wants(t events.Type) bool {
	if len(s.types) == 0 {
		return true
	}
	return s.types[t]
}

// push hands e to this subscriber's backlog and returns immediately:
// the append is O(1) amortized and the backlog has no cap, so push
// never blocks regardless of how far behind this subscriber's handler
// has fallen, so the dispatch goroutine that calls push never waits on
// a subscriber's handler.
func (s *subscriber) push(e events.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, e)
	s.mu.Unlock()
	s.cond.Signal()
}

// closeSub marks the subscriber closed and wakes its goroutine. run
// drains whatever is left in pending before it observes closed and
// returns, so no event handed to push is ever silently dropped on
// teardown (spec.md §5: "Pause MUST NOT drop events" — the same
// no-drop discipline applies here).
func (s *subscriber) closeSub() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// run is the subscriber's own goroutine: it is the only reader of
// pending, so handler calls for this subscriber are strictly ordered
// and never overlap.
func (s *subscriber) run() {
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		e := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()
		s.handler(e)
	}
}

// Bus is the process-wide event bus. Zero value is not usable; use New.
type Bus struct {
	mu          sync.Mutex
	subs        []*subscriber
	nextID      int
	dispatchQ   chan events.Event
	paused      bool
	pauseCond   *sync.Cond
	stopped     bool
	wg          sync.WaitGroup
	subscriberQ int // per-subscriber backlog preallocation hint
}

// New creates a Bus and starts its single dispatch goroutine.
// subscriberQueueDepth hints at each subscriber's expected backlog size
// (its pending slice is preallocated to this capacity) but is not a cap:
// a subscriber whose handler falls behind still never blocks the
// dispatch goroutine or any other subscriber (spec.md §5's
// "per-subscriber FIFO queues" isolation guarantee), it only grows its
// own backlog.
func New(subscriberQueueDepth int) *Bus {
	if subscriberQueueDepth <= 0 {
		subscriberQueueDepth = 256
	}
	b := &Bus{
		dispatchQ:   make(chan events.Event, 4096),
		subscriberQ: subscriberQueueDepth,
	}
	b.pauseCond = sync.NewCond(&b.mu)
	b.wg.Add(1)
	go b.dispatchLoop()
	return b
}

// Subscribe registers handler for the given event types (or all types, if
// none given). Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Handler, types ...events.Type) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	set := make(map[events.Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	sub := newSubscriber(id, set, handler, b.subscriberQ)
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sub.run()
	}()

	return func() {
		b.mu.Lock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.closeSub()
	}
}

// Emit enqueues e for dispatch. Emit is synchronous-to-enqueue,
// asynchronous-to-deliver (spec.md §5): it returns once e is queued on the
// bus, not once subscribers have processed it.
//
// The stopped check and the send happen under the same lock Stop uses to
// flip stopped and close dispatchQ, so the two can never interleave: an
// Emit either completes its send before Stop closes the channel, or it
// observes stopped already true and returns without touching the closed
// channel. Releasing the lock before sending (as an earlier version of
// this method did) would leave a window where Stop closes dispatchQ in
// between Emit's stopped check and its send, panicking on a
// send-on-closed-channel.
func (b *Bus) Emit(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.dispatchQ <- e
}

// Pause gates delivery: events keep being enqueued (Emit never blocks on
// Pause) but the dispatch loop stops handing them to subscribers until
// Resume is called. No event is ever dropped (spec.md §5).
func (b *Bus) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

// Resume un-gates delivery and wakes the dispatch loop to drain in FIFO
// order.
func (b *Bus) Resume() {
	b.mu.Lock()
	b.paused = false
	b.mu.Unlock()
	b.pauseCond.Broadcast()
}

// Paused reports the current pause state.
func (b *Bus) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Stop drains no further events and shuts down the dispatch goroutine and
// all subscriber goroutines once currently-queued events have been
// handed to each subscriber's backlog and drained.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()
	close(b.dispatchQ)
	b.wg.Wait()
}

func (b *Bus) dispatchLoop() {
	defer b.wg.Done()
	for e := range b.dispatchQ {
		b.waitWhilePaused()
		b.deliver(e)
	}
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subs...)
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.closeSub()
	}
}

func (b *Bus) waitWhilePaused() {
	b.mu.Lock()
	for b.paused {
		b.pauseCond.Wait()
	}
	b.mu.Unlock()
}

// deliver fans e out to every subscriber interested in its type, in
// subscription order. Each subscriber receives events in emission order
// (spec.md §5); cross-subscriber order is not guaranteed since each
// subscriber drains its own backlog on its own goroutine independently.
// push never blocks, so a subscriber whose handler is stalled (an LLM
// call, a bulk rewrite) only grows its own backlog; it never slows this
// loop or any other subscriber's delivery.
func (b *Bus) deliver(e events.Event) {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		if s.wants(e.Type) {
			s.push(e)
		}
	}
}
