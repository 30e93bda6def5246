// Package reason implements the four reasoner strategies of spec.md §4.6:
// forward chaining, rewrite rules, universal instantiation, and
// query-driven backward chaining, plus the shared firing contract they
// all follow. Grounded on the teacher's internal/mangle/engine.go
// evaluation loop, generalized from Datalog's fixpoint naive evaluation
// to bus-event-driven incremental firing.
package reason

import (
	"sync"
	"sync/atomic"
	"time"

	"noeta/internal/bus"
	"noeta/internal/events"
	"noeta/internal/kb"
	"noeta/internal/rulestore"
	"noeta/internal/term"
	"noeta/internal/tms"
)

// derivedDecay is DERIVED_DECAY from spec.md §4.6: every firing's priority
// is this fraction of its lowest-priority parent.
const derivedDecay = 0.95

// KBProvider is the narrow view of the Cognition facade's per-context KBs
// the reasoners need.
type KBProvider interface {
	KBFor(contextID string) (*kb.KB, bool)
}

// Config holds the reasoner-wide tunables of spec.md §4.6 / §6.5.
type Config struct {
	DepthLimit   int
	QueryTimeout time.Duration
}

// DefaultConfig returns spec.md's defaults: reasoningDepthLimit=4,
// queryTimeoutMs=60000.
func DefaultConfig() Config { return Config{DepthLimit: 4, QueryTimeout: 60 * time.Second} }

// Engine runs all four reasoner strategies against one Bus/KBProvider/
// Store/TMS quartet.
type Engine struct {
	bus   *bus.Bus
	kbs   KBProvider
	rules *rulestore.Store
	tms   *tms.TMS
	cfg   Config

	tick int64 // atomic monotonic assertion timestamp source

	fwdMu      sync.Mutex
	fwdMatches map[string][]*partialMatch // rule id -> live partial matches

	univMu     sync.Mutex
	univByHead map[string][]*universalEntry // body head operator -> registered universals

	dlgMu sync.Mutex
	dlg   map[string]chan term.Term // dialogue id -> response channel
}

// New creates an Engine. cfg's zero fields fall back to DefaultConfig.
func New(b *bus.Bus, kbs KBProvider, rules *rulestore.Store, tm *tms.TMS, cfg Config) *Engine {
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = DefaultConfig().DepthLimit
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	return &Engine{
		bus: b, kbs: kbs, rules: rules, tms: tm, cfg: cfg,
		fwdMatches: make(map[string][]*partialMatch),
		univByHead: make(map[string][]*universalEntry),
		dlg:        make(map[string]chan term.Term),
	}
}

func (e *Engine) nextTick() int64 { return atomic.AddInt64(&e.tick, 1) }

// Start subscribes every reasoner strategy to the bus and returns a
// function that unsubscribes all of them.
func (e *Engine) Start() func() {
	unsubs := []func(){
		e.bus.Subscribe(e.onAssertedForward, events.TypeAsserted),
		e.bus.Subscribe(e.onAssertedRewrite, events.TypeAsserted),
		e.bus.Subscribe(e.onAssertedUniversal, events.TypeAsserted),
		e.bus.Subscribe(e.onRetractedForward, events.TypeRetracted),
		e.bus.Subscribe(e.onQuery, events.TypeQuery),
		e.bus.Subscribe(e.onDialogueResponse, events.TypeDialogueResponse),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// deriveAndCommit implements the shared firing contract of spec.md §4.6:
// depth/priority computation, the depth-limit drop, dedup against an
// existing active assertion with the same canonical form (which instead
// just records the new justification set), and commit + TMS record for a
// genuinely new derivation.
func (e *Engine) deriveAndCommit(contextID string, kifTerm term.Term, parents []*events.Assertion, sourceID string, typ events.AssertionType, quantifiedVars []string) {
	if len(parents) == 0 {
		return
	}
	depth := 0
	minPriority := parents[0].Priority
	parentIDs := make([]string, 0, len(parents))
	for _, p := range parents {
		if p.DerivationDepth+1 > depth {
			depth = p.DerivationDepth + 1
		}
		if p.Priority < minPriority {
			minPriority = p.Priority
		}
		parentIDs = append(parentIDs, p.ID)
	}
	if depth > e.cfg.DepthLimit {
		return
	}

	store, ok := e.kbs.KBFor(contextID)
	if !ok {
		return
	}

	if existing, found := store.Lookup(kifTerm); found {
		e.tms.Record(existing, parentIDs)
		return
	}

	a := &events.Assertion{
		Kif: kifTerm, Priority: derivedDecay * minPriority, Timestamp: e.nextTick(),
		SourceID: sourceID, JustificationIDs: parentIDs, Type: typ,
		QuantifiedVars: quantifiedVars, DerivationDepth: depth,
	}
	res, err := store.Commit(a)
	if err != nil {
		e.bus.Emit(events.Event{
			Type: events.TypeTaskUpdate, ContextID: contextID,
			TaskUpdate: &events.TaskUpdatePayload{TaskID: sourceID, Status: "ERROR", Detail: err.Error()},
		})
		return
	}
	e.tms.Record(res.Assertion, parentIDs)
}

func (e *Engine) registerDialogue(id string, ch chan term.Term) {
	e.dlgMu.Lock()
	e.dlg[id] = ch
	e.dlgMu.Unlock()
}

func (e *Engine) unregisterDialogue(id string) {
	e.dlgMu.Lock()
	delete(e.dlg, id)
	e.dlgMu.Unlock()
}

func (e *Engine) onDialogueResponse(ev events.Event) {
	if ev.DialogueResponse == nil {
		return
	}
	e.dlgMu.Lock()
	ch, ok := e.dlg[ev.DialogueResponse.DialogueID]
	e.dlgMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ev.DialogueResponse.Response:
	default:
	}
}
