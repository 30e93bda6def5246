// Package cognition implements the Cognition facade of spec.md §4.8: the
// owner of the contextId -> KB map, the global Rule Store, and the TMS,
// wired to the reasoner strategies and query engine over one event bus.
// Grounded on the teacher's Engine type in internal/mangle/engine.go,
// which plays the same "one owned container wired to everything else"
// role for its Datalog evaluator.
package cognition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"noeta/internal/bus"
	"noeta/internal/config"
	"noeta/internal/errs"
	"noeta/internal/events"
	"noeta/internal/kb"
	"noeta/internal/logging"
	"noeta/internal/notes"
	"noeta/internal/persistence"
	"noeta/internal/query"
	"noeta/internal/reason"
	"noeta/internal/rulestore"
	"noeta/internal/term"
	"noeta/internal/tms"
)

// Config holds spec.md §6.5's recognized configuration options.
type Config struct {
	GlobalKBCapacity         int
	NoteKBCapacity           int
	ReasoningDepthLimit      int
	BroadcastInputAssertions bool
	ContradictionPolicy      tms.ContradictionPolicy
	QueryTimeout             time.Duration
}

// DefaultConfig returns spec.md §6.5's documented defaults.
func DefaultConfig() Config {
	return Config{
		GlobalKBCapacity:         65536,
		NoteKBCapacity:           4096,
		ReasoningDepthLimit:      4,
		BroadcastInputAssertions: false,
		ContradictionPolicy:      tms.PreferOld,
		QueryTimeout:             60 * time.Second,
	}
}

// Cognition owns the whole reasoning core and is the only entry point
// external collaborators (transport, tools, CLI) use (spec.md §4.8).
type Cognition struct {
	Bus   *bus.Bus
	Notes *notes.Store

	cfg   Config
	rules *rulestore.Store
	tms   *tms.TMS
	rzn   *reason.Engine
	qry   *query.Engine

	mu  sync.RWMutex
	kbs map[string]*kb.KB

	tick       int64
	stopReason func()
}

// FromFileConfig adapts a loaded internal/config.Config into the Config
// shape New expects, so cmd/noeta can wire one straight from config.Load.
func FromFileConfig(fc config.Config) Config {
	return Config{
		GlobalKBCapacity:         fc.KB.GlobalCapacity,
		NoteKBCapacity:           fc.KB.NoteCapacity,
		ReasoningDepthLimit:      fc.Reasoning.DepthLimit,
		BroadcastInputAssertions: fc.Reasoning.BroadcastInputAssertions,
		ContradictionPolicy:      fc.ContradictionPolicy(),
		QueryTimeout:             time.Duration(fc.Query.TimeoutMs) * time.Millisecond,
	}
}

// ToFileConfig is FromFileConfig's inverse, used when saving a snapshot
// (spec.md §6.4's "plus a configuration object").
func ToFileConfig(cc Config) config.Config {
	fc := config.DefaultConfig()
	fc.KB.GlobalCapacity = cc.GlobalKBCapacity
	fc.KB.NoteCapacity = cc.NoteKBCapacity
	fc.Reasoning.DepthLimit = cc.ReasoningDepthLimit
	fc.Reasoning.BroadcastInputAssertions = cc.BroadcastInputAssertions
	switch cc.ContradictionPolicy {
	case tms.PreferNew:
		fc.Reasoning.ContradictionPolicy = "prefer_new"
	case tms.FlagBoth:
		fc.Reasoning.ContradictionPolicy = "flag_both"
	default:
		fc.Reasoning.ContradictionPolicy = "prefer_old"
	}
	fc.Query.TimeoutMs = int(cc.QueryTimeout.Milliseconds())
	return fc
}

// New wires a complete Cognition facade: bus, global KB, rule store, TMS,
// reasoner strategies (started), and query engine.
func New(cfg Config) *Cognition {
	b := bus.New(256)
	c := &Cognition{Bus: b, Notes: notes.NewStore(), cfg: cfg, rules: rulestore.New(b), kbs: make(map[string]*kb.KB)}

	c.tms = tms.New(cfg.ContradictionPolicy, c, b)
	c.ensureKBLocked(kb.GlobalContextID, cfg.GlobalKBCapacity)

	c.rzn = reason.New(b, c, c.rules, c.tms, reason.Config{DepthLimit: cfg.ReasoningDepthLimit, QueryTimeout: cfg.QueryTimeout})
	c.stopReason = c.rzn.Start()
	c.qry = query.New(b)
	return c
}

// Close stops the reasoner subscriptions, the query engine, and the bus.
func (c *Cognition) Close() {
	if c.stopReason != nil {
		c.stopReason()
	}
	c.qry.Close()
	c.Bus.Stop()
}

func (c *Cognition) nextTick() int64 { return atomic.AddInt64(&c.tick, 1) }

// KBFor implements reason.KBProvider and tms.KBLookup.
func (c *Cognition) KBFor(contextID string) (*kb.KB, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.kbs[contextID]
	return k, ok
}

func (c *Cognition) ensureKBLocked(contextID string, capacity int) *kb.KB {
	if k, ok := c.kbs[contextID]; ok {
		return k
	}
	cfg := kb.Config{Capacity: capacity, PinThreshold: 1.0}
	k := kb.New(contextID, cfg, c.Bus)
	k.SetDependencyChecker(c.tms)
	c.kbs[contextID] = k
	return k
}

// EnsureKB returns the KB for contextID, creating one at the configured
// per-note capacity if it doesn't exist yet.
func (c *Cognition) EnsureKB(contextID string) *kb.KB {
	c.mu.Lock()
	defer c.mu.Unlock()
	capacity := c.cfg.NoteKBCapacity
	if contextID == kb.GlobalContextID {
		capacity = c.cfg.GlobalKBCapacity
	}
	return c.ensureKBLocked(contextID, capacity)
}

// classifyInput derives an Assertion's type and quantified vars from its
// kif's shape (spec.md §3.2): (forall (...) body) is UNIVERSAL, (not ...)
// is NEGATION, everything else is GROUND. Explicit SKOLEMIZED assertions
// are a reasoner-internal concept (universal instantiation's output is
// always re-grounded) and are never produced from raw input text.
func classifyInput(t term.Term) (events.AssertionType, []string) {
	if t.IsLst() && t.Arity() == 3 && t.Head() == "forall" {
		vars := t.Child(1)
		var names []string
		if vars.IsLst() {
			for _, v := range vars.Children() {
				if v.IsVar() {
					names = append(names, v.Name())
				}
			}
		}
		return events.Universal, names
	}
	if t.IsLst() && t.Arity() == 2 && t.Head() == "not" {
		return events.Negation, nil
	}
	return events.Ground, nil
}

// AddInput implements spec.md §4.8's addInput: parses nothing (the caller
// already has a Term), classifies it, commits it to contextID's KB (the
// global KB if contextID is ""), and records it as an input fact in the
// TMS (empty justification set).
func (c *Cognition) AddInput(t term.Term, sourceID, contextID string) (*events.Assertion, error) {
	if contextID == "" {
		contextID = kb.GlobalContextID
	}
	typ, quantifiedVars := classifyInput(t)

	if c.cfg.BroadcastInputAssertions {
		c.Bus.Emit(events.Event{
			Type: events.TypeExternalInput, ContextID: contextID,
			ExternalInput: &events.ExternalInputPayload{Kif: t, SourceID: sourceID},
		})
	}

	store := c.EnsureKB(contextID)
	a := &events.Assertion{
		Kif: t, Priority: 1.0, Timestamp: c.nextTick(), SourceID: sourceID,
		SourceNoteID: noteIDOf(contextID), Type: typ, QuantifiedVars: quantifiedVars,
	}
	res, err := store.Commit(a)
	if err != nil {
		logging.KBDebug("commit failed for context %s: %v", contextID, err)
		return nil, err
	}
	c.tms.Record(res.Assertion, nil)
	logging.KBDebug("committed %s into %s (promoted=%v)", term.KIF(t), contextID, res.Promoted)
	return res.Assertion, nil
}

func noteIDOf(contextID string) string {
	if contextID == kb.GlobalContextID {
		return ""
	}
	return contextID
}

// AddRule registers a rule form in the global Rule Store (spec.md §3.3,
// §4.5). Rules are global: they apply across every context's forward/
// backward chaining.
func (c *Cognition) AddRule(form term.Term, priority float64, sourceNoteID string) ([]*rulestore.Rule, error) {
	return c.rules.AddFromForm(form, priority, sourceNoteID)
}

// AddKIF is the single entry point the assertKif message of spec.md §6.3
// ("returns status and number parsed") routes each parsed form through: a
// bare (=> ...), (<=>...), or (= ...) form is a rule and goes to the rule
// store, everything else (including a forall-quantified (=>...), which
// classifyInput treats as a Universal assertion, not a rule) goes to
// AddInput. Collaborators never need to make this distinction themselves.
func (c *Cognition) AddKIF(t term.Term, sourceID, contextID string) error {
	if t.IsLst() && t.Arity() > 0 {
		switch t.Head() {
		case "=>", "<=>", "=":
			_, err := c.AddRule(t, 1.0, noteIDOf(contextID))
			return err
		}
	}
	_, err := c.AddInput(t, sourceID, contextID)
	return err
}

// SetContradictionPolicy changes how the TMS resolves contradictions
// detected from this point forward, without requiring a restart. Wired
// to config.Watcher so an operator editing .noeta/config.json's
// reasoning.contradiction_policy while a server is running takes effect
// live (spec.md §6.5 documents the option; nothing says it is
// restart-only).
func (c *Cognition) SetContradictionPolicy(policy tms.ContradictionPolicy) {
	c.mu.Lock()
	c.cfg.ContradictionPolicy = policy
	c.mu.Unlock()
	c.tms.SetPolicy(policy)
}

// Retract implements spec.md §4.8's retract: kind selects BY_ID, BY_KIF,
// or BY_NOTE semantics.
func (c *Cognition) Retract(kind events.RetractKind, target, reason, contextID string) error {
	logging.KBDebug("retract kind=%s target=%s reason=%s", kind, target, reason)
	switch kind {
	case events.ByID:
		c.tms.Retract(target, reason)
		return nil
	case events.ByKIF:
		return c.retractByKIF(target, reason, contextID)
	case events.ByNote:
		return c.retractByNote(target, reason)
	default:
		return errs.New(errs.KindInternalInvariantViolated, "unknown retract kind: "+string(kind))
	}
}

func (c *Cognition) retractByKIF(kifText, reason, contextID string) error {
	t, err := term.Parse(kifText)
	if err != nil {
		return errs.Wrap(errs.KindParseError, "retract by kif", err)
	}
	if contextID == "" {
		contextID = kb.GlobalContextID
	}
	store, ok := c.KBFor(contextID)
	if !ok {
		return nil
	}
	if a, found := store.Lookup(t); found {
		c.tms.Retract(a.ID, reason)
	}
	return nil
}

func (c *Cognition) retractByNote(noteID, reason string) error {
	c.mu.Lock()
	store, ok := c.kbs[noteID]
	if ok {
		delete(c.kbs, noteID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	for _, a := range store.Drain() {
		c.tms.Retract(a.ID, reason)
	}
	return nil
}

// ActiveContexts returns every context id with a live KB (spec.md §4.8).
func (c *Cognition) ActiveContexts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.kbs))
	for id := range c.kbs {
		out = append(out, id)
	}
	return out
}

// StatusSnapshot is the read-only view returned by Status (spec.md §4.8).
type StatusSnapshot struct {
	Contexts        []string
	AssertionCounts map[string]int
	RuleCount       int
}

// Status returns a freshly built copy of the facade's state, taken under
// its read lock, that the caller owns and may read from any goroutine.
func (c *Cognition) Status() StatusSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int, len(c.kbs))
	contexts := make([]string, 0, len(c.kbs))
	for id, k := range c.kbs {
		contexts = append(contexts, id)
		counts[id] = k.Len()
	}
	return StatusSnapshot{
		Contexts:        contexts,
		AssertionCounts: counts,
		RuleCount:       len(c.rules.All(rulestore.KindImplication)) + len(c.rules.All(rulestore.KindRewrite)),
	}
}

// QuerySync runs a synchronous query against the reasoning core (spec.md
// §4.7), defaulting to the configured query timeout.
func (c *Cognition) QuerySync(ctx context.Context, qt events.QueryType, pattern term.Term, targetKBID string) query.Result {
	return c.qry.QuerySync(ctx, qt, pattern, targetKBID, c.cfg.QueryTimeout)
}

// allActiveAssertions gathers every active assertion across every context
// KB, for snapshotting.
func (c *Cognition) allActiveAssertions() []*events.Assertion {
	c.mu.RLock()
	kbs := make([]*kb.KB, 0, len(c.kbs))
	for _, k := range c.kbs {
		kbs = append(kbs, k)
	}
	c.mu.RUnlock()

	var out []*events.Assertion
	for _, k := range kbs {
		out = append(out, k.Drain()...)
	}
	return out
}

func (c *Cognition) allRules() []*rulestore.Rule {
	return append(c.rules.All(rulestore.KindImplication), c.rules.All(rulestore.KindRewrite)...)
}

// Save persists the full state through codec: notes, every active
// assertion, every rule, and the configuration (spec.md §6.4).
func (c *Cognition) Save(codec persistence.Codec) error {
	snap := persistence.BuildSnapshot(c.Notes, c.allActiveAssertions(), c.allRules(), ToFileConfig(c.cfg))
	return codec.Save(snap)
}

// Load clears nothing by itself (the caller is expected to start from a
// fresh Cognition) and replays a codec's snapshot: notes first, then
// assertions as inputs (preserving original ids and justifications via
// TMS.Record), then rules (spec.md §6.4's load procedure).
func (c *Cognition) Load(codec persistence.Codec) error {
	snap, err := codec.Load()
	if err != nil {
		return err
	}

	for _, nr := range snap.Notes {
		c.Notes.Put(&notes.Note{ID: nr.ID, Title: nr.Title, Text: nr.Text, Status: notes.Status(nr.Status)})
	}

	for _, ar := range snap.Assertions {
		t, err := term.Parse(ar.Kif)
		if err != nil {
			return errs.Wrap(errs.KindParseError, "persistence: replay assertion "+ar.ID, err)
		}
		contextID := ar.KB
		if contextID == "" {
			contextID = kb.GlobalContextID
		}
		store := c.EnsureKB(contextID)
		a := &events.Assertion{
			ID: ar.ID, Kif: t, Priority: ar.Priority, Timestamp: ar.Timestamp, SourceID: ar.SourceID,
			SourceNoteID: ar.SourceNoteID, JustificationIDs: ar.JustificationIDs, Type: events.AssertionType(ar.Type),
			QuantifiedVars: ar.QuantifiedVars, DerivationDepth: ar.DerivationDepth,
		}
		res, err := store.Commit(a)
		if err != nil {
			return err
		}
		c.tms.Record(res.Assertion, ar.JustificationIDs)
	}

	for _, rr := range snap.Rules {
		form, err := term.Parse(rr.Form)
		if err != nil {
			return errs.Wrap(errs.KindParseError, "persistence: replay rule "+rr.ID, err)
		}
		if _, err := c.rules.AddFromForm(form, rr.Priority, rr.SourceNoteID); err != nil {
			return err
		}
	}

	return nil
}
