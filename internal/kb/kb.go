// Package kb implements a per-context knowledge base: an indexed store of
// Assertions keyed by KIF form, priority ordering, and bounded capacity
// with eviction (spec.md §3.4, §4.3). Grounded on the teacher's
// internal/mangle/engine.go Engine — a mutex-guarded fact store with a
// predicate-head index and fact-limit warnings — generalized from
// "reject over budget" to "evict the lowest-priority evictable
// assertion."
package kb

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"noeta/internal/errs"
	"noeta/internal/events"
	"noeta/internal/term"
)

// Config holds per-KB tunables (spec.md §3.4).
type Config struct {
	Capacity int
	// PinThreshold: assertions whose priority is >= this are never
	// evicted. Default 1.0, which — combined with DerivedDecay < 1 in
	// internal/reason — pins input facts while leaving derived
	// assertions evictable, matching spec.md §4.3's "inputs stay unless
	// manually retracted" default.
	PinThreshold float64
}

// DefaultConfig returns spec.md §3.4's defaults.
func DefaultConfig() Config { return Config{Capacity: 64 * 1024, PinThreshold: 1.0} }

// Emitter is the narrow bus dependency the KB needs.
type Emitter interface {
	Emit(events.Event)
}

// DependencyChecker lets the KB consult the TMS's justification graph
// before evicting, without the KB importing the TMS package directly
// (spec.md §4.3's eviction-forbidden conditions).
type DependencyChecker interface {
	// HasActiveDependents reports whether any active assertion's
	// justifications include id.
	HasActiveDependents(id string) bool
	// JustifiesActiveUniversal reports whether id is a justifier of an
	// active UNIVERSAL assertion — eviction of such an assertion is
	// forbidden (spec.md §9's open-question resolution) because it
	// would leave a dangling universal instantiation.
	JustifiesActiveUniversal(id string) bool
}

type noopChecker struct{}

func (noopChecker) HasActiveDependents(string) bool     { return false }
func (noopChecker) JustifiesActiveUniversal(string) bool { return false }

// KB is a single context's knowledge base.
type KB struct {
	mu        sync.RWMutex
	contextID string
	cfg       Config
	emitter   Emitter
	deps      DependencyChecker

	byID      map[string]*events.Assertion
	byKifText map[string]*events.Assertion // canonical KIF text -> active assertion, for duplicate detection
	headIndex map[string]map[string]bool   // head operator -> set of ids
}

// GlobalContextID is the distinguished global context (spec.md §3.4).
const GlobalContextID = "kb://global"

// New creates a KB for contextID.
func New(contextID string, cfg Config, emitter Emitter) *KB {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	return &KB{
		contextID: contextID,
		cfg:       cfg,
		emitter:   emitter,
		deps:      noopChecker{},
		byID:      make(map[string]*events.Assertion),
		byKifText: make(map[string]*events.Assertion),
		headIndex: make(map[string]map[string]bool),
	}
}

// SetDependencyChecker wires the TMS lookup used during eviction.
func (k *KB) SetDependencyChecker(d DependencyChecker) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if d == nil {
		d = noopChecker{}
	}
	k.deps = d
}

func (k *KB) ContextID() string { return k.contextID }

// CommitResult reports the outcome of Commit (spec.md §4.3).
type CommitResult struct {
	Assertion *events.Assertion
	Promoted  bool // true if an existing duplicate was promoted instead of inserting a
	Evicted   []*events.Assertion
}

// Commit canonicalizes and stores a, handling duplicate promotion and
// capacity eviction (spec.md §4.3).
func (k *KB) Commit(a *events.Assertion) (*CommitResult, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	kifText := term.KIF(a.Kif)

	k.mu.Lock()
	defer k.mu.Unlock()

	if existing, ok := k.byKifText[kifText]; ok && existing.IsActive {
		if existing.SourceID != a.SourceID && !containsSource(existing.SourceID, a.SourceID) {
			existing.SourceID = existing.SourceID + ";" + a.SourceID
		}
		return &CommitResult{Assertion: existing, Promoted: true}, nil
	}

	var evicted []*events.Assertion
	if len(k.byID) >= k.cfg.Capacity {
		victim := k.pickEvictionCandidate()
		if victim == nil {
			return nil, errs.New(errs.KindKBFull, "knowledge base at capacity with no evictable assertion: "+k.contextID)
		}
		k.evictLocked(victim, "capacity")
		evicted = append(evicted, victim)
	}

	a.KB = k.contextID
	a.IsActive = true
	k.byID[a.ID] = a
	k.byKifText[kifText] = a
	k.indexHeadLocked(a)

	if k.emitter != nil {
		k.emitter.Emit(events.Event{Type: events.TypeAsserted, ContextID: k.contextID, Asserted: a})
	}
	for _, e := range evicted {
		if k.emitter != nil {
			k.emitter.Emit(events.Event{
				Type: events.TypeAssertionEvicted, ContextID: k.contextID,
				AssertionEvicted: &events.AssertionEvictedPayload{AssertionID: e.ID, Reason: "capacity"},
			})
		}
	}
	return &CommitResult{Assertion: a, Evicted: evicted}, nil
}

func containsSource(existing, candidate string) bool {
	for _, s := range splitSources(existing) {
		if s == candidate {
			return true
		}
	}
	return false
}

func splitSources(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (k *KB) indexHeadLocked(a *events.Assertion) {
	head := a.Kif.Head()
	if head == "" {
		return
	}
	set, ok := k.headIndex[head]
	if !ok {
		set = make(map[string]bool)
		k.headIndex[head] = set
	}
	set[a.ID] = true
}

func (k *KB) unindexHeadLocked(a *events.Assertion) {
	head := a.Kif.Head()
	if head == "" {
		return
	}
	if set, ok := k.headIndex[head]; ok {
		delete(set, a.ID)
	}
}

// pickEvictionCandidate scans active assertions below the pin threshold,
// excludes those with active dependents or that justify an active
// UNIVERSAL, and returns the one with the lowest (priority, timestamp)
// (spec.md §4.3; tie-break per spec.md §8 scenario S5: earliest
// timestamp). Caller holds k.mu.
func (k *KB) pickEvictionCandidate() *events.Assertion {
	var candidates []*events.Assertion
	for _, a := range k.byID {
		if !a.IsActive {
			continue
		}
		if a.Priority >= k.cfg.PinThreshold {
			continue
		}
		if k.deps.HasActiveDependents(a.ID) {
			continue
		}
		if k.deps.JustifiesActiveUniversal(a.ID) {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Timestamp < candidates[j].Timestamp
	})
	return candidates[0]
}

func (k *KB) evictLocked(a *events.Assertion, reason string) {
	a.IsActive = false
	delete(k.byID, a.ID)
	delete(k.byKifText, term.KIF(a.Kif))
	k.unindexHeadLocked(a)
}

// Remove deletes id from indices and emits Retracted (spec.md §4.3). The
// TMS is the normal caller.
func (k *KB) Remove(id, reason string) error {
	k.mu.Lock()
	a, ok := k.byID[id]
	if !ok {
		k.mu.Unlock()
		return nil
	}
	a.IsActive = false
	delete(k.byID, id)
	delete(k.byKifText, term.KIF(a.Kif))
	k.unindexHeadLocked(a)
	k.mu.Unlock()

	if k.emitter != nil {
		k.emitter.Emit(events.Event{
			Type: events.TypeRetracted, ContextID: k.contextID,
			Retracted: &events.RetractedPayload{AssertionID: id, Reason: reason},
		})
	}
	return nil
}

// Get returns the assertion for id regardless of active state.
func (k *KB) Get(id string) (*events.Assertion, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	a, ok := k.byID[id]
	return a, ok
}

// Lookup returns the active assertion whose canonical KIF form equals t, if
// any — used by the reasoners for dedup-by-canonical-form (spec.md §4.6).
func (k *KB) Lookup(t term.Term) (*events.Assertion, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	a, ok := k.byKifText[term.KIF(t)]
	return a, ok
}

// FindByOperatorHead returns active assertions whose kif head is op, in
// priority order (spec.md §4.3).
func (k *KB) FindByOperatorHead(op string) []*events.Assertion {
	k.mu.RLock()
	defer k.mu.RUnlock()
	set, ok := k.headIndex[op]
	if !ok {
		return nil
	}
	out := make([]*events.Assertion, 0, len(set))
	for id := range set {
		if a, ok := k.byID[id]; ok && a.IsActive {
			out = append(out, a)
		}
	}
	sortByPriority(out)
	return out
}

// FindCandidates returns active assertions matching pattern's shape: if
// pattern's head is a ground atom, narrow via the head index, else a full
// scan. Always returned in priority order (spec.md §4.3).
func (k *KB) FindCandidates(pattern term.Term) []*events.Assertion {
	if pattern.IsLst() && pattern.Arity() > 0 {
		if head := pattern.Head(); head != "" {
			return k.FindByOperatorHead(head)
		}
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*events.Assertion, 0, len(k.byID))
	for _, a := range k.byID {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sortByPriority(out)
	return out
}

// Drain returns every active assertion, for persistence (spec.md §4.3).
func (k *KB) Drain() []*events.Assertion {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*events.Assertion, 0, len(k.byID))
	for _, a := range k.byID {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sortByPriority(out)
	return out
}

// Len returns the number of active assertions (spec.md §8 property 4).
func (k *KB) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.byID)
}

func sortByPriority(as []*events.Assertion) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Priority != as[j].Priority {
			return as[i].Priority > as[j].Priority
		}
		return as[i].Timestamp < as[j].Timestamp
	})
}
