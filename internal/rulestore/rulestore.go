// Package rulestore implements the indexed Rule store described in
// spec.md §3.3, §4.5: registration with validation, head-operator
// indexing, and <=>/= desugaring. Grounded on the teacher's
// predicateIndex/rebuildProgramLocked head-indexing discipline in
// internal/mangle/engine.go.
package rulestore

import (
	"sync"

	"github.com/google/uuid"

	"noeta/internal/errs"
	"noeta/internal/events"
	"noeta/internal/term"
	"noeta/internal/unify"
)

// Kind distinguishes a plain implication rule from an equality rewrite
// rule (spec.md §3.3).
type Kind int

const (
	KindImplication Kind = iota
	KindRewrite
)

// Rule is spec.md §3.3's Rule record.
type Rule struct {
	ID           string
	Form         term.Term // original (=> ante cons) / (<=> ...) / (= lhs rhs)
	Antecedent   term.Term // Lst; for rewrite rules, the LHS
	Consequent   term.Term // Lst; for rewrite rules, the RHS
	Priority     float64
	SourceNoteID string
	Kind         Kind
}

// Store holds Rules indexed by antecedent head operator (spec.md §4.5).
type Store struct {
	mu        sync.RWMutex
	byID      map[string]*Rule
	headIndex map[string]map[string]bool // head operator (or "?" for var-headed) -> rule ids
	emitter   Emitter
}

// Emitter is the narrow bus dependency the rule store needs.
type Emitter interface {
	Emit(events.Event)
}

func New(emitter Emitter) *Store {
	return &Store{
		byID:      make(map[string]*Rule),
		headIndex: make(map[string]map[string]bool),
		emitter:   emitter,
	}
}

// varHeadKey is the index bucket used for antecedents whose head is a
// variable (spec.md §4.5: "must match any").
const varHeadKey = "\x00var-headed"

// freeVars returns the set of variable names in t.
func freeVars(t term.Term) map[string]struct{} { return t.Vars() }

func validateConsequentVars(antecedent, consequent term.Term) error {
	anteVars := freeVars(antecedent)
	for v := range freeVars(consequent) {
		if _, ok := anteVars[v]; !ok {
			return errs.New(errs.KindRuleMalformed, "free variable "+v+" in consequent does not appear in antecedent")
		}
	}
	return nil
}

// AddFromForm parses a rule form — (=> ante cons), (<=> ante cons), or
// (= lhs rhs) — into one or two Rules, validates and indexes them
// (spec.md §3.3). <=> is desugared into two => rules per spec.md §9's
// open-question resolution.
func (s *Store) AddFromForm(form term.Term, priority float64, sourceNoteID string) ([]*Rule, error) {
	if !form.IsLst() || form.Arity() != 3 {
		return nil, errs.New(errs.KindRuleMalformed, "rule form must be a 3-element list: (op ante cons)")
	}
	op := form.Head()
	ante, cons := form.Child(1), form.Child(2)

	switch op {
	case "=>":
		r, err := s.addOne(form, ante, cons, priority, sourceNoteID, KindImplication)
		if err != nil {
			return nil, err
		}
		return []*Rule{r}, nil
	case "<=>":
		r1, err := s.addOne(term.Lst(term.Atom("=>"), ante, cons), ante, cons, priority, sourceNoteID, KindImplication)
		if err != nil {
			return nil, err
		}
		r2, err := s.addOne(term.Lst(term.Atom("=>"), cons, ante), cons, ante, priority, sourceNoteID, KindImplication)
		if err != nil {
			s.Remove(r1.ID)
			return nil, err
		}
		return []*Rule{r1, r2}, nil
	case "=":
		r, err := s.addOne(form, ante, cons, priority, sourceNoteID, KindRewrite)
		if err != nil {
			return nil, err
		}
		return []*Rule{r}, nil
	default:
		return nil, errs.New(errs.KindRuleMalformed, "unrecognized rule operator: "+op)
	}
}

func (s *Store) addOne(form, antecedent, consequent term.Term, priority float64, sourceNoteID string, kind Kind) (*Rule, error) {
	if kind == KindImplication {
		if err := validateConsequentVars(antecedent, consequent); err != nil {
			return nil, err
		}
	}

	// α-rename antecedent and consequent together into a stable internal
	// form (spec.md §4.5): forward firings unify fresh Bindings maps
	// against this same renamed form, so reusing one renaming across them
	// never causes cross-firing capture. Backward chaining renames again
	// per expansion, since expansions within one proof share bindings.
	combined, _ := unify.Rename(term.Lst(antecedent, consequent), unify.FreshCounter())
	anteR, consR := combined.Child(0), combined.Child(1)

	r := &Rule{
		ID: uuid.NewString(), Form: form, Antecedent: anteR, Consequent: consR,
		Priority: priority, SourceNoteID: sourceNoteID, Kind: kind,
	}
	s.mu.Lock()
	s.byID[r.ID] = r
	s.indexLocked(r)
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.Emit(events.Event{Type: events.TypeRuleAdded, RuleAdded: &events.RulePayload{RuleID: r.ID}})
	}
	return r, nil
}

func (s *Store) indexLocked(r *Rule) {
	key := r.Antecedent.Head()
	if key == "" && r.Antecedent.IsVar() {
		key = varHeadKey
	}
	if key == "" {
		key = varHeadKey
	}
	set, ok := s.headIndex[key]
	if !ok {
		set = make(map[string]bool)
		s.headIndex[key] = set
	}
	set[r.ID] = true
}

// Remove deletes ruleID and emits RuleRemoved (spec.md §4.5).
func (s *Store) Remove(ruleID string) {
	s.mu.Lock()
	r, ok := s.byID[ruleID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.byID, ruleID)
	key := r.Antecedent.Head()
	if key == "" {
		key = varHeadKey
	}
	if set, ok := s.headIndex[key]; ok {
		delete(set, ruleID)
	}
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.Emit(events.Event{Type: events.TypeRuleRemoved, RuleRemoved: &events.RulePayload{RuleID: ruleID}})
	}
}

// Get returns the rule for id.
func (s *Store) Get(id string) (*Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	return r, ok
}

// RulesMatchingHead yields rules whose antecedent head is op or is a
// variable (spec.md §4.5), in (priority desc, rule id asc) order — the
// tie-break spec.md §9 fixes for ambiguous backward-chaining expansion.
func (s *Store) RulesMatchingHead(op string) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Rule
	if set, ok := s.headIndex[op]; ok {
		for id := range set {
			out = append(out, s.byID[id])
		}
	}
	if set, ok := s.headIndex[varHeadKey]; ok {
		for id := range set {
			out = append(out, s.byID[id])
		}
	}
	sortRules(out)
	return out
}

// ConjunctiveRules returns implication rules whose antecedent is a
// conjunction (and p1 p2 ...), in (priority desc, id asc) order — the set
// forward chaining's partial-match table tracks (spec.md §4.6.1).
func (s *Store) ConjunctiveRules() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Rule
	for _, r := range s.byID {
		if r.Kind == KindImplication && r.Antecedent.IsLst() && r.Antecedent.Head() == "and" {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out
}

// All returns every rule of the given kind, in (priority desc, id asc)
// order.
func (s *Store) All(kind Kind) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Rule
	for _, r := range s.byID {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	sortRules(out)
	return out
}

func sortRules(rs []*Rule) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0; j-- {
			a, b := rs[j-1], rs[j]
			less := a.Priority > b.Priority || (a.Priority == b.Priority && a.ID < b.ID)
			if less {
				break
			}
			rs[j-1], rs[j] = rs[j], rs[j-1]
		}
	}
}
