package reason

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"noeta/internal/errs"
	"noeta/internal/events"
	"noeta/internal/kb"
	"noeta/internal/rulestore"
	"noeta/internal/term"
	"noeta/internal/unify"
)

// onQuery handles a Query event by running backward chaining in its own
// goroutine, so one slow or suspended proof never blocks this
// subscriber's FIFO from delivering the next Query (spec.md §4.6.4,
// §4.7).
func (e *Engine) onQuery(ev events.Event) {
	if ev.Query == nil {
		return
	}
	go e.handleQuery(ev.Query)
}

func (e *Engine) handleQuery(q *events.QueryPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.QueryTimeout)
	defer cancel()

	contextID := q.TargetKbID
	if contextID == "" {
		contextID = kb.GlobalContextID
	}

	results, err := e.prove(ctx, contextID, q.Pattern, unify.Bindings{}, nil, 0)

	status := events.StatusFailure
	var bindingsOut []map[string]term.Term
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		status = events.StatusTimeout
	case err != nil && len(results) == 0:
		status = events.StatusError
	case len(results) > 0:
		status = events.StatusSuccess
		for _, θ := range results {
			bindingsOut = append(bindingsOut, projectBindings(θ, q.Pattern))
		}
	}

	e.bus.Emit(events.Event{
		Type: events.TypeAnswer,
		Answer: &events.AnswerPayload{
			QueryID: q.QueryID, Bindings: bindingsOut, Status: status,
		},
	})
}

func projectBindings(θ unify.Bindings, pattern term.Term) map[string]term.Term {
	out := make(map[string]term.Term)
	for v := range pattern.Vars() {
		out[v] = unify.Subst(term.Var(v), θ)
	}
	return out
}

// prove implements backward chaining (spec.md §4.6.4): leaf solutions come
// from active assertions unifying with the goal; rules whose consequent
// unifies with the goal push the antecedent as a subgoal. Cycle detection
// refuses to re-expand a goal whose canonical (renaming-invariant) form is
// already on stack; reasoningDepthLimit bounds rule expansions.
func (e *Engine) prove(ctx context.Context, contextID string, goal term.Term, θ unify.Bindings, stack []term.Term, depth int) ([]unify.Bindings, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	resolved := unify.Subst(goal, θ)

	// (ask-user ?Var prompt): suspends the proof and resumes from a
	// DialogueResponse. The literal grammar in spec.md §4.6.4 is
	// (ask-user prompt); binding a value back into the proof requires
	// naming a target variable, so the first argument here is that
	// variable (see DESIGN.md's open-question resolution).
	if resolved.IsLst() && resolved.Head() == "ask-user" && resolved.Arity() == 3 {
		return e.proveAskUser(ctx, resolved, θ)
	}

	canon := term.KIF(canonicalizeGoal(resolved))
	for _, s := range stack {
		if term.KIF(canonicalizeGoal(s)) == canon {
			return nil, errs.New(errs.KindCycleDetected, "cyclic goal: "+canon)
		}
	}
	nextStack := append(append([]term.Term(nil), stack...), resolved)

	if resolved.IsLst() && resolved.Head() == "and" {
		return e.proveConjunction(ctx, contextID, resolved.Children()[1:], θ, nextStack, depth)
	}

	var results []unify.Bindings

	if store, ok := e.kbs.KBFor(contextID); ok {
		for _, a := range store.FindCandidates(resolved) {
			if merged, ok := unify.Unify(resolved, a.Kif, θ); ok {
				results = append(results, merged)
			}
		}
	}

	if depth < e.cfg.DepthLimit {
		for _, r := range e.rules.All(rulestore.KindImplication) {
			if r.Kind != rulestore.KindImplication {
				continue
			}
			// Expansions nested in one proof share θ, so each expansion
			// gets its own renaming of the rule's variables.
			renamed, _ := unify.Rename(term.Lst(r.Antecedent, r.Consequent), unify.FreshCounter())
			merged, ok := unify.Unify(renamed.Child(1), resolved, θ)
			if !ok {
				continue
			}
			sub, err := e.prove(ctx, contextID, renamed.Child(0), merged, nextStack, depth+1)
			if err != nil {
				continue // this branch fails; others continue (spec.md §7)
			}
			results = append(results, sub...)
		}
	}

	return results, nil
}

func (e *Engine) proveConjunction(ctx context.Context, contextID string, conjuncts []term.Term, θ unify.Bindings, stack []term.Term, depth int) ([]unify.Bindings, error) {
	if len(conjuncts) == 0 {
		return []unify.Bindings{θ}, nil
	}
	heads, err := e.prove(ctx, contextID, conjuncts[0], θ, stack, depth)
	if err != nil {
		return nil, err
	}
	var out []unify.Bindings
	for _, h := range heads {
		rest, err := e.proveConjunction(ctx, contextID, conjuncts[1:], h, stack, depth)
		if err != nil {
			continue
		}
		out = append(out, rest...)
	}
	return out, nil
}

func (e *Engine) proveAskUser(ctx context.Context, goal term.Term, θ unify.Bindings) ([]unify.Bindings, error) {
	targetVar := goal.Child(1)
	promptTerm := goal.Child(2)

	dialogueID := uuid.NewString()
	respCh := make(chan term.Term, 1)
	e.registerDialogue(dialogueID, respCh)
	defer e.unregisterDialogue(dialogueID)

	prompt := promptTerm.Name()
	if unquoted, err := strconv.Unquote(prompt); err == nil {
		prompt = unquoted
	}
	e.bus.Emit(events.Event{
		Type: events.TypeDialogueRequest,
		DialogueRequest: &events.DialogueRequestPayload{
			DialogueID: dialogueID, Prompt: prompt,
		},
	})

	select {
	case resp := <-respCh:
		merged, ok := unify.Unify(targetVar, resp, θ)
		if !ok {
			return nil, nil
		}
		return []unify.Bindings{merged}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// canonicalizeGoal renames every variable in t to a position-based name so
// two goals that are identical modulo variable renaming produce equal KIF
// text, for the cycle check of spec.md §4.6.4.
func canonicalizeGoal(t term.Term) term.Term {
	mapping := make(map[string]term.Term)
	counter := 0
	var walk func(term.Term) term.Term
	walk = func(x term.Term) term.Term {
		switch x.Kind() {
		case term.KindVar:
			if v, ok := mapping[x.Name()]; ok {
				return v
			}
			counter++
			v := term.Var(fmt.Sprintf("_c%d", counter))
			mapping[x.Name()] = v
			return v
		case term.KindLst:
			children := x.Children()
			out := make([]term.Term, len(children))
			for i, c := range children {
				out[i] = walk(c)
			}
			return term.Lst(out...)
		default:
			return x
		}
	}
	return walk(t)
}
