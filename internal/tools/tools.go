// Package tools implements the runTool side of spec.md §6.3's Client
// Message Protocol: a registry of named Go closures invoked when a
// (runTool name paramsJson) assertion is committed, publishing a
// TaskUpdate event with the outcome. Grounded directly on the teacher's
// internal/core/tool_registry.go ToolRegistry (mutex-guarded name->Tool
// map, RegisterTool/GetTool/ListTools shape), adapted from "shell
// command + kernel fact injection" to "Go closure invoked on an Asserted
// event whose head is runTool."
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"noeta/internal/bus"
	"noeta/internal/events"
	"noeta/internal/logging"
	"noeta/internal/term"
)

// Tool is a collaborator-registered action invoked by name with decoded
// JSON parameters (spec.md §6.3's runTool { name, parameters }).
type Tool func(ctx context.Context, params map[string]any) (any, error)

// Registry is the name -> Tool map subscribed to the bus.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	bus   *bus.Bus

	unsubscribe func()
}

// New creates a Registry bound to b. Call Start to begin listening for
// runTool assertions.
func New(b *bus.Bus) *Registry {
	return &Registry{tools: make(map[string]Tool), bus: b}
}

// Register installs fn under name, replacing any existing registration.
func (r *Registry) Register(name string, fn Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Unregister removes name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the Tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Start subscribes to Asserted events and runs the matching tool
// (if any is registered) whenever a (runTool name paramsJson) assertion
// is committed. It returns a stop function.
func (r *Registry) Start() func() {
	r.unsubscribe = r.bus.Subscribe(r.onAsserted, events.TypeAsserted)
	return r.unsubscribe
}

func (r *Registry) onAsserted(ev events.Event) {
	if ev.Asserted == nil {
		return
	}
	a := ev.Asserted
	if a.Kif.Head() != "runTool" {
		return
	}
	if a.Kif.Arity() != 3 {
		logging.ToolsDebug("malformed runTool assertion %s: expected arity 3, got %d", a.ID, a.Kif.Arity())
		return
	}

	name, err := atomString(a.Kif.Child(1))
	if err != nil {
		logging.ToolsDebug("runTool %s: bad name argument: %v", a.ID, err)
		return
	}
	paramsJSON, err := atomString(a.Kif.Child(2))
	if err != nil {
		logging.ToolsDebug("runTool %s: bad parameters argument: %v", a.ID, err)
		return
	}

	var params map[string]any
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			r.publishTaskUpdate(a.ID, "ERROR", fmt.Sprintf("invalid tool parameters: %v", err))
			return
		}
	}

	fn, ok := r.Get(name)
	if !ok {
		r.publishTaskUpdate(a.ID, "ERROR", "no such tool: "+name)
		return
	}

	logging.Tools("invoking tool %s (assertion %s)", name, a.ID)
	result, err := fn(context.Background(), params)
	if err != nil {
		r.publishTaskUpdate(a.ID, "ERROR", err.Error())
		return
	}

	detail := ""
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			detail = string(b)
		} else {
			detail = fmt.Sprintf("%v", result)
		}
	}
	r.publishTaskUpdate(a.ID, "DONE", detail)
}

func (r *Registry) publishTaskUpdate(taskID, status, detail string) {
	r.bus.Emit(events.Event{
		Type:       events.TypeTaskUpdate,
		TaskUpdate: &events.TaskUpdatePayload{TaskID: taskID, Status: status, Detail: detail},
	})
}

// RunToolTerm builds the (runTool name paramsJson) assertion form used by
// internal/transport when it receives a runTool client message.
func RunToolTerm(name string, params map[string]any) (term.Term, error) {
	paramsJSON := "{}"
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return term.Term{}, fmt.Errorf("tools: marshal params: %w", err)
		}
		paramsJSON = string(b)
	}
	return term.Lst(term.Atom("runTool"), quotedAtom(name), quotedAtom(paramsJSON)), nil
}

func quotedAtom(s string) term.Term { return term.Atom(strconv.Quote(s)) }

func atomString(t term.Term) (string, error) {
	if !t.IsAtom() {
		return "", fmt.Errorf("expected a quoted string atom")
	}
	s, err := strconv.Unquote(t.Name())
	if err != nil {
		return "", fmt.Errorf("expected a quoted string atom: %w", err)
	}
	return s, nil
}
