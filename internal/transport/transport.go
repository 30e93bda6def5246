// Package transport implements the Client Message Protocol of spec.md
// §6.3 over a WebSocket connection, plus a static file server for any
// bundled collaborator UI. Grounded on the teacher's internal/mcp
// transport-per-file layout (transport_http.go, transport_sse.go,
// transport_stdio.go — each a self-contained wire adapter around the
// same MCPTransport shape); here there is exactly one wire shape
// (WebSocket), so it lives in one file rather than split by transport
// kind. Uses github.com/gorilla/websocket, a pack-wide indirect
// dependency promoted to direct since it is imported here directly.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"noeta/internal/cognition"
	"noeta/internal/events"
	"noeta/internal/logging"
	"noeta/internal/term"
	"noeta/internal/tools"
)

// pushedEventTypes are the bus events a connected client is kept live on,
// outside the direct request/response acks dispatch already returns
// (SPEC_FULL.md §4.12). Query answers are not pushed: they come back in
// the query message's own response. DialogueRequest and TaskUpdate are
// pushed, since a collaborator has no other way to learn a proof
// suspended on (ask-user ...) or that an async runTool finished.
var pushedEventTypes = []events.Type{
	events.TypeAsserted,
	events.TypeRetracted,
	events.TypeSystemStatus,
	events.TypeDialogueRequest,
	events.TypeTaskUpdate,
}

// outboundQueueDepth bounds each connection's push FIFO; a client that
// falls behind has frames dropped rather than stalling the bus (spec.md
// §5's no-drop guarantee covers bus delivery to this subscriber, not this
// subscriber's own onward delivery to a slow network peer).
const outboundQueueDepth = 256

// Server serves the Client Message Protocol over WebSocket and, if
// StaticDir is set, a static file tree alongside it.
type Server struct {
	Cog       *cognition.Cognition
	StaticDir string

	upgrader websocket.Upgrader
}

// New creates a Server bound to cog.
func New(cog *cognition.Cognition, staticDir string) *Server {
	return &Server{
		Cog:       cog,
		StaticDir: staticDir,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// Handler returns the http.Handler serving both the WebSocket endpoint
// (/ws) and, if configured, the static file tree at "/".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	if s.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.StaticDir)))
	}
	return mux
}

// ListenAndServe starts an HTTP server on addr serving Handler(). It
// blocks until the server stops or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.TransportDebug("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	logging.Transport("client connected from %s", r.RemoteAddr)

	outbound := make(chan []byte, outboundQueueDepth)
	unsubscribe := s.Cog.Bus.Subscribe(func(ev events.Event) {
		raw, err := events.Marshal(ev)
		if err != nil {
			logging.TransportDebug("marshal push event %s: %v", ev.Type, err)
			return
		}
		frame, err := json.Marshal(pushFrame{Kind: "event", Event: raw})
		if err != nil {
			logging.TransportDebug("wrap push event %s: %v", ev.Type, err)
			return
		}
		select {
		case outbound <- frame:
		default:
			logging.TransportDebug("client %s outbound queue full, dropping %s event", r.RemoteAddr, ev.Type)
		}
	}, pushedEventTypes...)

	// outbound is never closed: the push subscriber above keeps sending to
	// it (non-blocking) until its own teardown drains, and a close here
	// would race a send-on-closed-channel panic against that drain. quit
	// stops the writer goroutine instead.
	quit := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case frame := <-outbound:
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					logging.TransportDebug("push write to client %s failed: %v", r.RemoteAddr, err)
					return
				}
			case <-quit:
				return
			}
		}
	}()

	for {
		var env clientEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			logging.TransportDebug("client %s disconnected: %v", r.RemoteAddr, err)
			break
		}
		resp := s.dispatch(r.Context(), env)
		resp.Kind = "response"
		respFrame, err := json.Marshal(resp)
		if err != nil {
			logging.TransportDebug("marshal response to client %s: %v", r.RemoteAddr, err)
			continue
		}
		select {
		case outbound <- respFrame:
		default:
			logging.TransportDebug("client %s outbound queue full, dropping response", r.RemoteAddr)
		}
	}

	unsubscribe()
	close(quit)
	<-writerDone
}

// clientEnvelope is the collaborator-facing request shape (spec.md §6.3):
// a "type" discriminator plus whichever fields that message kind uses.
type clientEnvelope struct {
	Type string `json:"type"`

	// assertKif
	KifStrings []string `json:"kifStrings,omitempty"`

	// query
	QueryType   string `json:"queryType,omitempty"`
	KifPattern  string `json:"kifPattern,omitempty"`
	TargetKbID  string `json:"targetKbId,omitempty"`

	// retract
	RetractType string `json:"retractType,omitempty"`
	Target      string `json:"target,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ContextID   string `json:"contextId,omitempty"`

	// runTool
	Name       string         `json:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// dialogueResponse
	DialogueID   string `json:"dialogueId,omitempty"`
	ResponseData string `json:"responseData,omitempty"`
}

// serverResponse is the direct reply to one clientEnvelope. pushFrame is
// the other outbound frame shape (an unsolicited bus event); both carry a
// "kind" discriminator so a collaborator's read loop can tell which one it
// just received off the shared connection.
type serverResponse struct {
	Kind     string              `json:"kind"`
	Status   string              `json:"status"`
	Error    string              `json:"error,omitempty"`
	Count    int                 `json:"count,omitempty"`
	Bindings []map[string]string `json:"bindings,omitempty"`
}

type pushFrame struct {
	Kind  string          `json:"kind"`
	Event json.RawMessage `json:"event"`
}

func (s *Server) dispatch(ctx context.Context, env clientEnvelope) serverResponse {
	switch env.Type {
	case "assertKif":
		return s.handleAssertKif(env)
	case "query":
		return s.handleQuery(ctx, env)
	case "retract":
		return s.handleRetract(env)
	case "runTool":
		return s.handleRunTool(env)
	case "dialogueResponse":
		return s.handleDialogueResponse(env)
	default:
		return serverResponse{Status: "error", Error: "unknown message type: " + env.Type}
	}
}

func (s *Server) handleAssertKif(env clientEnvelope) serverResponse {
	parsed := 0
	for _, k := range env.KifStrings {
		t, err := term.Parse(k)
		if err != nil {
			return serverResponse{Status: "error", Error: err.Error(), Count: parsed}
		}
		if err := s.Cog.AddKIF(t, "transport", ""); err != nil {
			return serverResponse{Status: "error", Error: err.Error(), Count: parsed}
		}
		parsed++
	}
	return serverResponse{Status: "ok", Count: parsed}
}

func (s *Server) handleQuery(ctx context.Context, env clientEnvelope) serverResponse {
	pattern, err := term.Parse(env.KifPattern)
	if err != nil {
		return serverResponse{Status: "error", Error: err.Error()}
	}
	result := s.Cog.QuerySync(ctx, events.QueryType(env.QueryType), pattern, env.TargetKbID)

	bindings := make([]map[string]string, 0, len(result.Bindings))
	for _, b := range result.Bindings {
		row := make(map[string]string, len(b))
		for k, v := range b {
			row[k] = term.KIF(v)
		}
		bindings = append(bindings, row)
	}
	status := "ok"
	if result.Status != events.StatusSuccess {
		status = "error"
	}
	return serverResponse{Status: status, Error: string(result.Status), Bindings: bindings}
}

func (s *Server) handleRetract(env clientEnvelope) serverResponse {
	if err := s.Cog.Retract(events.RetractKind(env.RetractType), env.Target, env.Reason, env.ContextID); err != nil {
		return serverResponse{Status: "error", Error: err.Error()}
	}
	return serverResponse{Status: "ok"}
}

// handleRunTool routes the client's runTool message into the reasoning
// core as a (runTool name paramsJson) assertion; internal/tools.Registry
// picks it up from there and publishes the resulting TaskUpdate (spec.md
// §6.3: "core only routes by publishing a TaskUpdate").
func (s *Server) handleRunTool(env clientEnvelope) serverResponse {
	form, err := tools.RunToolTerm(env.Name, env.Parameters)
	if err != nil {
		return serverResponse{Status: "error", Error: err.Error()}
	}
	if _, err := s.Cog.AddInput(form, "transport", ""); err != nil {
		return serverResponse{Status: "error", Error: err.Error()}
	}
	return serverResponse{Status: "ok"}
}

func (s *Server) handleDialogueResponse(env clientEnvelope) serverResponse {
	response, err := term.Parse(env.ResponseData)
	if err != nil {
		return serverResponse{Status: "error", Error: err.Error()}
	}
	s.Cog.Bus.Emit(events.Event{
		Type: events.TypeDialogueResponse,
		DialogueResponse: &events.DialogueResponsePayload{
			DialogueID: env.DialogueID, Response: response,
		},
	})
	return serverResponse{Status: "ok"}
}
