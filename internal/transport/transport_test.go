package transport

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"noeta/internal/cognition"
	"noeta/internal/term"
)

func newTestServer(t *testing.T) (*httptest.Server, *cognition.Cognition) {
	t.Helper()
	cog := cognition.New(cognition.DefaultConfig())
	t.Cleanup(cog.Close)

	s := New(cog, "")
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, cog
}

// wsReader reads frames off one connection and sorts them by their "kind"
// discriminator, so a test asking for the next "response" frame is never
// tripped up by a "event" push frame (or vice versa) interleaving ahead of
// it — both share one connection (SPEC_FULL.md §4.12).
type wsReader struct {
	t        *testing.T
	conn     *websocket.Conn
	buffered map[string][][]byte
}

func newWSReader(t *testing.T, conn *websocket.Conn) *wsReader {
	return &wsReader{t: t, conn: conn, buffered: make(map[string][][]byte)}
}

func (r *wsReader) take(kind string) []byte {
	r.t.Helper()
	if q := r.buffered[kind]; len(q) > 0 {
		raw := q[0]
		r.buffered[kind] = q[1:]
		return raw
	}
	r.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			r.t.Fatalf("read: %v", err)
		}
		var probe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			r.t.Fatalf("unmarshal frame: %v", err)
		}
		if probe.Kind == kind {
			return data
		}
		r.buffered[probe.Kind] = append(r.buffered[probe.Kind], data)
	}
}

func (r *wsReader) response() serverResponse {
	r.t.Helper()
	var resp serverResponse
	if err := json.Unmarshal(r.take("response"), &resp); err != nil {
		r.t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func (r *wsReader) push() pushFrame {
	r.t.Helper()
	var frame pushFrame
	if err := json.Unmarshal(r.take("event"), &frame); err != nil {
		r.t.Fatalf("unmarshal push: %v", err)
	}
	return frame
}

func dialWS(t *testing.T, srv *httptest.Server) (*websocket.Conn, *wsReader) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, newWSReader(t, conn)
}

func TestAssertKifOverWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, r := dialWS(t, srv)

	if err := conn.WriteJSON(clientEnvelope{Type: "assertKif", KifStrings: []string{"(likes tom jerry)"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := r.response()
	if resp.Status != "ok" || resp.Count != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAssertKifParseErrorReportsStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, r := dialWS(t, srv)

	if err := conn.WriteJSON(clientEnvelope{Type: "assertKif", KifStrings: []string{"(unterminated"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := r.response()
	if resp.Status != "error" {
		t.Fatalf("expected error status, got %+v", resp)
	}
}

func TestAssertKifPushesAssertedEventToConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, r := dialWS(t, srv)

	if err := conn.WriteJSON(clientEnvelope{Type: "assertKif", KifStrings: []string{"(likes tom jerry)"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	push := r.push()
	if len(push.Event) == 0 {
		t.Fatal("expected a non-empty pushed event payload")
	}
	resp := r.response()
	if resp.Status != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestQueryOverWebSocket(t *testing.T) {
	srv, cog := newTestServer(t)
	conn, r := dialWS(t, srv)

	if _, err := cog.AddInput(mustParse(t, "(likes tom jerry)"), "test", ""); err != nil {
		t.Fatalf("seed assertion: %v", err)
	}
	r.push() // the seed assertion's push frame

	err := conn.WriteJSON(clientEnvelope{Type: "query", QueryType: "ASK_BINDINGS", KifPattern: "(likes tom ?who)"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := r.response()
	if resp.Status != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Bindings) != 1 || resp.Bindings[0]["?who"] != "jerry" {
		t.Fatalf("unexpected bindings: %+v", resp.Bindings)
	}
}

func TestRetractOverWebSocket(t *testing.T) {
	srv, cog := newTestServer(t)
	conn, r := dialWS(t, srv)

	a, err := cog.AddInput(mustParse(t, "(likes tom jerry)"), "test", "")
	if err != nil {
		t.Fatalf("seed assertion: %v", err)
	}
	r.push()

	err = conn.WriteJSON(clientEnvelope{Type: "retract", RetractType: "BY_ID", Target: a.ID})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := r.response()
	if resp.Status != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUnknownMessageTypeReportsError(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, r := dialWS(t, srv)

	if err := conn.WriteJSON(clientEnvelope{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := r.response()
	if resp.Status != "error" {
		t.Fatalf("expected error status, got %+v", resp)
	}
}

func mustParse(t *testing.T, s string) term.Term {
	t.Helper()
	parsed, err := term.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return parsed
}
