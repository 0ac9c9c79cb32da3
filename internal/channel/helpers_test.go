package channel

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/jpleva/channel-client/internal/config"
	"github.com/jpleva/channel-client/internal/wire"
)

// testConn is one server-side connection. It records every inbound frame
// in arrival order and, unless autoPong is off, answers pings.
type testConn struct {
	ws       *websocket.Conn
	autoPong bool

	mu      sync.Mutex
	frames  []wire.Frame
	writeMu sync.Mutex
}

func (tc *testConn) reader() {
	for {
		_, data, err := tc.ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := wire.Parse(data)
		if err != nil {
			continue
		}

		tc.mu.Lock()
		tc.frames = append(tc.frames, f)
		tc.mu.Unlock()

		if tc.autoPong && f.Event == wire.EventPing {
			tc.send(wire.Frame{Event: wire.EventPong})
		}
	}
}

func (tc *testConn) send(f wire.Frame) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	return tc.ws.WriteMessage(websocket.TextMessage, data)
}

func (tc *testConn) sendRaw(data []byte) error {
	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	return tc.ws.WriteMessage(websocket.TextMessage, data)
}

// closeWith performs a server-initiated close with the given code/reason.
func (tc *testConn) closeWith(code int, reason string) {
	tc.writeMu.Lock()
	tc.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	tc.writeMu.Unlock()
	tc.ws.Close()
}

// drop kills the connection without a close frame.
func (tc *testConn) drop() {
	tc.ws.Close()
}

func (tc *testConn) all() []wire.Frame {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	out := make([]wire.Frame, len(tc.frames))
	copy(out, tc.frames)
	return out
}

func (tc *testConn) count(event string) int {
	n := 0
	for _, f := range tc.all() {
		if f.Event == event {
			n++
		}
	}
	return n
}

func (tc *testConn) first() (wire.Frame, bool) {
	frames := tc.all()
	if len(frames) == 0 {
		return wire.Frame{}, false
	}
	return frames[0], true
}

// testServer accepts WebSocket connections and hands each one to the test
// as a testConn.
type testServer struct {
	srv      *httptest.Server
	conns    chan *testConn
	autoPong bool
	onOpen   func(*testConn)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		conns:    make(chan *testConn, 8),
		autoPong: true,
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}

		tc := &testConn{ws: conn, autoPong: ts.autoPong}
		if ts.onOpen != nil {
			ts.onOpen(tc)
		}
		ts.conns <- tc
		tc.reader()
	}))
	t.Cleanup(ts.srv.Close)

	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

// accept waits for the next server-side connection.
func (ts *testServer) accept(t *testing.T) *testConn {
	t.Helper()
	select {
	case tc := <-ts.conns:
		return tc
	case <-time.After(3 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

// noAccept asserts no new connection arrives within d.
func (ts *testServer) noAccept(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-ts.conns:
		t.Fatal("unexpected new connection")
	case <-time.After(d):
	}
}

// testConfig returns a config pointed at the test server with timers short
// enough for tests.
func testConfig(ts *testServer) *config.ClientConfig {
	cfg := &config.ClientConfig{}
	cfg.Project.ID = "p1"
	cfg.Project.RealtimeURL = ts.url()
	cfg.Channel.Class = "room"
	cfg.Channel.ID = "lobby"
	cfg.Auth.Token = "test-token"
	cfg.Heartbeat.PingInterval = 200 * time.Millisecond
	cfg.Heartbeat.PongTimeout = 100 * time.Millisecond
	cfg.Reconnect.BaseDelay = 30 * time.Millisecond
	cfg.Reconnect.MaxDelay = 200 * time.Millisecond
	cfg.ApplyDefaults()
	return cfg
}

// testLogger discards output: channel goroutines may outlive the test body
// briefly, so logging through t.Log is unsafe here.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
