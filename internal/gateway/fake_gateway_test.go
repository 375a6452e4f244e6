// ABOUTME: Scripted websocket gateway used by the session tests
// ABOUTME: Each accepted socket is handed to the test, which drives it frame by frame

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

type fakeGateway struct {
	srv   *httptest.Server
	url   string
	conns chan *serverConn
}

// serverConn is the server side of one client socket.
type serverConn struct {
	ws     *websocket.Conn
	frames chan *Frame
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	gw := &fakeGateway{conns: make(chan *serverConn, 16)}
	upgrader := websocket.Upgrader{}

	gw.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := &serverConn{ws: ws, frames: make(chan *Frame, 64)}
		go sc.readLoop()
		gw.conns <- sc
	}))
	t.Cleanup(gw.srv.Close)

	gw.url = "ws" + strings.TrimPrefix(gw.srv.URL, "http")
	return gw
}

func (sc *serverConn) readLoop() {
	defer close(sc.frames)
	for {
		_, data, err := sc.ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := DecodeFrame(data)
		if err != nil {
			continue
		}
		sc.frames <- f
	}
}

// accept waits for the next client socket.
func (gw *fakeGateway) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-gw.conns:
		t.Cleanup(func() { _ = sc.ws.Close() })
		return sc
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

// expectNoConnection fails if a client connects within d.
func (gw *fakeGateway) expectNoConnection(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-gw.conns:
		t.Fatal("unexpected reconnect")
	case <-time.After(d):
	}
}

func (sc *serverConn) send(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, sc.ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (sc *serverConn) hello(t *testing.T) {
	t.Helper()
	sc.send(t, `{"s":1,"d":{"code":0,"session_id":"sess-1"}}`)
}

// expect returns the next frame the client sent.
func (sc *serverConn) expect(t *testing.T) *Frame {
	t.Helper()
	select {
	case f, ok := <-sc.frames:
		require.True(t, ok, "client closed the socket")
		return f
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

// expectOp skips frames until one with op arrives.
func (sc *serverConn) expectOp(t *testing.T, op Opcode) *Frame {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case f, ok := <-sc.frames:
			require.True(t, ok, "client closed the socket")
			if f.S == op {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", op)
			return nil
		}
	}
}

// expectSilence fails if the client sends any frame within d.
func (sc *serverConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case f, ok := <-sc.frames:
		if ok {
			t.Fatalf("unexpected client frame %s", f.S)
		}
	case <-time.After(d):
	}
}

// expectClosed waits for the client to drop the socket.
func (sc *serverConn) expectClosed(t *testing.T) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-sc.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("client did not close the socket")
		}
	}
}

// countingResolver returns url and counts calls.
type countingResolver struct {
	url   string
	calls atomic.Int32
}

func (r *countingResolver) resolve(context.Context) (string, error) {
	r.calls.Add(1)
	return r.url, nil
}

type received struct {
	name    string
	payload json.RawMessage
}

// recordingHandler forwards every dispatch to a channel.
func recordingHandler() (FrameHandler, chan received) {
	ch := make(chan received, 64)
	return func(_ context.Context, name string, payload json.RawMessage) {
		ch <- received{name: name, payload: payload}
	}, ch
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// quietConfig keeps heartbeats out of the way and retries fast.
func quietConfig() Config {
	return Config{
		HeartbeatInterval: time.Hour,
		AckTimeout:        time.Hour,
		WatchdogPoll:      10 * time.Millisecond,
		RetryDelay:        20 * time.Millisecond,
		Logger:            testLogger(),
	}
}

// startSession runs s in the background and closes it at cleanup.
func startSession(t *testing.T, s *Session) chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = s.Close(ctx)
	})
	return errc
}
