// ABOUTME: Minimal fake homeserver for the Matrix adapter tests
// ABOUTME: Serves joined members, event lookup, send and redact endpoints

package matrix

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const botUser = "@amiya:test"

type sentEvent struct {
	Room    string
	Content map[string]any
}

type fakeHomeserver struct {
	srv *httptest.Server

	mu           sync.Mutex
	members      map[string][]string
	events       map[string]json.RawMessage
	memberCalls  map[string]int
	sent         []sentEvent
	redacted     []string
	failSend     bool
	eventCounter int
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()
	hs := &fakeHomeserver{
		members:     make(map[string][]string),
		events:      make(map[string]json.RawMessage),
		memberCalls: make(map[string]int),
	}
	hs.srv = httptest.NewServer(http.HandlerFunc(hs.serve))
	t.Cleanup(hs.srv.Close)
	return hs
}

func (hs *fakeHomeserver) serve(w http.ResponseWriter, r *http.Request) {
	const prefix = "/_matrix/client/v3/rooms/"
	w.Header().Set("Content-Type", "application/json")
	if !strings.HasPrefix(r.URL.Path, prefix) {
		hs.notFound(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, prefix), "/")
	room := parts[0]

	hs.mu.Lock()
	defer hs.mu.Unlock()

	switch {
	case len(parts) == 2 && parts[1] == "joined_members":
		hs.memberCalls[room]++
		users, ok := hs.members[room]
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"errcode":"M_FORBIDDEN","error":"not in room"}`)
			return
		}
		joined := make(map[string]any, len(users))
		for _, u := range users {
			joined[u] = map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"joined": joined})

	case len(parts) == 3 && parts[1] == "event":
		evt, ok := hs.events[parts[2]]
		if !ok {
			hs.notFound(w)
			return
		}
		_, _ = w.Write(evt)

	case len(parts) == 4 && parts[1] == "send":
		if hs.failSend {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"errcode":"M_FORBIDDEN","error":"cannot send"}`)
			return
		}
		var content map[string]any
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &content)
		hs.sent = append(hs.sent, sentEvent{Room: room, Content: content})
		hs.eventCounter++
		_ = json.NewEncoder(w).Encode(map[string]any{"event_id": "$sent" + strings.Repeat("x", hs.eventCounter)})

	case len(parts) == 4 && parts[1] == "redact":
		hs.redacted = append(hs.redacted, parts[2])
		_ = json.NewEncoder(w).Encode(map[string]any{"event_id": "$redaction"})

	default:
		hs.notFound(w)
	}
}

func (hs *fakeHomeserver) notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, `{"errcode":"M_NOT_FOUND","error":"not found"}`)
}

func (hs *fakeHomeserver) setMembers(room string, users ...string) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.members[room] = users
}

func (hs *fakeHomeserver) addEvent(t *testing.T, eventID string, evt map[string]any) {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.events[eventID] = data
}

func (hs *fakeHomeserver) sentEvents() []sentEvent {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return append([]sentEvent(nil), hs.sent...)
}

func (hs *fakeHomeserver) membersCalls(room string) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.memberCalls[room]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter(t *testing.T, hs *fakeHomeserver, mutate ...func(*Config)) *Adapter {
	t.Helper()
	cfg := Config{
		Homeserver:  hs.srv.URL,
		UserID:      botUser,
		AccessToken: "token",
		Logger:      testLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.members.Close() })
	return a
}

// roomMessage builds a forwarded room event payload.
func roomMessage(t *testing.T, room, sender, eventID string, content map[string]any) json.RawMessage {
	t.Helper()
	c, err := json.Marshal(content)
	require.NoError(t, err)
	data, err := json.Marshal(roomEvent{
		ID:        eventID,
		RoomID:    room,
		Sender:    sender,
		Timestamp: 1700000000000,
		Content:   c,
	})
	require.NoError(t, err)
	return data
}
