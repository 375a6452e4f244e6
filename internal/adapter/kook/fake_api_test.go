// ABOUTME: In-memory KOOK REST API used by the client, packaging and adapter tests
// ABOUTME: Routes are registered per path and every request is recorded

package kook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type apiRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Auth   string
	Body   map[string]any
}

type fakeAPI struct {
	srv *httptest.Server

	mu       sync.Mutex
	routes   map[string]func(q map[string]string, body map[string]any) (int, any)
	requests []apiRequest
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{routes: make(map[string]func(map[string]string, map[string]any) (int, any))}
	api.srv = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.srv.Close)
	return api
}

func (api *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	req := apiRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  make(map[string]string),
		Auth:   r.Header.Get("Authorization"),
	}
	for k, v := range r.URL.Query() {
		req.Query[k] = v[0]
	}
	if r.Method == http.MethodPost {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &req.Body)
	}

	api.mu.Lock()
	api.requests = append(api.requests, req)
	route, ok := api.routes[r.URL.Path]
	api.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 404, "message": "no route"})
		return
	}
	code, data := route(req.Query, req.Body)
	env := map[string]any{"code": code, "message": "", "data": data}
	if code != 0 {
		env["message"] = "failed"
	}
	_ = json.NewEncoder(w).Encode(env)
}

// handle registers a route returning a fixed code and data.
func (api *fakeAPI) handle(path string, code int, data any) {
	api.handleFunc(path, func(map[string]string, map[string]any) (int, any) { return code, data })
}

func (api *fakeAPI) handleFunc(path string, fn func(q map[string]string, body map[string]any) (int, any)) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.routes[path] = fn
}

// calls returns the recorded requests for a path.
func (api *fakeAPI) calls(path string) []apiRequest {
	api.mu.Lock()
	defer api.mu.Unlock()
	var out []apiRequest
	for _, r := range api.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (api *fakeAPI) client() *Client {
	return NewClient("secret", WithBaseURL(api.srv.URL), WithRateLimit(rate.Inf, 1))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAdapter builds an adapter against the fake API with the bot
// identity already known.
func newTestAdapter(t *testing.T, api *fakeAPI) *Adapter {
	t.Helper()
	a := New(Config{
		Token:         "secret",
		ClientOptions: []ClientOption{WithBaseURL(api.srv.URL), WithRateLimit(rate.Inf, 1)},
		Logger:        testLogger(),
	})
	a.SetSelf(User{ID: "bot1", Username: "amiya", Bot: true})
	t.Cleanup(func() {
		a.roles.Close()
		a.channels.Close()
	})
	return a
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
