package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu     sync.Mutex
	titles map[string]string // broadcaster id -> title
}

// NewMockTwitchServer creates a new mock Twitch API server. Handlers are keyed
// by "METHOD /path" or by path alone; point a rewriting transport at it.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		titles:   make(map[string]string),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.Method+" "+r.URL.Path]; ok {
			handler(w, r)
			return
		}
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUserResponse adds a /helix/users handler answering lookups by id or login.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handlers["GET /helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data := []map[string]string{}
		if q.Get("id") == userID || q.Get("login") == login {
			data = append(data, map[string]string{"id": userID, "login": login, "display_name": login})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck // test mock response
	}
}

// MockModifyChannel accepts PATCH /helix/channels and records the title.
func (m *MockTwitchServer) MockModifyChannel() {
	m.Handlers["PATCH /helix/channels"] = func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Title string `json:"title"`
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.titles[r.URL.Query().Get("broadcaster_id")] = body.Title
		m.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

// Title returns the last title set for broadcasterID.
func (m *MockTwitchServer) Title(broadcasterID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.titles[broadcasterID]
}

// MockOAuthTokenResponse answers the client-credentials token endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
