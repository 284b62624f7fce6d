package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/virtual-office/office/chat"
	"github.com/wricardo/virtual-office/office/hub"
	"github.com/wricardo/virtual-office/office/presence"
)

var testBounds = presence.Bounds{Width: 1200, Height: 800, Padding: 40}

// mockOffice implements Office for testing
type mockOffice struct {
	players  []presence.Player
	messages []chat.Message
	metrics  hub.Metrics

	AnnounceFunc func(content string) (chat.Message, error)
}

func (m *mockOffice) Players() []presence.Player { return m.players }
func (m *mockOffice) Messages() []chat.Message   { return m.messages }
func (m *mockOffice) Metrics() *hub.Metrics      { return &m.metrics }

func (m *mockOffice) Stats() hub.Stats {
	return hub.Stats{Players: len(m.players), Messages: len(m.messages), HistoryLimit: 50, Office: testBounds}
}

func (m *mockOffice) Announce(content string) (chat.Message, error) {
	if m.AnnounceFunc != nil {
		return m.AnnounceFunc(content)
	}
	return chat.NewSystemMessage("msg-1", content, time.Now()), nil
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	s := NewServer(&mockOffice{}, nil)

	w := do(t, s, "GET", "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp["status"])
}

func TestOfficeStats(t *testing.T) {
	office := &mockOffice{players: []presence.Player{{ID: "a", Name: "Ana"}}}
	s := NewServer(office, nil)

	w := do(t, s, "GET", "/api/office", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats hub.Stats
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.Players)
	assert.Equal(t, testBounds, stats.Office)
}

func TestListPlayers(t *testing.T) {
	office := &mockOffice{players: []presence.Player{{ID: "a", Name: "Ana"}, {ID: "b", Name: "Bob"}}}
	s := NewServer(office, nil)

	w := do(t, s, "GET", "/api/players", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count   int               `json:"count"`
		Players []presence.Player `json:"players"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "Bob", resp.Players[1].Name)
}

func TestGetPlayer(t *testing.T) {
	office := &mockOffice{players: []presence.Player{{ID: "a", Name: "Ana"}}}
	s := NewServer(office, nil)

	w := do(t, s, "GET", "/api/players/a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p presence.Player
	decode(t, w, &p)
	assert.Equal(t, "Ana", p.Name)

	w = do(t, s, "GET", "/api/players/zzz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMessagesLimit(t *testing.T) {
	now := time.Now()
	office := &mockOffice{messages: []chat.Message{
		chat.NewSystemMessage("1", "uno", now),
		chat.NewSystemMessage("2", "dos", now),
		chat.NewSystemMessage("3", "tres", now),
	}}
	s := NewServer(office, nil)

	tests := []struct {
		name   string
		query  string
		status int
		ids    []string
	}{
		{"all", "", http.StatusOK, []string{"1", "2", "3"}},
		{"most recent", "?limit=2", http.StatusOK, []string{"2", "3"}},
		{"above size", "?limit=10", http.StatusOK, []string{"1", "2", "3"}},
		{"zero", "?limit=0", http.StatusBadRequest, nil},
		{"not a number", "?limit=abc", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, "GET", "/api/messages"+tt.query, nil)
			require.Equal(t, tt.status, w.Code)
			if tt.ids == nil {
				return
			}

			var resp struct {
				Messages []chat.Message `json:"messages"`
			}
			decode(t, w, &resp)
			var ids []string
			for _, m := range resp.Messages {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestAnnounceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty", hub.ErrEmptyMessage, http.StatusBadRequest},
		{"closed", hub.ErrClosed, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			office := &mockOffice{AnnounceFunc: func(string) (chat.Message, error) {
				return chat.Message{}, tt.err
			}}
			w := do(t, NewServer(office, nil), "POST", "/api/announcements", map[string]string{"content": "x"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAnnounceRejectsBadBody(t *testing.T) {
	s := NewServer(&mockOffice{}, nil)
	req := httptest.NewRequest("POST", "/api/announcements", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(&mockOffice{}, nil)
	w := do(t, s, "GET", "/api/announcements", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAnnounceThroughHub(t *testing.T) {
	h := hub.New(hub.Options{Bounds: testBounds, HistoryLimit: 5})
	s := NewServer(h, nil)

	w := do(t, s, "POST", "/api/announcements", map[string]string{"content": "  reunión a las 10  "})
	require.Equal(t, http.StatusCreated, w.Code)

	var msg chat.Message
	decode(t, w, &msg)
	assert.Equal(t, "reunión a las 10", msg.Content)
	assert.True(t, msg.System)

	w = do(t, s, "GET", "/api/messages", nil)
	var resp struct {
		Count int `json:"count"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Count)

	w = do(t, s, "POST", "/api/announcements", map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsSnapshot(t *testing.T) {
	h := hub.New(hub.Options{Bounds: testBounds, HistoryLimit: 5})
	s := NewServer(h, nil)
	_, err := h.Announce("hola")
	require.NoError(t, err)

	w := do(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap map[string]int64
	decode(t, w, &snap)
	assert.Contains(t, snap, "connections_active")
	assert.Equal(t, int64(0), snap["connections_active"])
}

func TestHandleMountsPostEndpoint(t *testing.T) {
	s := NewServer(&mockOffice{}, nil)
	s.Handle("/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	assert.Equal(t, http.StatusAccepted, do(t, s, "POST", "/mcp", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, "GET", "/mcp", nil).Code)
}
