// Package testutil holds shared test fixtures: a fake Helix server and a
// Postgres helper.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockHelix is an httptest server speaking the subset of Helix the bot uses.
// Point twitchapi.HelixClient.BaseURL at URL.
type MockHelix struct {
	*httptest.Server

	mu       sync.Mutex
	live     bool
	game     string
	videos   []map[string]string
	deleted  []string
	ads      []int
	adStatus int
	requests []string
}

// NewMockHelix starts a fake Helix API closed at test cleanup.
func NewMockHelix(t *testing.T) *MockHelix {
	t.Helper()
	m := &MockHelix{adStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /streams", m.streams)
	mux.HandleFunc("GET /videos", m.listVideos)
	mux.HandleFunc("DELETE /videos", m.deleteVideos)
	mux.HandleFunc("POST /channels/commercial", m.commercial)
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.Method+" "+r.URL.Path)
		m.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// SetLive makes GET /streams report one stream in game (or none).
func (m *MockHelix) SetLive(live bool, game string) {
	m.mu.Lock()
	m.live, m.game = live, game
	m.mu.Unlock()
}

// SetVideos replaces the archive list, newest first.
func (m *MockHelix) SetVideos(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos = nil
	for _, id := range ids {
		m.videos = append(m.videos, map[string]string{"id": id, "type": "archive", "title": "vod " + id})
	}
}

// FailCommercials makes POST /channels/commercial return status.
func (m *MockHelix) FailCommercials(status int) {
	m.mu.Lock()
	m.adStatus = status
	m.mu.Unlock()
}

// Deleted returns the video ids deleted so far.
func (m *MockHelix) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Commercials returns the requested ad lengths.
func (m *MockHelix) Commercials() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.ads...)
}

// Requests returns "METHOD /path" for every request seen.
func (m *MockHelix) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

func (m *MockHelix) streams(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	data := []map[string]any{}
	if m.live {
		data = append(data, map[string]any{"id": "s1", "type": "live", "game_name": m.game, "title": "mock stream", "viewer_count": 3})
	}
	m.mu.Unlock()
	writeJSON(w, map[string]any{"data": data})
}

func (m *MockHelix) listVideos(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	data := append([]map[string]string{}, m.videos...)
	m.mu.Unlock()
	writeJSON(w, map[string]any{"data": data, "pagination": map[string]string{}})
}

func (m *MockHelix) deleteVideos(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["id"]
	m.mu.Lock()
	m.deleted = append(m.deleted, ids...)
	m.mu.Unlock()
	writeJSON(w, map[string]any{"data": ids})
}

func (m *MockHelix) commercial(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Length int `json:"length"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	m.mu.Lock()
	status := m.adStatus
	if status == http.StatusOK {
		m.ads = append(m.ads, body.Length)
	}
	m.mu.Unlock()
	if status != http.StatusOK {
		http.Error(w, `{"message":"commercial failed"}`, status)
		return
	}
	writeJSON(w, map[string]any{"data": []map[string]any{{"length": body.Length, "message": "", "retry_after": 480}}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
