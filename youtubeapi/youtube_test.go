package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

func newTestService(t *testing.T, h http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := New(context.Background(), "test-key", option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func fakeAPI(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/videos"):
			if r.URL.Query().Get("id") == "missing" {
				_, _ = w.Write([]byte(`{"items":[]}`))
				return
			}
			if r.URL.Query().Get("id") == "broken" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quota"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"items":[{"id":"abc","snippet":{"title":"Graphs Explained","channelTitle":"NeetCode"}}]}`))
		case strings.HasSuffix(r.URL.Path, "/playlists"):
			_, _ = w.Write([]byte(`{"items":[{"id":"PL1","snippet":{"title":"Blind 75"}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestLabel(t *testing.T) {
	s := newTestService(t, fakeAPI(t))
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc", "Graphs Explained - NeetCode"},
		{"https://youtu.be/abc", "Graphs Explained - NeetCode"},
		{"https://youtube.com/shorts/abc", "Graphs Explained - NeetCode"},
		{"https://www.youtube.com/playlist?list=PL1", "YouTube Playlist - Blind 75"},
		{"https://www.youtube.com/watch?v=missing", LabelVideo},
		{"https://youtube.com/shorts/broken", LabelShort},
		{"https://www.youtube.com/@channel", LabelGeneric},
		{"https://www.youtube.com/watch", LabelVideo},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := s.Label(context.Background(), mustURL(t, tt.raw)); got != tt.want {
				t.Errorf("Label = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNilServiceLabel(t *testing.T) {
	var s *Service
	if got := s.Label(context.Background(), mustURL(t, "https://youtu.be/abc")); got != LabelVideo {
		t.Errorf("Label = %q", got)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), ""); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsYouTube(t *testing.T) {
	for raw, want := range map[string]bool{
		"https://www.youtube.com/watch?v=1": true,
		"https://youtu.be/1":                true,
		"https://leetcode.com/problems/x":   false,
	} {
		if got := IsYouTube(mustURL(t, raw)); got != want {
			t.Errorf("IsYouTube(%s) = %v", raw, got)
		}
	}
}
