package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestHelix(t *testing.T, h http.HandlerFunc) (*HelixClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &HelixClient{
		Tokens:       StaticToken("test-token"),
		ClientID:     "test-client-id",
		HTTPClient:   srv.Client(),
		BaseURL:      srv.URL,
		RetryBackoff: time.Millisecond,
	}, srv
}

func checkHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if r.Header.Get("Client-Id") != "test-client-id" {
		t.Errorf("Client-Id = %q", r.Header.Get("Client-Id"))
	}
	if r.Header.Get("Authorization") != "Bearer test-token" {
		t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
	}
}

func TestHelixClient_GetStreams(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLen   int
		wantGame  string
		wantErr   bool
		wantAPIErr int
	}{
		{
			name:     "live",
			status:   http.StatusOK,
			body:     `{"data":[{"id":"1","user_id":"42","game_name":"Software and Game Development","type":"live"}]}`,
			wantLen:  1,
			wantGame: "Software and Game Development",
		},
		{
			name:    "offline",
			status:  http.StatusOK,
			body:    `{"data":[]}`,
			wantLen: 0,
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"message":"invalid token"}`,
			wantErr:    true,
			wantAPIErr: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
				checkHeaders(t, r)
				if r.URL.Path != "/streams" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.URL.Query().Get("user_id") != "42" {
					t.Errorf("user_id = %s", r.URL.Query().Get("user_id"))
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			streams, err := hc.GetStreams(context.Background(), "42")
			if tt.wantErr {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.wantAPIErr {
					t.Fatalf("err = %v, want APIError %d", err, tt.wantAPIErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetStreams: %v", err)
			}
			if len(streams) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(streams), tt.wantLen)
			}
			if tt.wantLen > 0 && streams[0].GameName != tt.wantGame {
				t.Errorf("game = %q, want %q", streams[0].GameName, tt.wantGame)
			}
		})
	}
}

func TestHelixClient_GetStreamsEmptyUser(t *testing.T) {
	hc := &HelixClient{Tokens: StaticToken("x")}
	if _, err := hc.GetStreams(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestHelixClient_RetriesGETOn5xx(t *testing.T) {
	var calls atomic.Int32
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < helixMaxRetries {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	if _, err := hc.GetStreams(context.Background(), "42"); err != nil {
		t.Fatalf("GetStreams: %v", err)
	}
	if got := calls.Load(); got != helixMaxRetries {
		t.Errorf("calls = %d, want %d", got, helixMaxRetries)
	}
}

func TestHelixClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := hc.GetStreams(context.Background(), "42")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != helixMaxRetries {
		t.Errorf("calls = %d, want %d", got, helixMaxRetries)
	}
}

func TestHelixClient_SingleAttemptSkipsRetry(t *testing.T) {
	var calls atomic.Int32
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := hc.GetStreams(SingleAttempt(context.Background()), "42")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want 503 APIError", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestHelixClient_CommercialNotRetried(t *testing.T) {
	var calls atomic.Int32
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := hc.StartCommercial(context.Background(), "42", 180); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestHelixClient_StartCommercial(t *testing.T) {
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		checkHeaders(t, r)
		if r.Method != http.MethodPost || r.URL.Path != "/channels/commercial" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body struct {
			BroadcasterID string `json:"broadcaster_id"`
			Length        int    `json:"length"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.BroadcasterID != "42" || body.Length != 180 {
			t.Errorf("body = %+v", body)
		}
		_, _ = w.Write([]byte(`{"data":[{"length":180,"message":"","retry_after":480}]}`))
	})
	c, err := hc.StartCommercial(context.Background(), "42", 180)
	if err != nil {
		t.Fatalf("StartCommercial: %v", err)
	}
	if c.Length != 180 || c.RetryAfter != 480 {
		t.Errorf("commercial = %+v", c)
	}
}

func TestHelixClient_ListVideosAndLatest(t *testing.T) {
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") != "archive" || q.Get("user_id") != "42" {
			t.Errorf("query = %v", q)
		}
		if q.Get("first") == "1" {
			_, _ = w.Write([]byte(`{"data":[{"id":"v9","title":"latest"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"v9"},{"id":"v8"}],"pagination":{"cursor":"next"}}`))
	})
	videos, cursor, err := hc.ListVideos(context.Background(), "42", "", 0)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(videos) != 2 || cursor != "next" {
		t.Errorf("videos = %v cursor = %q", videos, cursor)
	}
	v, err := hc.LatestArchive(context.Background(), "42")
	if err != nil {
		t.Fatalf("LatestArchive: %v", err)
	}
	if v.ID != "v9" {
		t.Errorf("latest = %s", v.ID)
	}
}

func TestHelixClient_LatestArchiveNone(t *testing.T) {
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	if _, err := hc.LatestArchive(context.Background(), "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHelixClient_DeleteVideos(t *testing.T) {
	var gotIDs []string
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		gotIDs = r.URL.Query()["id"]
		w.WriteHeader(http.StatusNoContent)
	})
	if err := hc.DeleteVideos(context.Background(), "v1", "v2"); err != nil {
		t.Fatalf("DeleteVideos: %v", err)
	}
	if len(gotIDs) != 2 || gotIDs[0] != "v1" || gotIDs[1] != "v2" {
		t.Errorf("ids = %v", gotIDs)
	}
	if err := hc.DeleteVideos(context.Background()); err == nil {
		t.Error("expected error with no ids")
	}
}

type countingTokens struct {
	invalidated atomic.Int32
}

func (c *countingTokens) Get(context.Context) (string, error) {
	if c.invalidated.Load() > 0 {
		return "fresh", nil
	}
	return "stale", nil
}

func (c *countingTokens) Invalidate() { c.invalidated.Add(1) }

func TestHelixClient_InvalidatesOn401(t *testing.T) {
	toks := &countingTokens{}
	hc, _ := newTestHelix(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	hc.Tokens = toks
	if _, err := hc.GetStreams(context.Background(), "42"); err != nil {
		t.Fatalf("GetStreams: %v", err)
	}
	if toks.invalidated.Load() != 1 {
		t.Errorf("invalidated = %d, want 1", toks.invalidated.Load())
	}
}
