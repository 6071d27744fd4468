package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/howlingfantods/hairyrug/testutil"
	"github.com/howlingfantods/hairyrug/twitchapi"
)

type fakeStreams struct {
	results []fakeResult
	calls   int
}

type fakeResult struct {
	streams []twitchapi.Stream
	err     error
}

func (f *fakeStreams) GetStreams(context.Context, string) ([]twitchapi.Stream, error) {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].streams, f.results[i].err
}

func live(game string) fakeResult {
	return fakeResult{streams: []twitchapi.Stream{{ID: "1", GameName: game}}}
}

func TestIsLive(t *testing.T) {
	tests := []struct {
		name     string
		result   fakeResult
		wantLive bool
		wantErr  bool
	}{
		{name: "live", result: live("Just Chatting"), wantLive: true},
		{name: "offline", result: fakeResult{}, wantLive: false},
		{name: "non-200 is not live", result: fakeResult{err: &twitchapi.APIError{StatusCode: 500}}, wantLive: false},
		{name: "transport error", result: fakeResult{err: errors.New("dial tcp: refused")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&fakeStreams{results: []fakeResult{tt.result}}, "42")
			got, err := p.IsLive(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.wantLive {
				t.Errorf("live = %v, want %v", got, tt.wantLive)
			}
		})
	}
}

func TestCurrentCategory(t *testing.T) {
	tests := []struct {
		name      string
		results   []fakeResult
		want      string
		wantCalls int
	}{
		{name: "first attempt", results: []fakeResult{live("Fitness & Health")}, want: "Fitness & Health", wantCalls: 1},
		{name: "populates late", results: []fakeResult{live(""), live(""), live("Fitness & Health")}, want: "Fitness & Health", wantCalls: 3},
		{name: "errors then value", results: []fakeResult{{err: errors.New("boom")}, live("Art")}, want: "Art", wantCalls: 2},
		{name: "never populated", results: []fakeResult{live("")}, want: UnknownCategory, wantCalls: 5},
		{name: "offline", results: []fakeResult{{}}, want: UnknownCategory, wantCalls: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStreams{results: tt.results}
			p := &Probe{Streams: fs, BroadcasterID: "42", CategoryDelay: time.Millisecond}
			if got := p.CurrentCategory(context.Background()); got != tt.want {
				t.Errorf("category = %q, want %q", got, tt.want)
			}
			if fs.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", fs.calls, tt.wantCalls)
			}
		})
	}
}

func TestCurrentCategoryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := &fakeStreams{results: []fakeResult{live("")}}
	p := &Probe{Streams: fs, BroadcasterID: "42", CategoryDelay: time.Hour}
	if got := p.CurrentCategory(ctx); got != UnknownCategory {
		t.Errorf("category = %q", got)
	}
	if fs.calls != 1 {
		t.Errorf("calls = %d, want 1", fs.calls)
	}
}

func TestIsLiveSendsSingleRequest(t *testing.T) {
	m := testutil.NewMockHelix(t)
	var calls atomic.Int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(failing.Close)

	hc := &twitchapi.HelixClient{Tokens: twitchapi.StaticToken("tok"), ClientID: "cid", HTTPClient: failing.Client(), BaseURL: failing.URL, RetryBackoff: time.Millisecond}
	live, err := New(hc, "42").IsLive(context.Background())
	if err != nil || live {
		t.Fatalf("IsLive = %v, %v; want false, nil", live, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}

	// The same client still serves category lookups.
	m.SetLive(true, "Just Chatting")
	hc.HTTPClient, hc.BaseURL = m.Client(), m.URL
	p := New(hc, "42")
	p.CategoryDelay = time.Millisecond
	if got := p.CurrentCategory(context.Background()); got != "Just Chatting" {
		t.Errorf("category = %q", got)
	}
}
