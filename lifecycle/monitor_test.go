package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/howlingfantods/hairyrug/telemetry"
	"github.com/howlingfantods/hairyrug/vod"
)

type scriptProbe struct {
	mu      sync.Mutex
	results []bool
	errs    map[int]error
	calls   int
	cancel  context.CancelFunc
	meta    int
}

func (p *scriptProbe) IsLive(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if err := p.errs[i]; err != nil {
		return false, err
	}
	if i >= len(p.results) {
		p.cancel()
		return p.results[len(p.results)-1], nil
	}
	return p.results[i], nil
}

func (p *scriptProbe) LogMetadata(context.Context) {
	p.mu.Lock()
	p.meta++
	p.mu.Unlock()
}

type fakeAds struct {
	mu        sync.Mutex
	starts    []bool
	cancelled int
}

func (a *fakeAds) Run(ctx context.Context, immediate bool) {
	a.mu.Lock()
	a.starts = append(a.starts, immediate)
	a.mu.Unlock()
	<-ctx.Done()
	a.mu.Lock()
	a.cancelled++
	a.mu.Unlock()
}

type fakePoller struct {
	mu   sync.Mutex
	runs int
}

func (f *fakePoller) Run(ctx context.Context) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	<-ctx.Done()
}

type fakeRecap struct {
	mu      sync.Mutex
	resets  int
	flushes int
	liveAt  []bool
	m       *Monitor
}

func (r *fakeRecap) Reset(time.Time) {
	r.mu.Lock()
	r.resets++
	r.mu.Unlock()
}

func (r *fakeRecap) Flush(context.Context) {
	r.mu.Lock()
	r.flushes++
	r.liveAt = append(r.liveAt, r.m.IsLive())
	r.mu.Unlock()
}

type fakeCleaner struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeCleaner) MaybeDeleteLatest(context.Context) vod.Outcome {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return vod.OutcomeSkipped
}

type harness struct {
	m       *Monitor
	probe   *scriptProbe
	ads     *fakeAds
	poller  *fakePoller
	recap   *fakeRecap
	cleaner *fakeCleaner
}

func newHarness(cancel context.CancelFunc, results []bool) *harness {
	h := &harness{
		probe:   &scriptProbe{results: results, cancel: cancel},
		ads:     &fakeAds{},
		poller:  &fakePoller{},
		cleaner: &fakeCleaner{},
	}
	h.m = New(h.probe, time.Millisecond)
	h.m.ErrorBackoff = time.Millisecond
	h.recap = &fakeRecap{m: h.m}
	h.m.Ads = h.ads
	h.m.Poller = h.poller
	h.m.Recap = h.recap
	h.m.Cleanup = h.cleaner
	return h
}

func runMonitor(t *testing.T, h *harness, ctx context.Context) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.m.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitorSingleSession(t *testing.T) {
	telemetry.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(cancel, []bool{false, false, true, true, true, false})
	runMonitor(t, h, ctx)

	if len(h.ads.starts) != 1 || !h.ads.starts[0] {
		t.Fatalf("ad starts = %v, want one immediate start", h.ads.starts)
	}
	if h.ads.cancelled != 1 {
		t.Fatalf("ad loop cancelled %d times", h.ads.cancelled)
	}
	if h.recap.resets != 1 || h.recap.flushes != 1 {
		t.Fatalf("recap resets=%d flushes=%d", h.recap.resets, h.recap.flushes)
	}
	if h.recap.liveAt[0] {
		t.Fatal("flush ran while still marked live")
	}
	if h.cleaner.calls != 1 {
		t.Fatalf("cleanup calls = %d", h.cleaner.calls)
	}
	if h.poller.runs != 1 {
		t.Fatalf("poller runs = %d", h.poller.runs)
	}
	if h.probe.meta != 1 {
		t.Fatalf("metadata logged %d times", h.probe.meta)
	}
	if h.m.IsLive() {
		t.Fatal("still live after offline edge")
	}
	if h.m.Status().Sessions != 1 {
		t.Fatalf("sessions = %d", h.m.Status().Sessions)
	}
}

func TestMonitorAlreadyLiveAtStartup(t *testing.T) {
	telemetry.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(cancel, []bool{true, true})
	runMonitor(t, h, ctx)

	if len(h.ads.starts) != 1 || h.ads.starts[0] {
		t.Fatalf("ad starts = %v, want one deferred start", h.ads.starts)
	}
	// Shutdown while live stops the loop without the offline work.
	if h.ads.cancelled != 1 {
		t.Fatalf("ad loop cancelled %d times", h.ads.cancelled)
	}
	if h.recap.flushes != 0 || h.cleaner.calls != 0 {
		t.Fatalf("offline work ran on shutdown: flushes=%d cleanup=%d", h.recap.flushes, h.cleaner.calls)
	}
}

func TestMonitorProbeErrorKeepsState(t *testing.T) {
	telemetry.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(cancel, []bool{true, true, true})
	// Error on the first call: the next success still counts as startup.
	h.probe.errs = map[int]error{0: errors.New("dial tcp: timeout"), 2: errors.New("reset")}
	runMonitor(t, h, ctx)

	if len(h.ads.starts) != 1 || h.ads.starts[0] {
		t.Fatalf("ad starts = %v, want one deferred start", h.ads.starts)
	}
	if h.recap.flushes != 0 {
		t.Fatal("probe error treated as offline")
	}
}

func TestMonitorSecondSession(t *testing.T) {
	telemetry.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(cancel, []bool{false, true, false, true, false})
	runMonitor(t, h, ctx)

	if len(h.ads.starts) != 2 || !h.ads.starts[0] || !h.ads.starts[1] {
		t.Fatalf("ad starts = %v", h.ads.starts)
	}
	if h.recap.resets != 2 || h.recap.flushes != 2 || h.cleaner.calls != 2 {
		t.Fatalf("resets=%d flushes=%d cleanup=%d", h.recap.resets, h.recap.flushes, h.cleaner.calls)
	}
}

func TestMonitorSurvivesProbePanic(t *testing.T) {
	telemetry.Init()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(cancel, []bool{false})
	h.m.Probe = panicOnce{inner: h.probe}
	runMonitor(t, h, ctx)
	if h.probe.calls == 0 {
		t.Fatal("monitor stopped after panic")
	}
}

type panicOnce struct{ inner *scriptProbe }

var panicked sync.Once

func (p panicOnce) IsLive(ctx context.Context) (bool, error) {
	fired := false
	panicked.Do(func() { fired = true })
	if fired {
		panic("boom")
	}
	return p.inner.IsLive(ctx)
}

func (p panicOnce) LogMetadata(ctx context.Context) { p.inner.LogMetadata(ctx) }
