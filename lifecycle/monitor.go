// Package lifecycle is the top-level supervisor. Monitor polls stream status,
// owns the live flag, and on each edge starts or tears down the per-session
// loops (ad scheduler, now-playing poller) and the end-of-stream work (recap
// flush, VOD cleanup).
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/howlingfantods/hairyrug/task"
	"github.com/howlingfantods/hairyrug/telemetry"
	"github.com/howlingfantods/hairyrug/vod"
)

// Prober answers whether the stream is live.
type Prober interface {
	IsLive(ctx context.Context) (bool, error)
	LogMetadata(ctx context.Context)
}

// AdRunner runs the ad schedule until its context ends.
type AdRunner interface {
	Run(ctx context.Context, immediate bool)
}

// Runner is a loop that runs until its context ends.
type Runner interface {
	Run(ctx context.Context)
}

// SessionRecap is the recap buffer's lifecycle side.
type SessionRecap interface {
	Reset(start time.Time)
	Flush(ctx context.Context)
}

// Cleaner is the end-of-stream VOD cleanup.
type Cleaner interface {
	MaybeDeleteLatest(ctx context.Context) vod.Outcome
}

// Monitor is the live/offline state machine.
type Monitor struct {
	Probe   Prober
	Ads     AdRunner
	Poller  Runner // nil disables now-playing
	Recap   SessionRecap
	Cleanup Cleaner

	Interval     time.Duration
	ErrorBackoff time.Duration

	live     atomic.Bool
	adLoop   task.Handle
	nowPlay  task.Handle
	statusMu sync.Mutex
	status   Status
}

// Status is a snapshot for the ops endpoints.
type Status struct {
	Live          bool      `json:"live"`
	LiveSince     time.Time `json:"live_since,omitempty"`
	LastPoll      time.Time `json:"last_poll,omitempty"`
	LastPollError string    `json:"last_poll_error,omitempty"`
	Sessions      int       `json:"sessions"`
	AdLoop        bool      `json:"ad_loop_running"`
	Poller        bool      `json:"poller_running"`
}

// New returns a Monitor polling every interval with a 10s error backoff.
func New(p Prober, interval time.Duration) *Monitor {
	m := &Monitor{Probe: p, Interval: interval, ErrorBackoff: 10 * time.Second}
	m.adLoop.Name = "ad_loop"
	m.nowPlay.Name = "nowplaying"
	return m
}

// IsLive is the session flag every dependent loop checks.
func (m *Monitor) IsLive() bool { return m.live.Load() }

// Status returns the current snapshot.
func (m *Monitor) Status() Status {
	m.statusMu.Lock()
	s := m.status
	m.statusMu.Unlock()
	s.Live = m.IsLive()
	s.AdLoop = m.adLoop.Running()
	s.Poller = m.nowPlay.Running()
	return s
}

// Run polls until ctx is cancelled, then stops every loop it started.
func (m *Monitor) Run(ctx context.Context) {
	logger := slog.Default().With(slog.String("component", "lifecycle"))
	logger.Info("starting live status monitor", slog.Duration("interval", m.Interval))
	defer func() {
		m.adLoop.Stop()
		m.nowPlay.Stop()
		logger.Info("live status monitor stopped")
	}()

	first := true
	for ctx.Err() == nil {
		live, err := m.poll(ctx)
		m.recordPoll(err)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Error("error in live status monitor", slog.Any("err", err))
			if !task.Sleep(ctx, m.ErrorBackoff) {
				return
			}
			continue
		}
		m.step(ctx, logger, live, first)
		first = false
		if !task.Sleep(ctx, m.Interval) {
			return
		}
	}
}

// poll calls the probe, converting a panic into an error so the monitor survives.
func (m *Monitor) poll(ctx context.Context) (live bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return m.Probe.IsLive(ctx)
}

// step applies one probe result.
func (m *Monitor) step(ctx context.Context, logger *slog.Logger, live, first bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("edge handler panicked", slog.Any("err", r))
		}
	}()
	switch {
	case live && !m.IsLive():
		m.onLive(ctx, logger, first)
	case !live && m.IsLive():
		m.onOffline(ctx, logger)
	}
}

func (m *Monitor) onLive(ctx context.Context, logger *slog.Logger, first bool) {
	now := time.Now()
	m.Recap.Reset(now)
	if first {
		logger.Info("stream was already live when bot started, marking live without immediate ad")
	} else {
		logger.Info("stream just went live")
	}
	m.live.Store(true)
	telemetry.SetLive(true)
	telemetry.IncVec(telemetry.LiveEdges, "online")
	m.statusMu.Lock()
	m.status.LiveSince = now
	m.status.Sessions++
	m.statusMu.Unlock()

	m.Probe.LogMetadata(ctx)

	immediate := !first
	m.adLoop.Start(ctx, func(c context.Context) { m.Ads.Run(c, immediate) })
	if m.Poller != nil {
		m.nowPlay.Start(ctx, m.Poller.Run)
	}
}

func (m *Monitor) onOffline(ctx context.Context, logger *slog.Logger) {
	logger.Info("stream went offline")
	m.live.Store(false)
	telemetry.SetLive(false)
	telemetry.IncVec(telemetry.LiveEdges, "offline")
	m.statusMu.Lock()
	m.status.LiveSince = time.Time{}
	m.statusMu.Unlock()

	m.Recap.Flush(ctx)
	outcome := m.Cleanup.MaybeDeleteLatest(ctx)
	logger.Info("vod cleanup finished", slog.String("outcome", outcome.String()))
	m.adLoop.Stop()
	m.nowPlay.Stop()
}

func (m *Monitor) recordPoll(err error) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.status.LastPoll = time.Now()
	m.status.LastPollError = ""
	if err != nil {
		m.status.LastPollError = err.Error()
	}
}
