// Package ads runs the commercial-break schedule for a live session.
//
// Started in immediate mode, the scheduler warns chat, runs a first break a
// minute later, then settles into the recurring cadence: wait out the
// platform's minimum spacing, warn, run a break, repeat. Deferred mode (the
// bot restarted mid-stream) skips straight to the recurring cadence.
package ads

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/howlingfantods/hairyrug/task"
	"github.com/howlingfantods/hairyrug/telemetry"
	"github.com/howlingfantods/hairyrug/twitchapi"
)

// Phase is the scheduler's current state.
type Phase int32

const (
	PhaseStopped Phase = iota
	PhaseFirstAdPending
	PhaseWarning
	PhaseAdRunning
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "stopped"
	case PhaseFirstAdPending:
		return "first_ad_pending"
	case PhaseWarning:
		return "warning"
	case PhaseAdRunning:
		return "ad_running"
	case PhaseCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

const (
	MsgWarning = "📢 Ad in 1 minute!"
	MsgStarted = "📺 Ad starting (3 minutes)."
	MsgOver    = "✅ Ad break over!"
)

// Commercials triggers ad breaks.
type Commercials interface {
	StartCommercial(ctx context.Context, broadcasterID string, length int) (*twitchapi.Commercial, error)
}

// Announcer posts to chat.
type Announcer interface {
	Say(msg string)
}

// Scheduler runs ad breaks while IsLive reports true and its context is live.
type Scheduler struct {
	Commercials   Commercials
	BroadcasterID string
	Announce      Announcer
	// IsLive is the session flag owned by the lifecycle monitor.
	IsLive func() bool

	// Warning is the lead time between the chat warning and the break (60s).
	Warning time.Duration
	// BreakLength is how long the break runs (180s); BreakSeconds is what
	// Helix is asked for.
	BreakLength  time.Duration
	BreakSeconds int
	// Spacing is the wait between breaks (59m).
	Spacing time.Duration

	phase atomic.Int32
}

// New returns a Scheduler with production timings.
func New(c Commercials, broadcasterID string, a Announcer, isLive func() bool) *Scheduler {
	return &Scheduler{
		Commercials:   c,
		BroadcasterID: broadcasterID,
		Announce:      a,
		IsLive:        isLive,
		Warning:       60 * time.Second,
		BreakLength:   180 * time.Second,
		BreakSeconds:  180,
		Spacing:       59 * time.Minute,
	}
}

// Phase returns the current phase.
func (s *Scheduler) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Scheduler) setPhase(p Phase) { s.phase.Store(int32(p)) }

func (s *Scheduler) live(ctx context.Context) bool {
	return ctx.Err() == nil && s.IsLive()
}

// Run blocks until the session ends, ctx is cancelled, or a commercial
// request fails. A failed break is not retried.
func (s *Scheduler) Run(ctx context.Context, immediate bool) {
	logger := slog.Default().With(slog.String("component", "ads"))
	logger.Info("ad loop started", slog.Bool("immediate", immediate))
	defer func() {
		s.setPhase(PhaseStopped)
		logger.Info("ad loop stopped")
	}()

	if immediate {
		if !s.adBreak(ctx, logger, PhaseFirstAdPending) {
			return
		}
		logger.Info("first ad break completed")
	} else {
		logger.Info("skipping immediate first ad, stream was already live")
	}

	for s.live(ctx) {
		s.setPhase(PhaseCooldown)
		if !task.Sleep(ctx, s.Spacing) || !s.live(ctx) {
			return
		}
		if !s.adBreak(ctx, logger, PhaseWarning) {
			return
		}
		logger.Info("recurring ad break completed")
	}
}

// adBreak warns, waits, triggers the commercial and announces its start and
// end. It returns false when the loop must stop.
func (s *Scheduler) adBreak(ctx context.Context, logger *slog.Logger, warn Phase) bool {
	if !s.live(ctx) {
		return false
	}
	s.setPhase(warn)
	s.Announce.Say(MsgWarning)
	logger.Info("ad alert sent")
	if !task.Sleep(ctx, s.Warning) || !s.live(ctx) {
		logger.Info("stream ended before ad started")
		return false
	}

	c, err := s.Commercials.StartCommercial(ctx, s.BroadcasterID, s.BreakSeconds)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.Inc(telemetry.AdBreaksFailed)
			logger.Error("failed to start ad", slog.Any("err", err))
		}
		return false
	}
	telemetry.Inc(telemetry.AdBreaksStarted)
	logger.Info("ad started", slog.Int("length", c.Length), slog.Int("retry_after", c.RetryAfter))
	s.setPhase(PhaseAdRunning)
	if !s.live(ctx) {
		return false
	}
	s.Announce.Say(MsgStarted)

	if !task.Sleep(ctx, s.BreakLength) || !s.live(ctx) {
		logger.Info("stream ended during ad break")
		return false
	}
	s.Announce.Say(MsgOver)
	return true
}
