package timer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/howlingfantods/hairyrug/overlay"
)

// Announcer posts a chat message to the channel.
type Announcer interface {
	Say(msg string)
}

// Plain is the announcement-only timer behind !lt.
type Plain struct {
	Slot     *Slot
	Announce Announcer
	// Unit is the length of one "minute" (tests shorten it).
	Unit time.Duration
}

// NewPlain returns a Plain timer with its own slot.
func NewPlain(a Announcer) *Plain {
	return &Plain{Slot: NewSlot("lt_timer"), Announce: a, Unit: time.Minute}
}

// Start replaces any running !lt timer.
func (p *Plain) Start(ctx context.Context, name string, minutes int) {
	total := time.Duration(minutes) * p.Unit
	p.Slot.Start(ctx, name,
		func(context.Context) {
			p.Announce.Say(fmt.Sprintf("⏰ %d-minute timer started for '%s'", minutes, name))
			slog.Info("lt timer started", slog.String("component", "timer"), slog.String("name", name), slog.Int("minutes", minutes))
		},
		Countdown{
			Total: total,
			OnHalfway: func(context.Context) {
				p.Announce.Say(fmt.Sprintf("⏰ Halfway done with '%s'", name))
			},
			OnExpire: func(context.Context) {
				p.Announce.Say(fmt.Sprintf("⏰ Time's up for '%s'", name))
				slog.Info("lt timer completed", slog.String("component", "timer"), slog.String("name", name))
			},
		})
}

// Clear cancels the running !lt timer, if any.
func (p *Plain) Clear() {
	if p.Slot.Clear() {
		slog.Info("lt timer cancelled", slog.String("component", "timer"))
	}
}

// LockIn is the !ltlockin timer: it shows a countdown on the overlay and
// announces when time is up.
type LockIn struct {
	Slot     *Slot
	Announce Announcer
	Overlay  overlay.Broadcaster
	Unit     time.Duration
}

// NewLockIn returns a LockIn timer with its own slot.
func NewLockIn(a Announcer, b overlay.Broadcaster) *LockIn {
	return &LockIn{Slot: NewSlot("lockin_timer"), Announce: a, Overlay: b, Unit: time.Minute}
}

// Start replaces any running lock-in and broadcasts Start{minutes*60, label}.
func (l *LockIn) Start(ctx context.Context, label string, minutes int) {
	total := time.Duration(minutes) * l.Unit
	l.Slot.Start(ctx, label,
		func(ctx context.Context) {
			l.Announce.Say(fmt.Sprintf("🔒 LOCKED IN - %d minutes for: %s", minutes, label))
			if ctx.Err() != nil {
				return
			}
			l.Overlay.Broadcast(overlay.Start{Duration: minutes * 60, Label: label})
			slog.Info("lock-in started", slog.String("component", "timer"), slog.String("label", label), slog.Int("minutes", minutes))
		},
		Countdown{
			Total: total,
			OnExpire: func(context.Context) {
				l.Overlay.Broadcast(overlay.Stop{})
				l.Announce.Say(fmt.Sprintf("⏰ Time's up for '%s' - LOCK-IN over!", label))
				slog.Info("lock-in completed", slog.String("component", "timer"), slog.String("label", label))
			},
		})
}

// Clear cancels the running lock-in, if any, then broadcasts Stop.
func (l *LockIn) Clear() {
	l.Slot.Clear()
	l.Overlay.Broadcast(overlay.Stop{})
	slog.Info("lock-in cancelled", slog.String("component", "timer"))
}
