// Package timer provides a cancellable countdown and the two chat timers
// built on it: the plain announcement timer and the lock-in timer that also
// drives the overlay.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/howlingfantods/hairyrug/task"
)

// Countdown sleeps for Total, firing OnHalfway (optional) at Total/2 and
// OnExpire at the end. No callback fires once ctx is cancelled.
type Countdown struct {
	Total     time.Duration
	OnHalfway func(ctx context.Context)
	OnExpire  func(ctx context.Context)
}

// Run blocks until the countdown expires or ctx is cancelled. It reports
// whether OnExpire ran.
func (c Countdown) Run(ctx context.Context) bool {
	remaining := c.Total
	if c.OnHalfway != nil {
		half := c.Total / 2
		if !task.Sleep(ctx, half) {
			return false
		}
		c.OnHalfway(ctx)
		remaining -= half
	}
	if !task.Sleep(ctx, remaining) {
		return false
	}
	if c.OnExpire != nil {
		c.OnExpire(ctx)
	}
	return true
}

// Active describes the countdown currently held by a Slot.
type Active struct {
	Label     string
	StartedAt time.Time
	Total     time.Duration
}

// Remaining is the time left before expiry, floored at zero.
func (a Active) Remaining() time.Duration {
	left := a.Total - time.Since(a.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Slot holds at most one running countdown. Starting a new one cancels and
// awaits the previous, so no callback of a superseded countdown fires after
// the replacement starts.
type Slot struct {
	handle task.Handle

	mu     sync.Mutex
	active *Active
	gen    uint64
}

// NewSlot returns an idle slot whose goroutine logs under name.
func NewSlot(name string) *Slot {
	return &Slot{handle: task.Handle{Name: name}}
}

// Start replaces any running countdown. before runs first in the new
// goroutine (after the old one has finished) and can announce the start;
// it is skipped when the countdown is cancelled before the goroutine runs.
func (s *Slot) Start(parent context.Context, label string, before func(ctx context.Context), c Countdown) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.handle.Start(parent, func(ctx context.Context) {
		// Cleared or superseded before the goroutine got scheduled.
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.active = &Active{Label: label, StartedAt: time.Now(), Total: c.Total}
		s.mu.Unlock()
		defer s.release(gen)

		if before != nil {
			before(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		c.Run(ctx)
	})
}

func (s *Slot) release(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.active = nil
	}
	s.mu.Unlock()
}

// Clear cancels and awaits the running countdown. It reports whether one was active.
func (s *Slot) Clear() bool {
	wasRunning := s.handle.Running()
	s.handle.Stop()
	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
	return wasRunning
}

// Current returns the running countdown, if any.
func (s *Slot) Current() (Active, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Active{}, false
	}
	return *s.active, true
}

// Wait blocks until the current countdown returns.
func (s *Slot) Wait() { s.handle.Wait() }
