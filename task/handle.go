// Package task supervises long-running background loops. A Handle owns at
// most one in-flight goroutine of a given kind; starting a new one cancels
// and waits for the previous instance before launching the replacement.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handle owns zero or one running loop. The zero value is ready to use.
type Handle struct {
	// Name labels log lines for this kind of loop (e.g. "ad_loop").
	Name string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start cancels and awaits any running instance, then runs fn in a new
// goroutine with a context derived from parent. fn must return when its
// context is cancelled.
func (h *Handle) Start(parent context.Context, fn func(ctx context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done
	go func() {
		defer close(done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("task panicked", slog.String("task", h.Name), slog.Any("err", fmt.Errorf("%v", r)))
			}
		}()
		fn(ctx)
	}()
}

// Stop cancels the running instance, if any, and blocks until it has
// returned. Stopping an idle or already finished handle is a no-op.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Handle) stopLocked() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
	h.done = nil
}

// Running reports whether a loop has been started and has not yet returned.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current instance returns. It returns immediately
// when nothing is running.
func (h *Handle) Wait() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Sleep waits for d or until ctx is cancelled. It returns false when the
// wait was cut short by cancellation.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
