// Package oauth keeps stored OAuth tokens fresh. A Refresher wakes on a
// jittered interval and refreshes a provider's row when its expiry falls
// within a window.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/howlingfantods/hairyrug/task"
)

// Store is the token persistence the refresher works against (see package db).
type Store interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// RefreshFunc performs the provider-specific refresh and returns (access, refresh, expiry, scope).
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// Refresher refreshes one provider's token row.
type Refresher struct {
	Store    Store
	Provider string
	Refresh  RefreshFunc
	// Interval is how often to check (default 5m), Window how close to expiry
	// a refresh happens (default 15m).
	Interval time.Duration
	Window   time.Duration
	// PreJitter bounds the random delay before each refresh (default 5s).
	PreJitter time.Duration
}

func (r *Refresher) defaults() {
	if r.Interval <= 0 {
		r.Interval = 5 * time.Minute
	}
	if r.Window <= 0 {
		r.Window = 15 * time.Minute
	}
	if r.PreJitter <= 0 {
		r.PreJitter = 5 * time.Second
	}
}

// Seed writes an initial row from configuration when the store has none.
// A zero expiry makes the first check refresh immediately.
func (r *Refresher) Seed(ctx context.Context, access, refresh string) error {
	if refresh == "" {
		return nil
	}
	cur, curRefresh, _, _, err := r.Store.GetOAuthToken(ctx, r.Provider)
	if err != nil {
		return err
	}
	if cur != "" || curRefresh != "" {
		return nil
	}
	slog.Info("seeding oauth token from environment", slog.String("provider", r.Provider), slog.String("component", "oauth"))
	return r.Store.UpsertOAuthToken(ctx, r.Provider, access, refresh, time.Time{}, "")
}

// Run checks once immediately, then on a jittered interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	r.defaults()
	for {
		r.Check(ctx)
		// Per-iteration jitter of +/-20% keeps instances from waking together.
		jitterRange := int64(r.Interval / 5)
		next := r.Interval
		if jitterRange > 0 {
			//nolint:gosec // G404: scheduling jitter, not security
			next += time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
		}
		if !task.Sleep(ctx, next) {
			return
		}
	}
}

// Check refreshes the row if it is inside the window. It reports whether a
// refresh was persisted.
func (r *Refresher) Check(ctx context.Context) bool {
	r.defaults()
	logger := slog.Default().With(slog.String("component", "oauth"), slog.String("provider", r.Provider))
	_, rt, exp, scope, err := r.Store.GetOAuthToken(ctx, r.Provider)
	if err != nil {
		logger.Warn("token read failed", slog.Any("err", err))
		return false
	}
	if rt == "" || time.Until(exp) > r.Window {
		return false
	}
	//nolint:gosec // G404: jitter only
	if !task.Sleep(ctx, time.Duration(rand.Int63n(int64(r.PreJitter)))) {
		return false
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := r.Refresh(ctx2, rt)
	cancel()
	if err != nil {
		logger.Warn("token refresh failed", slog.Any("err", err))
		return false
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := r.Store.UpsertOAuthToken(ctx, r.Provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		logger.Warn("token persist failed", slog.Any("err", err))
		return false
	}
	logger.Info("token refreshed", slog.Time("expires_at", newExp))
	return true
}
