package server

import (
	"context"
	"net/http"
	"time"

	"github.com/howlingfantods/hairyrug/ads"
	"github.com/howlingfantods/hairyrug/db"
	"github.com/howlingfantods/hairyrug/lifecycle"
	"github.com/howlingfantods/hairyrug/timer"
)

// StatusSource reports the lifecycle snapshot.
type StatusSource interface {
	Status() lifecycle.Status
}

// PhaseSource reports the ad scheduler phase.
type PhaseSource interface {
	Phase() ads.Phase
}

// TimerSource reports a timer slot's active countdown.
type TimerSource interface {
	Current() (timer.Active, bool)
}

// RecapCounter reports the current session's recap counters.
type RecapCounter interface {
	Counts() (problems, submissions int)
}

// RecapLister lists archived recaps (see db.Store).
type RecapLister interface {
	RecentRecaps(ctx context.Context, limit int) ([]db.RecapRow, error)
}

// Pinger is a database handle.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the components the ops endpoints read from. Nil fields are
// reported as disabled.
type Deps struct {
	Monitor        StatusSource
	Ads            PhaseSource
	Timers         map[string]TimerSource
	Overlay        interface{ Count() int }
	OverlayHandler http.Handler
	Recap          RecapCounter
	Chat           interface{ Connected() bool }
	CurrentProblem func() string
	DB             Pinger
	Recaps         RecapLister
}

// Handlers serves the ops endpoints.
type Handlers struct {
	d   Deps
	now func() time.Time
}

// NewHandlers returns Handlers over d.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{d: d, now: time.Now}
}
