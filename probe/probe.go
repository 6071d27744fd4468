// Package probe answers "is the stream live" and "what category is it in"
// by querying the Helix streams endpoint for the configured broadcaster.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/howlingfantods/hairyrug/task"
	"github.com/howlingfantods/hairyrug/telemetry"
	"github.com/howlingfantods/hairyrug/twitchapi"
)

// UnknownCategory is returned by CurrentCategory when the category never populated.
const UnknownCategory = "unknown"

const (
	defaultCategoryAttempts = 5
	defaultCategoryDelay    = 2 * time.Second
)

// StreamLister is the subset of the Helix client the probe needs.
type StreamLister interface {
	GetStreams(ctx context.Context, userID string) ([]twitchapi.Stream, error)
}

// Probe queries stream status for one broadcaster.
type Probe struct {
	Streams       StreamLister
	BroadcasterID string

	// CategoryAttempts and CategoryDelay bound CurrentCategory's polling
	// (defaults 5 and 2s). Twitch can populate game_name late after going live.
	CategoryAttempts int
	CategoryDelay    time.Duration
}

// New returns a Probe with default category polling.
func New(streams StreamLister, broadcasterID string) *Probe {
	return &Probe{Streams: streams, BroadcasterID: broadcasterID}
}

// IsLive reports whether the broadcaster currently has an active stream
// using a single request per call; the monitor's poll interval is the retry.
// A non-success HTTP response is logged and reported as not live with a nil
// error. Transport failures are returned so the caller can back off.
func (p *Probe) IsLive(ctx context.Context) (bool, error) {
	streams, err := p.Streams.GetStreams(twitchapi.SingleAttempt(ctx), p.BroadcasterID)
	if err != nil {
		var apiErr *twitchapi.APIError
		if errors.As(err, &apiErr) {
			slog.Error("stream status check failed", slog.String("component", "probe"), slog.Int("status", apiErr.StatusCode), slog.String("body", apiErr.Body))
			return false, nil
		}
		telemetry.Inc(telemetry.ProbeErrors)
		return false, err
	}
	live := len(streams) > 0
	slog.Debug("stream status", slog.String("component", "probe"), slog.Bool("live", live))
	return live, nil
}

// CurrentCategory returns the stream's category (game_name), polling a few
// times because the field can lag stream start. It returns UnknownCategory
// once attempts are exhausted, including when the stream is offline.
func (p *Probe) CurrentCategory(ctx context.Context) string {
	attempts := p.CategoryAttempts
	if attempts <= 0 {
		attempts = defaultCategoryAttempts
	}
	delay := p.CategoryDelay
	if delay <= 0 {
		delay = defaultCategoryDelay
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		streams, err := p.Streams.GetStreams(ctx, p.BroadcasterID)
		switch {
		case err != nil:
			slog.Warn("category lookup failed", slog.String("component", "probe"), slog.Int("attempt", attempt), slog.Any("err", err))
		case len(streams) > 0:
			slog.Info("category attempt", slog.String("component", "probe"), slog.Int("attempt", attempt), slog.String("game_name", streams[0].GameName))
			if streams[0].GameName != "" {
				return streams[0].GameName
			}
		}
		if attempt == attempts {
			break
		}
		if !task.Sleep(ctx, delay) {
			return UnknownCategory
		}
	}
	slog.Warn("category never populated", slog.String("component", "probe"))
	return UnknownCategory
}

// LogMetadata logs the current stream's title, category and start time. Errors
// are logged only.
func (p *Probe) LogMetadata(ctx context.Context) {
	streams, err := p.Streams.GetStreams(ctx, p.BroadcasterID)
	if err != nil {
		slog.Warn("stream metadata fetch failed", slog.String("component", "probe"), slog.Any("err", err))
		return
	}
	if len(streams) == 0 {
		slog.Info("stream metadata: no active stream", slog.String("component", "probe"))
		return
	}
	s := streams[0]
	slog.Info("stream metadata",
		slog.String("component", "probe"),
		slog.String("stream_id", s.ID),
		slog.String("title", s.Title),
		slog.String("game_name", s.GameName),
		slog.Int("viewer_count", s.ViewerCount),
		slog.Time("started_at", s.StartedAt),
	)
}
