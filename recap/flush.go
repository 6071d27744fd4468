package recap

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/howlingfantods/hairyrug/telemetry"
)

// Sender delivers a payload.
type Sender interface {
	Send(ctx context.Context, p Payload) (int, error)
}

// Archive stores delivered recaps (see package db).
type Archive interface {
	SaveRecap(ctx context.Context, sessionID string, start, end time.Time, payload []byte, sinkStatus string) error
}

// Flusher takes the collector's session at stream end and delivers it.
type Flusher struct {
	Collector *Collector
	Sink      Sender
	// Archive is optional.
	Archive Archive
}

// Reset starts a new session in the collector.
func (f *Flusher) Reset(start time.Time) { f.Collector.Reset(start) }

// Flush sends the session recap once. Delivery failures are logged and not
// retried; a missing sink configuration is a silent skip.
func (f *Flusher) Flush(ctx context.Context) {
	logger := slog.Default().With(slog.String("component", "recap"))
	r := f.Collector.Take(time.Now())
	ctx, span := telemetry.StartSpan(ctx, "recap", "recap_flush", telemetry.SessionAttr(r.SessionID))
	defer span.End()
	logger = logger.With(slog.String("session_id", r.SessionID))
	logger.Info("stream problems", slog.Any("problems", r.Payload.StreamProblems))

	status := "skipped"
	code, err := f.Sink.Send(ctx, r.Payload)
	switch {
	case errors.Is(err, ErrSinkDisabled):
		logger.Info("recap sink not configured, skipping")
	case err != nil:
		status = "failed"
		telemetry.Inc(telemetry.RecapsFailed)
		telemetry.RecordError(span, err)
		logger.Error("failed to post recap", slog.Any("err", err))
	default:
		status = strconv.Itoa(code)
		if code >= 200 && code < 300 {
			telemetry.Inc(telemetry.RecapsSent)
		} else {
			telemetry.Inc(telemetry.RecapsFailed)
		}
		logger.Info("posted recap", slog.Int("status", code), slog.Int("chatter_submissions", len(r.Payload.ChatterSubmissions)))
	}

	if f.Archive == nil {
		return
	}
	body, err := json.Marshal(r.Payload)
	if err != nil {
		logger.Error("encode recap for archive", slog.Any("err", err))
		return
	}
	if err := f.Archive.SaveRecap(ctx, r.SessionID, r.Start, r.End, body, status); err != nil {
		logger.Warn("archive recap failed", slog.Any("err", err))
	}
}
