// Package vod implements the end-of-stream cleanup action: when the stream
// ended in a configured category, the most recent archived recording is deleted.
package vod

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/howlingfantods/hairyrug/telemetry"
	"github.com/howlingfantods/hairyrug/twitchapi"
)

// Outcome describes what a cleanup pass did.
type Outcome int

const (
	// OutcomeSkipped means the category did not match.
	OutcomeSkipped Outcome = iota
	// OutcomeNoRecording means the category matched but no archive exists.
	OutcomeNoRecording
	// OutcomeDeleted means the latest archive was deleted (or would be, in dry-run).
	OutcomeDeleted
	// OutcomeFailed means a Helix call failed; the failure was logged.
	OutcomeFailed
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoRecording:
		return "no_recording"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CategoryProber reports the stream's current category.
type CategoryProber interface {
	CurrentCategory(ctx context.Context) string
}

// VideoStore lists and deletes archived recordings.
type VideoStore interface {
	LatestArchive(ctx context.Context, userID string) (*twitchapi.Video, error)
	DeleteVideos(ctx context.Context, ids ...string) error
}

// Cleaner deletes the latest archive when the stream's category equals Category.
type Cleaner struct {
	Prober        CategoryProber
	Videos        VideoStore
	BroadcasterID string
	Category      string
	// DryRun logs the deletion without issuing it.
	DryRun bool
}

// NewCleaner builds a Cleaner; VOD_CLEANUP_DRY_RUN=1 enables dry-run.
func NewCleaner(p CategoryProber, v VideoStore, broadcasterID, category string) *Cleaner {
	return &Cleaner{
		Prober:        p,
		Videos:        v,
		BroadcasterID: broadcasterID,
		Category:      category,
		DryRun:        os.Getenv("VOD_CLEANUP_DRY_RUN") == "1",
	}
}

// MaybeDeleteLatest runs one cleanup pass. It never returns an error: every
// failure is logged so the offline handler always completes.
func (c *Cleaner) MaybeDeleteLatest(ctx context.Context) Outcome {
	logger := slog.Default().With(
		slog.String("component", "vod_cleanup"),
		slog.Bool("dry_run", c.DryRun),
	)
	category := c.Prober.CurrentCategory(ctx)
	logger.Info("vod deletion check", slog.String("category", category))
	if category != c.Category {
		logger.Info("skipping vod deletion, category does not match", slog.String("want", c.Category))
		return OutcomeSkipped
	}

	video, err := c.Videos.LatestArchive(ctx, c.BroadcasterID)
	if errors.Is(err, twitchapi.ErrNotFound) {
		logger.Info("no vod found to delete")
		return OutcomeNoRecording
	}
	if err != nil {
		logger.Error("failed to fetch latest vod", slog.Any("err", err))
		return OutcomeFailed
	}
	logger.Info("latest vod to delete", slog.String("vod_id", video.ID), slog.String("title", video.Title))

	if c.DryRun {
		logger.Info("dry-run: would delete vod", slog.String("vod_id", video.ID))
		return OutcomeDeleted
	}
	if err := c.Videos.DeleteVideos(ctx, video.ID); err != nil {
		logger.Error("failed to delete vod", slog.String("vod_id", video.ID), slog.Any("err", err))
		return OutcomeFailed
	}
	telemetry.Inc(telemetry.VODsDeleted)
	logger.Info("deleted vod", slog.String("vod_id", video.ID))
	return OutcomeDeleted
}
