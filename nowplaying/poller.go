// Package nowplaying mirrors the broadcaster's Spotify playback onto the overlay.
package nowplaying

import (
	"context"
	"log/slog"
	"time"

	"github.com/howlingfantods/hairyrug/overlay"
	"github.com/howlingfantods/hairyrug/spotify"
	"github.com/howlingfantods/hairyrug/task"
)

// Player reports current playback; nil means nothing is active.
type Player interface {
	CurrentPlayback(ctx context.Context) (*spotify.Playback, error)
}

// Poller polls the Player while the session is live. Track changes are
// broadcast immediately and the current track is re-sent every Resync so
// overlays that connect mid-song catch up.
type Poller struct {
	Player  Player
	Overlay overlay.Broadcaster
	IsLive  func() bool

	Interval time.Duration
	Resync   time.Duration
}

// New returns a Poller polling every 5s.
func New(p Player, b overlay.Broadcaster, isLive func() bool, resync time.Duration) *Poller {
	return &Poller{Player: p, Overlay: b, IsLive: isLive, Interval: 5 * time.Second, Resync: resync}
}

// Run blocks until ctx is cancelled or the session ends, then broadcasts a
// final not-playing message to clear the overlay.
func (p *Poller) Run(ctx context.Context) {
	logger := slog.Default().With(slog.String("component", "nowplaying"))
	logger.Info("now-playing poller started")
	defer func() {
		p.Overlay.Broadcast(overlay.NowPlaying{IsPlaying: false})
		logger.Info("now-playing poller stopped")
	}()

	var (
		lastKey    string
		wasPlaying bool
		lastSent   time.Time
	)
	for ctx.Err() == nil && p.IsLive() {
		pb, err := p.Player.CurrentPlayback(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			logger.Error("error polling spotify playback", slog.Any("err", err))
		case pb.Playing():
			item := pb.Item
			key := trackKey(item)
			changed := !wasPlaying || key != lastKey
			if changed {
				lastKey, wasPlaying = key, true
				logger.Info("now playing", slog.String("song", item.Name), slog.String("artists", item.ArtistNames()))
			}
			if changed || p.Resync <= 0 || time.Since(lastSent) >= p.Resync {
				p.Overlay.Broadcast(overlay.NowPlaying{
					Song:       item.Name,
					Artists:    item.ArtistNames(),
					AlbumArt:   item.AlbumArt(),
					ProgressMs: pb.ProgressMs,
					DurationMs: item.DurationMs,
					IsPlaying:  true,
				})
				lastSent = time.Now()
			}
		default:
			if wasPlaying {
				lastKey, wasPlaying = "", false
				logger.Info("spotify playback stopped or paused")
				p.Overlay.Broadcast(overlay.NowPlaying{IsPlaying: false})
			}
		}
		if !task.Sleep(ctx, p.Interval) {
			return
		}
	}
}

// trackKey identifies a track for change detection. Local files have no
// Spotify id, so they fall back to name and artists.
func trackKey(t *spotify.Track) string {
	if t.ID != "" {
		return t.ID
	}
	return "local:" + t.Name + "|" + t.ArtistNames()
}
