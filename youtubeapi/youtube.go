// Package youtubeapi wraps the YouTube Data API for the single purpose of
// naming lock-in targets: a video link becomes "Title - Channel" and a
// playlist link "YouTube Playlist - Title". Requests use an API key; no user
// OAuth is involved.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/howlingfantods/hairyrug/telemetry"
)

// Fallback labels used when the API is unavailable or returns nothing.
const (
	LabelVideo    = "YouTube Video"
	LabelShort    = "YouTube Short"
	LabelPlaylist = "YouTube Playlist"
	LabelGeneric  = "YouTube"
)

// ErrNoAPIKey is returned by New when the key is empty.
var ErrNoAPIKey = errors.New("youtubeapi: no api key")

type Service struct {
	svc *yt.Service
}

// New builds a Service. Extra options are appended after the API key (tests
// pass an endpoint and HTTP client).
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Service, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Service{svc: svc}, nil
}

// VideoLabel returns "Title - Channel" for a video id.
func (s *Service) VideoLabel(ctx context.Context, id string) (string, error) {
	defer telemetry.ObserveCall("youtube_videos", time.Now())
	res, err := s.svc.Videos.List([]string{"snippet"}).Id(id).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(res.Items) == 0 || res.Items[0].Snippet == nil {
		return LabelVideo, nil
	}
	sn := res.Items[0].Snippet
	title := sn.Title
	if title == "" {
		title = LabelVideo
	}
	channel := sn.ChannelTitle
	if channel == "" {
		channel = LabelGeneric
	}
	return title + " - " + channel, nil
}

// PlaylistLabel returns "YouTube Playlist - Title" for a playlist id.
func (s *Service) PlaylistLabel(ctx context.Context, id string) (string, error) {
	defer telemetry.ObserveCall("youtube_playlists", time.Now())
	res, err := s.svc.Playlists.List([]string{"snippet"}).Id(id).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(res.Items) == 0 || res.Items[0].Snippet == nil {
		return LabelPlaylist, nil
	}
	title := res.Items[0].Snippet.Title
	if title == "" {
		title = "Playlist"
	}
	return LabelPlaylist + " - " + title, nil
}

// IsYouTube reports whether u points at youtube.com or youtu.be.
func IsYouTube(u *url.URL) bool {
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	return strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be")
}

type linkKind int

const (
	kindOther linkKind = iota
	kindVideo
	kindShort
	kindPlaylist
)

// parseLink classifies a YouTube URL and extracts the video or playlist id.
func parseLink(u *url.URL) (linkKind, string) {
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	path := strings.Trim(u.Path, "/")
	switch {
	case strings.Contains(host, "youtu.be"):
		return kindVideo, path
	case strings.Contains(host, "youtube.com"):
		switch {
		case strings.HasPrefix(path, "watch"):
			return kindVideo, u.Query().Get("v")
		case strings.HasPrefix(path, "shorts/"):
			parts := strings.Split(path, "/")
			return kindShort, parts[1]
		case strings.HasPrefix(path, "playlist"):
			return kindPlaylist, u.Query().Get("list")
		}
	}
	return kindOther, ""
}

// Label names a YouTube link. A nil Service (no API key) yields the generic
// video label; API failures fall back to the kind's generic label.
func (s *Service) Label(ctx context.Context, u *url.URL) string {
	if s == nil {
		slog.Info("YOUTUBE_API_KEY not set, using generic youtube label", slog.String("component", "youtubeapi"))
		return LabelVideo
	}
	kind, id := parseLink(u)
	fallback := LabelVideo
	switch kind {
	case kindOther:
		return LabelGeneric
	case kindShort:
		fallback = LabelShort
	case kindPlaylist:
		fallback = LabelPlaylist
	}
	if id == "" {
		return fallback
	}

	var (
		label string
		err   error
	)
	if kind == kindPlaylist {
		label, err = s.PlaylistLabel(ctx, id)
	} else {
		label, err = s.VideoLabel(ctx, id)
	}
	if err != nil {
		slog.Error("youtube label lookup failed", slog.String("component", "youtubeapi"), slog.String("url", u.String()), slog.Any("err", err))
		return fallback
	}
	return label
}
