// Package spotify reads the broadcaster's current playback from the Spotify
// Web API. Access tokens are minted from a long-lived refresh token through
// golang.org/x/oauth2 and, when a TokenStore is configured, persisted so a
// rotated refresh token survives restarts.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	spotifyauth "golang.org/x/oauth2/spotify"

	"github.com/howlingfantods/hairyrug/config"
	"github.com/howlingfantods/hairyrug/telemetry"
)

const (
	provider       = "spotify"
	defaultBaseURL = "https://api.spotify.com/v1"
)

// Scopes needed to read playback.
var Scopes = []string{"user-read-currently-playing", "user-read-playback-state"}

// ErrNotConfigured is returned by New when Spotify client credentials or a
// refresh token are missing.
var ErrNotConfigured = errors.New("spotify: not configured")

// TokenStore persists OAuth tokens (see package db).
type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
}

// Service is a playback client.
type Service struct {
	// BaseURL overrides the Web API root (tests).
	BaseURL string
	client  *http.Client
}

// New builds a Service from config. The refresh token comes from the store
// when it holds one, else from SPOTIFY_REFRESH_TOKEN. store may be nil.
func New(ctx context.Context, cfg *config.Config, store TokenStore) (*Service, error) {
	if !cfg.SpotifyEnabled() {
		return nil, ErrNotConfigured
	}
	oc := &oauth2.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		Endpoint:     spotifyauth.Endpoint,
		RedirectURL:  cfg.SpotifyRedirectURI,
		Scopes:       Scopes,
	}
	seed := &oauth2.Token{RefreshToken: cfg.SpotifyRefreshToken}
	if store != nil {
		access, refresh, expiry, _, err := store.GetOAuthToken(ctx, provider)
		switch {
		case err != nil:
			slog.Warn("stored spotify token read failed", slog.String("component", "spotify"), slog.Any("err", err))
		case refresh != "":
			seed = &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
		}
	}
	if seed.RefreshToken == "" {
		slog.Warn("spotify credentials set but no refresh token in SPOTIFY_REFRESH_TOKEN or the token store", slog.String("component", "spotify"))
		return nil, ErrNotConfigured
	}
	var ts oauth2.TokenSource = oc.TokenSource(ctx, seed)
	if store != nil {
		ts = &persistingSource{base: ts, store: store, last: seed.AccessToken}
	}
	return NewWithTokenSource(ctx, ts), nil
}

// NewWithTokenSource builds a Service over an existing token source.
func NewWithTokenSource(ctx context.Context, ts oauth2.TokenSource) *Service {
	c := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
	c.Timeout = 10 * time.Second
	return &Service{client: c}
}

// persistingSource writes every newly minted token back to the store.
type persistingSource struct {
	base  oauth2.TokenSource
	store TokenStore
	last  string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.store.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(Scopes, " ")); err != nil {
			slog.Warn("persist spotify token failed", slog.String("component", "spotify"), slog.Any("err", err))
		}
	}
	return tok, nil
}

// Playback is GET /me/player.
type Playback struct {
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int    `json:"progress_ms"`
	Item       *Track `json:"item"`
}

// Track is a playback item.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	DurationMs int      `json:"duration_ms"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
}

type Artist struct {
	Name string `json:"name"`
}

type Album struct {
	Images []Image `json:"images"`
}

type Image struct {
	URL string `json:"url"`
}

// ArtistNames joins the artists with ", ".
func (t *Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// AlbumArt returns the first album image URL or "".
func (t *Track) AlbumArt() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

// Playing reports whether a track is actively playing.
func (p *Playback) Playing() bool {
	return p != nil && p.IsPlaying && p.Item != nil
}

// CurrentPlayback returns the player state, or nil when nothing is active (204).
func (s *Service) CurrentPlayback(ctx context.Context) (*Playback, error) {
	ctx, span := telemetry.StartSpan(ctx, "spotify", "spotify_player")
	defer span.End()
	defer telemetry.ObserveCall("spotify_player", time.Now())

	base := s.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/me/player", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("spotify player: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	span.SetAttributes(telemetry.HTTPStatusAttr(resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("spotify player: HTTP %d: %s", resp.StatusCode, string(b))
		telemetry.RecordError(span, err)
		return nil, err
	}
	var pb Playback
	if err := json.NewDecoder(resp.Body).Decode(&pb); err != nil {
		return nil, fmt.Errorf("decode spotify player: %w", err)
	}
	telemetry.SetSpanSuccess(span)
	return &pb, nil
}
