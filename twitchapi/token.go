package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenURL = "https://id.twitch.tv/oauth2/token"

// Tokens yields the bearer token attached to Helix requests.
type Tokens interface {
	Get(ctx context.Context) (string, error)
}

// invalidator is implemented by token sources that can drop a token the API rejected.
type invalidator interface {
	Invalidate()
}

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// App tokens can read stream status but cannot start commercials or delete videos;
// those calls need a broadcaster user token (StaticToken or StoredToken).
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Until(ts.expiresAt) > time.Minute {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

// SetToken seeds the cache, mainly for tests and for tokens obtained elsewhere.
func (ts *TokenSource) SetToken(token string, expiresAt time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = token
	ts.expiresAt = expiresAt
}

// Invalidate forgets the cached token so the next Get fetches a new one.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiresAt = time.Time{}
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Until(ts.expiresAt) > time.Minute {
		return ts.token, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	form.Set("grant_type", "client_credentials")
	var at struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := postForm(ctx, ts.HTTPClient, form, &at); err != nil {
		return "", fmt.Errorf("twitch app token: %w", err)
	}
	if at.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	ts.token = at.AccessToken
	ts.expiresAt = ComputeExpiry(at.ExpiresIn)
	return ts.token, nil
}

// StaticToken is a pre-issued user access token taken from configuration.
type StaticToken string

func (s StaticToken) Get(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("twitch user token not configured")
	}
	return string(s), nil
}

// TokenStore reads persisted OAuth tokens (see package db).
type TokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
}

// StoredToken reads the broadcaster user token from a TokenStore, which the
// background refresher keeps current, and falls back to Fallback when the
// store has no row yet.
type StoredToken struct {
	Store    TokenStore
	Provider string
	Fallback string
}

func (s *StoredToken) Get(ctx context.Context) (string, error) {
	if s.Store != nil {
		access, _, _, _, err := s.Store.GetOAuthToken(ctx, s.Provider)
		if err != nil {
			slog.Warn("stored twitch token read failed", slog.String("provider", s.Provider), slog.Any("err", err))
		} else if access != "" {
			return access, nil
		}
	}
	return StaticToken(s.Fallback).Get(ctx)
}

func postForm(ctx context.Context, hc *http.Client, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
