// Package twitchapi contains minimal helpers for the Twitch Helix endpoints the
// bot needs: stream status, archived videos (list/delete) and commercial breaks.
// Responses are decoded into typed structs at this boundary.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/howlingfantods/hairyrug/telemetry"
)

const (
	defaultBaseURL = "https://api.twitch.tv/helix"

	// helixMaxRetries bounds attempts for idempotent GETs on 429/5xx.
	helixMaxRetries = 3
)

// ErrNotFound is returned when a lookup yields no rows.
var ErrNotFound = errors.New("twitchapi: not found")

type singleAttemptKey struct{}

// SingleAttempt marks ctx so GETs made with it are not retried on 429/5xx.
// Callers that poll on their own schedule use it to keep one request per poll.
func SingleAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, singleAttemptKey{}, true)
}

func retriesAllowed(ctx context.Context) bool {
	single, _ := ctx.Value(singleAttemptKey{}).(bool)
	return !single
}

// APIError is a non-success HTTP response from Twitch.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api: HTTP %d: %s", e.StatusCode, e.Body)
}

// HelixClient issues Helix calls with the Client-Id header and a bearer token from Tokens.
type HelixClient struct {
	Tokens     Tokens
	ClientID   string
	HTTPClient *http.Client
	// BaseURL overrides the Helix root (tests); defaults to https://api.twitch.tv/helix.
	BaseURL string
	// RetryBackoff is the base delay between GET retries (default 500ms).
	RetryBackoff time.Duration
}

func (hc *HelixClient) client() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) endpoint(path string, q url.Values) string {
	base := hc.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// Stream is one entry of GET /streams.
type Stream struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserLogin   string    `json:"user_login"`
	GameID      string    `json:"game_id"`
	GameName    string    `json:"game_name"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

// GetStreams returns the active streams for a broadcaster id; empty means offline.
func (hc *HelixClient) GetStreams(ctx context.Context, userID string) ([]Stream, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID empty")
	}
	q := url.Values{}
	q.Set("user_id", userID)
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.do(ctx, "helix_streams", http.MethodGet, hc.endpoint("/streams", q), nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Video is one archived recording from GET /videos.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Duration  string    `json:"duration"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// ListVideos lists archive videos for a user, newest first.
func (hc *HelixClient) ListVideos(ctx context.Context, userID, after string, first int) ([]Video, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("userID empty")
	}
	if first <= 0 {
		first = 20
	}
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("type", "archive")
	q.Set("first", strconv.Itoa(first))
	if after != "" {
		q.Set("after", after)
	}
	var body struct {
		Data       []Video `json:"data"`
		Pagination struct {
			Cursor string `json:"cursor"`
		} `json:"pagination"`
	}
	if err := hc.do(ctx, "helix_videos", http.MethodGet, hc.endpoint("/videos", q), nil, &body); err != nil {
		return nil, "", err
	}
	return body.Data, body.Pagination.Cursor, nil
}

// LatestArchive returns the most recent archived recording, or ErrNotFound.
func (hc *HelixClient) LatestArchive(ctx context.Context, userID string) (*Video, error) {
	videos, _, err := hc.ListVideos(ctx, userID, "", 1)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, ErrNotFound
	}
	return &videos[0], nil
}

// DeleteVideos deletes recordings by id (requires channel:manage:videos).
func (hc *HelixClient) DeleteVideos(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return fmt.Errorf("no video ids")
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	return hc.do(ctx, "helix_delete_videos", http.MethodDelete, hc.endpoint("/videos", q), nil, nil)
}

// Commercial is the result of POST /channels/commercial.
type Commercial struct {
	Length     int    `json:"length"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// StartCommercial runs an ad break of length seconds (requires channel:edit:commercial).
func (hc *HelixClient) StartCommercial(ctx context.Context, broadcasterID string, length int) (*Commercial, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	payload := map[string]any{"broadcaster_id": broadcasterID, "length": length}
	var body struct {
		Data []Commercial `json:"data"`
	}
	if err := hc.do(ctx, "helix_commercial", http.MethodPost, hc.endpoint("/channels/commercial", nil), payload, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return &Commercial{Length: length}, nil
	}
	return &body.Data[0], nil
}

// do performs one Helix call. GETs are retried on 429/5xx unless ctx came
// from SingleAttempt; any method is retried once after a 401 if the token
// source can be invalidated.
func (hc *HelixClient) do(ctx context.Context, call, method, u string, payload any, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", call, telemetry.HTTPMethodAttr(method))
	defer span.End()
	start := time.Now()
	defer telemetry.ObserveCall(call, start)

	backoff := hc.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	refreshed := false
	for attempt := 1; ; attempt++ {
		status, err := hc.once(ctx, method, u, payload, out)
		if err == nil {
			span.SetAttributes(telemetry.HTTPStatusAttr(status))
			telemetry.SetSpanSuccess(span)
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusUnauthorized && !refreshed {
				if inv, ok := hc.Tokens.(invalidator); ok {
					inv.Invalidate()
					refreshed = true
					continue
				}
			}
			retryable := apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
			if method == http.MethodGet && retryable && attempt < helixMaxRetries && retriesAllowed(ctx) {
				slog.Debug("helix retry", slog.String("call", call), slog.Int("status", apiErr.StatusCode), slog.Int("attempt", attempt))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff * time.Duration(attempt)):
				}
				continue
			}
		}
		telemetry.RecordError(span, err)
		return err
	}
}

func (hc *HelixClient) once(ctx context.Context, method, u string, payload any, out any) (int, error) {
	if hc.Tokens == nil {
		return 0, errors.New("twitchapi: no token source")
	}
	tok, err := hc.Tokens.Get(ctx)
	if err != nil {
		return 0, err
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return resp.StatusCode, nil
}
