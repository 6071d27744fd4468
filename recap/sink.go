package recap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/howlingfantods/hairyrug/telemetry"
)

// ErrSinkDisabled is returned when the sink URL or secret is missing.
var ErrSinkDisabled = errors.New("recap: sink not configured")

// Sink POSTs recaps to {BaseURL}/recap with a bearer secret.
type Sink struct {
	BaseURL    string
	Secret     string
	HTTPClient *http.Client
}

// NewSink returns a Sink with a 10s timeout.
func NewSink(baseURL, secret string) *Sink {
	return &Sink{BaseURL: baseURL, Secret: secret, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// Send delivers p once and returns the response status. Non-2xx responses
// are reported through the status only; the caller logs them.
func (s *Sink) Send(ctx context.Context, p Payload) (int, error) {
	if s == nil || s.BaseURL == "" || s.Secret == "" {
		return 0, ErrSinkDisabled
	}
	ctx, span := telemetry.StartSpan(ctx, "recap", "recap_post")
	defer span.End()
	defer telemetry.ObserveCall("recap_post", time.Now())

	body, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/recap", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Secret)
	hc := s.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("post recap: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	span.SetAttributes(telemetry.HTTPStatusAttr(resp.StatusCode))
	return resp.StatusCode, nil
}
