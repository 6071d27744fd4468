// Package leetcode wraps the public problem-metadata API used by !daily and
// !problem, plus helpers for LeetCode problem URLs.
package leetcode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/howlingfantods/hairyrug/telemetry"
)

// DefaultBaseURL is the community API the bot queries.
const DefaultBaseURL = "https://leetcode-api-pied.vercel.app"

var slugRE = regexp.MustCompile(`leetcode\.com/problems/([^/]+)`)

// Client queries the problem-metadata API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a Client with a 10s timeout.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// Problem is the subset of problem metadata the bot displays.
type Problem struct {
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
	URL        string `json:"url"`
}

// Daily is the daily challenge.
type Daily struct {
	Question struct {
		Title      string `json:"title"`
		Difficulty string `json:"difficulty"`
	} `json:"question"`
	// Link is a site-relative path such as /problems/two-sum/.
	Link string `json:"link"`
}

// URL returns the absolute daily link.
func (d *Daily) URL() string { return "https://leetcode.com" + d.Link }

// Daily fetches today's challenge.
func (c *Client) Daily(ctx context.Context) (*Daily, error) {
	var d Daily
	if err := c.get(ctx, "leetcode_daily", "/daily", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ProblemByID fetches a problem by its frontend number.
func (c *Client) ProblemByID(ctx context.Context, id string) (*Problem, error) {
	var p Problem
	if err := c.get(ctx, "leetcode_problem", "/problem/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ProblemBySlug fetches a problem by its URL slug.
func (c *Client) ProblemBySlug(ctx context.Context, slug string) (*Problem, error) {
	var p Problem
	if err := c.get(ctx, "leetcode_slug", "/slug/"+url.PathEscape(slug), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) get(ctx context.Context, call, path string, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "leetcode", call, telemetry.HTTPRouteAttr(path))
	defer span.End()
	defer telemetry.ObserveCall(call, time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	span.SetAttributes(telemetry.HTTPStatusAttr(resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("leetcode %s: HTTP %d: %s", path, resp.StatusCode, string(b))
		telemetry.RecordError(span, err)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode leetcode %s: %w", path, err)
	}
	return nil
}

// SlugFromURL extracts the problem slug from a LeetCode URL.
func SlugFromURL(u string) (string, bool) {
	m := slugRE.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ProblemName returns a display name for a problem URL, or "Problem".
func ProblemName(u string) string {
	slug, ok := SlugFromURL(u)
	if !ok {
		return "Problem"
	}
	return TitleSlug(slug)
}

// TitleSlug turns "two-sum" into "Two Sum". A letter is upper-cased when it
// follows a non-letter, lower-cased otherwise ("3sum" becomes "3Sum").
func TitleSlug(slug string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range strings.ReplaceAll(slug, "-", " ") {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
