// Package recap collects what happened during a stream (problems worked on,
// chatters' LeetCode submission links) and delivers a summary to the Discord
// bot when the stream ends.
package recap

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/howlingfantods/hairyrug/telemetry"
)

var submissionRE = regexp.MustCompile(`https?://(?:www\.)?leetcode\.com/problems/([^/]+)/submissions/(\d+)`)

// Submission is one chatter-posted submission link.
type Submission struct {
	TwitchUser string `json:"twitch_user"`
	URL        string `json:"url"`
	Slug       string `json:"slug"`
}

// Payload is the body POSTed to the recap sink.
type Payload struct {
	StreamStart        int64        `json:"stream_start"`
	StreamProblems     []string     `json:"stream_problems"`
	StreamEnd          int64        `json:"stream_end"`
	ChatterSubmissions []Submission `json:"chatter_submissions"`
}

// Recap is a finished session's payload plus bookkeeping for the archive.
type Recap struct {
	SessionID string
	Start     time.Time
	End       time.Time
	Payload   Payload
}

type seenKey struct {
	user string
	url  string
}

// Collector is the per-session recap buffer. It is safe for concurrent use:
// the chat reader appends while the lifecycle monitor resets and takes.
type Collector struct {
	// BotName is ignored as an author so the bot never records itself.
	BotName string

	mu          sync.Mutex
	sessionID   string
	start       time.Time
	problems    []string
	submissions []Submission
	seen        map[seenKey]struct{}
}

// NewCollector returns an empty collector.
func NewCollector(botName string) *Collector {
	c := &Collector{BotName: strings.ToLower(botName)}
	c.Reset(time.Time{})
	return c
}

// Reset starts a fresh session beginning at start.
func (c *Collector) Reset(start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = uuid.NewString()
	c.start = start
	c.problems = nil
	c.submissions = nil
	c.seen = make(map[seenKey]struct{})
}

// Scan records every unseen submission link in text posted by author and
// returns the ones it added.
func (c *Collector) Scan(author, text string) []Submission {
	if strings.EqualFold(author, c.BotName) {
		return nil
	}
	matches := submissionRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var added []Submission
	for _, m := range matches {
		url := strings.TrimRight(m[0], "/") + "/"
		key := seenKey{user: strings.ToLower(author), url: url}
		if _, dup := c.seen[key]; dup {
			continue
		}
		c.seen[key] = struct{}{}
		s := Submission{TwitchUser: author, URL: url, Slug: m[1]}
		c.submissions = append(c.submissions, s)
		added = append(added, s)
		telemetry.Inc(telemetry.SubmissionsCaptured)
	}
	return added
}

// AddProblem appends slug to the session's problem list unless present.
func (c *Collector) AddProblem(slug string) bool {
	if slug == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.problems {
		if p == slug {
			return false
		}
	}
	c.problems = append(c.problems, slug)
	return true
}

// Counts returns the number of problems and submissions collected so far.
func (c *Collector) Counts() (problems, submissions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.problems), len(c.submissions)
}

// Take returns the session's recap ending at end and clears the buffer.
// A session with no recorded start is reported as starting at end.
func (c *Collector) Take(end time.Time) Recap {
	c.mu.Lock()
	start := c.start
	if start.IsZero() {
		start = end
	}
	r := Recap{
		SessionID: c.sessionID,
		Start:     start,
		End:       end,
		Payload: Payload{
			StreamStart:        start.Unix(),
			StreamProblems:     nonNil(c.problems),
			StreamEnd:          end.Unix(),
			ChatterSubmissions: nonNilSubs(c.submissions),
		},
	}
	c.mu.Unlock()
	c.Reset(time.Time{})
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSubs(s []Submission) []Submission {
	if s == nil {
		return []Submission{}
	}
	return s
}
