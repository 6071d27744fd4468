package recap

import (
	"testing"
	"time"
)

func TestScanDeduplicates(t *testing.T) {
	c := NewCollector("hairyrug_")
	tests := []struct {
		name   string
		author string
		text   string
		want   int
	}{
		{"first link", "Alice", "done! https://leetcode.com/problems/two-sum/submissions/123", 1},
		{"same link again", "Alice", "https://leetcode.com/problems/two-sum/submissions/123", 0},
		{"trailing slash is same url", "alice", "https://leetcode.com/problems/two-sum/submissions/123/", 0},
		{"other user same link", "Bob", "https://www.leetcode.com/problems/two-sum/submissions/123", 1},
		{"two links in one message", "Carol", "https://leetcode.com/problems/a/submissions/1 and http://leetcode.com/problems/b/submissions/2", 2},
		{"bot ignored", "HairyRug_", "https://leetcode.com/problems/x/submissions/9", 0},
		{"problem link without submission", "Dan", "https://leetcode.com/problems/two-sum/", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Scan(tt.author, tt.text); len(got) != tt.want {
				t.Errorf("added = %v, want %d", got, tt.want)
			}
		})
	}
	_, subs := c.Counts()
	if subs != 4 {
		t.Errorf("submissions = %d, want 4", subs)
	}
}

func TestScanNormalizesURL(t *testing.T) {
	c := NewCollector("bot")
	got := c.Scan("Alice", "https://leetcode.com/problems/two-sum/submissions/123")
	if len(got) != 1 {
		t.Fatalf("added = %v", got)
	}
	want := Submission{TwitchUser: "Alice", URL: "https://leetcode.com/problems/two-sum/submissions/123/", Slug: "two-sum"}
	if got[0] != want {
		t.Errorf("submission = %+v, want %+v", got[0], want)
	}
}

func TestAddProblemOrderedUnique(t *testing.T) {
	c := NewCollector("bot")
	for _, s := range []string{"two-sum", "valid-parentheses", "two-sum", ""} {
		c.AddProblem(s)
	}
	r := c.Take(time.Now())
	got := r.Payload.StreamProblems
	if len(got) != 2 || got[0] != "two-sum" || got[1] != "valid-parentheses" {
		t.Errorf("problems = %v", got)
	}
}

func TestTakeResets(t *testing.T) {
	c := NewCollector("bot")
	start := time.Unix(1000, 0)
	c.Reset(start)
	first := c.Take(time.Unix(2000, 0)).SessionID
	c.Scan("Alice", "https://leetcode.com/problems/a/submissions/1")
	c.AddProblem("a")

	r := c.Take(time.Unix(3000, 0))
	if r.Payload.StreamStart != 3000 {
		t.Errorf("start = %d, want end time when unset", r.Payload.StreamStart)
	}
	if r.SessionID == first {
		t.Error("session id not rotated")
	}
	if p, s := c.Counts(); p != 0 || s != 0 {
		t.Errorf("counts after take = %d, %d", p, s)
	}
	// the dedup set is per session
	if got := c.Scan("Alice", "https://leetcode.com/problems/a/submissions/1"); len(got) != 1 {
		t.Error("dedup set survived Take")
	}
}

func TestTakeEmptyPayloadHasArrays(t *testing.T) {
	c := NewCollector("bot")
	c.Reset(time.Unix(1000, 0))
	r := c.Take(time.Unix(2000, 0))
	if r.Payload.StreamProblems == nil || r.Payload.ChatterSubmissions == nil {
		t.Error("expected empty arrays, not null")
	}
	if r.Payload.StreamStart != 1000 || r.Payload.StreamEnd != 2000 {
		t.Errorf("payload = %+v", r.Payload)
	}
}
