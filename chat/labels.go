package chat

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/howlingfantods/hairyrug/leetcode"
	"github.com/howlingfantods/hairyrug/youtubeapi"
)

// Labeler names YouTube links (see youtubeapi.Service).
type Labeler interface {
	Label(ctx context.Context, u *url.URL) string
}

// LockInLabel turns a lock-in target into the overlay label: plain text is
// kept, LeetCode problem links become the title-cased slug, YouTube links are
// looked up, and any other link shows its bare domain.
func LockInLabel(ctx context.Context, yt Labeler, target string) string {
	target = strings.TrimSpace(target)
	if !isHTTPURL(target) {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		slog.Warn("error building lock-in label", slog.String("component", "chat"), slog.String("target", target), slog.Any("err", err))
		return target
	}
	domain := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	switch {
	case strings.Contains(domain, "leetcode.com"):
		if strings.Contains(u.Path, "/problems/") {
			slug := strings.SplitN(strings.SplitN(u.Path, "/problems/", 2)[1], "/", 2)[0]
			return leetcode.TitleSlug(slug)
		}
		return "LeetCode"
	case youtubeapi.IsYouTube(u):
		if yt == nil {
			return youtubeapi.LabelVideo
		}
		return yt.Label(ctx, u)
	default:
		return domain
	}
}
