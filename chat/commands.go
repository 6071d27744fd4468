package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/howlingfantods/hairyrug/leetcode"
)

const (
	defaultLTMinutes = 30
	maxMinutes       = 180
)

// PlainTimer is the !lt countdown.
type PlainTimer interface {
	Start(ctx context.Context, name string, minutes int)
	Clear()
}

// LockInTimer is the !ltlockin countdown.
type LockInTimer interface {
	Start(ctx context.Context, label string, minutes int)
	Clear()
}

// Problems looks up LeetCode metadata.
type Problems interface {
	Daily(ctx context.Context) (*leetcode.Daily, error)
	ProblemByID(ctx context.Context, id string) (*leetcode.Problem, error)
	ProblemBySlug(ctx context.Context, slug string) (*leetcode.Problem, error)
}

// Deps are the collaborators NewRouter wires into command handlers.
type Deps struct {
	Reply     Announcer
	Collector SubmissionScanner
	IsLive    func() bool
	BotName   string

	LT       PlainTimer
	LockIn   LockInTimer
	Problems Problems
	Labeler  Labeler
	// Timers outlive the command that started them, so they run under this
	// context rather than the per-command one.
	TimerCtx      context.Context
	DiscordInvite string
}

// NewRouter returns a Router with the bot's command set registered.
func NewRouter(d Deps) *Router {
	r := &Router{Reply: d.Reply, Collector: d.Collector, IsLive: d.IsLive, BotName: d.BotName}
	timerCtx := d.TimerCtx
	if timerCtx == nil {
		timerCtx = context.Background()
	}
	r.register("lt", command{privileged: true, hidden: true, handler: func(ctx context.Context, m Message, args []string) {
		r.cmdLT(timerCtx, d.LT, m, args)
	}})
	r.register("ltlockin", command{privileged: true, hidden: true, handler: func(ctx context.Context, m Message, args []string) {
		r.cmdLockIn(ctx, timerCtx, d.LockIn, d.Labeler, m, args)
	}})
	r.register("problem", command{handler: func(ctx context.Context, m Message, args []string) {
		r.cmdProblem(ctx, d.Problems, args)
	}})
	r.register("daily", command{handler: func(ctx context.Context, m Message, args []string) {
		r.cmdDaily(ctx, d.Problems)
	}})
	r.register("discord", command{handler: func(ctx context.Context, m Message, args []string) {
		if d.DiscordInvite == "" {
			slog.Info("!discord ignored, DISCORD_INVITE not set", slog.String("component", "chat"))
			return
		}
		r.Reply.Say(d.DiscordInvite)
	}})
	r.register("commands", command{hidden: true, handler: func(ctx context.Context, m Message, args []string) {
		visible := r.VisibleCommands()
		if len(visible) == 0 {
			r.Reply.Say("No commands available.")
			return
		}
		r.Reply.Say("📜 " + strings.Join(visible, " "))
	}})
	return r
}

// parseMinutes accepts 1..180.
func parseMinutes(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxMinutes {
		return 0, false
	}
	return n, true
}

// !lt <url> [minutes] | !lt clear
func (r *Router) cmdLT(timerCtx context.Context, lt PlainTimer, m Message, args []string) {
	if len(args) > 0 && strings.EqualFold(args[0], "clear") {
		lt.Clear()
		r.setCurrentProblem("")
		return
	}
	if len(args) == 0 {
		slog.Info("!lt missing url", slog.String("component", "chat"), slog.String("user", m.Author))
		return
	}
	target := args[0]
	minutes := defaultLTMinutes
	if len(args) > 1 {
		n, ok := parseMinutes(args[1])
		if !ok {
			slog.Info("!lt invalid minutes", slog.String("component", "chat"), slog.String("user", m.Author), slog.String("minutes", args[1]))
			return
		}
		minutes = n
	}

	r.setCurrentProblem(target)
	if slug, ok := leetcode.SlugFromURL(target); ok && r.Collector != nil {
		if r.Collector.AddProblem(slug) {
			slog.Info("tracking stream problem", slog.String("component", "recap"), slog.String("slug", slug))
		}
	}
	lt.Start(timerCtx, leetcode.ProblemName(target), minutes)
}

// !ltlockin <target...> <minutes> | !ltlockin clear
func (r *Router) cmdLockIn(ctx, timerCtx context.Context, lock LockInTimer, labeler Labeler, m Message, args []string) {
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		lock.Clear()
		return
	}
	if len(args) < 2 {
		slog.Info("!ltlockin needs a target and minutes", slog.String("component", "chat"), slog.String("user", m.Author))
		return
	}
	minutes, ok := parseMinutes(args[len(args)-1])
	if !ok {
		slog.Info("!ltlockin invalid minutes", slog.String("component", "chat"), slog.String("minutes", args[len(args)-1]))
		return
	}
	target := strings.TrimSpace(strings.Join(args[:len(args)-1], " "))
	r.setCurrentProblem(target)
	lock.Start(timerCtx, LockInLabel(ctx, labeler, target), minutes)
}

// !problem [number]
func (r *Router) cmdProblem(ctx context.Context, problems Problems, args []string) {
	if len(args) > 0 {
		id := args[0]
		if _, err := strconv.ParseUint(id, 10, 32); err != nil {
			r.Reply.Say("❌ Usage: !problem <number>")
			return
		}
		p, err := problems.ProblemByID(ctx, id)
		if err != nil {
			slog.Error("!problem fetch failed", slog.String("component", "chat"), slog.String("id", id), slog.Any("err", err))
			r.Reply.Say("❌ Failed to fetch that problem.")
			return
		}
		r.Reply.Say(fmt.Sprintf("🧩 #%s: %s (%s) | %s", id, p.Title, p.Difficulty, p.URL))
		return
	}

	target := strings.TrimSpace(r.CurrentProblem())
	if target == "" {
		r.Reply.Say("❌ No problem is currently being worked on.")
		return
	}
	if !isHTTPURL(target) {
		r.Reply.Say(fmt.Sprintf("🔍 Working on: %s (no link available)", target))
		return
	}
	u, err := url.Parse(target)
	if err == nil && strings.Contains(u.Host, "leetcode.com") {
		if slug, ok := leetcode.SlugFromURL(target); ok {
			p, err := problems.ProblemBySlug(ctx, slug)
			if err != nil {
				slog.Info("!problem slug fetch failed", slog.String("component", "chat"), slog.String("slug", slug), slog.Any("err", err))
				r.Reply.Say(fmt.Sprintf("🔍 Working on: %s | %s", leetcode.TitleSlug(slug), target))
				return
			}
			r.Reply.Say(fmt.Sprintf("🧩 %s (%s) | https://leetcode.com/problems/%s/", p.Title, p.Difficulty, slug))
			return
		}
	}
	r.Reply.Say("🔍 Working on: " + target)
}

// !daily
func (r *Router) cmdDaily(ctx context.Context, problems Problems) {
	d, err := problems.Daily(ctx)
	if err != nil {
		slog.Error("!daily fetch failed", slog.String("component", "chat"), slog.Any("err", err))
		return
	}
	r.Reply.Say(fmt.Sprintf("📅 Daily: %s (%s) | %s", d.Question.Title, d.Question.Difficulty, d.URL()))
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
