package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/howlingfantods/hairyrug/recap"
	"github.com/howlingfantods/hairyrug/telemetry"
)

// Message is one chat line.
type Message struct {
	Author      string
	DisplayName string
	Text        string
	Badges      map[string]int
}

// Privileged reports whether the author is the broadcaster, a moderator or a VIP.
func (m Message) Privileged() bool {
	for _, b := range []string{"broadcaster", "moderator", "vip"} {
		if m.Badges[b] > 0 {
			return true
		}
	}
	return false
}

// Announcer posts to chat.
type Announcer interface {
	Say(msg string)
}

// SubmissionScanner is the recap collector's chat-facing side.
type SubmissionScanner interface {
	Scan(author, text string) []recap.Submission
	AddProblem(slug string) bool
}

type command struct {
	handler    func(ctx context.Context, m Message, args []string)
	privileged bool
	hidden     bool
}

// Router dispatches commands and feeds the submission scanner.
type Router struct {
	Reply     Announcer
	Collector SubmissionScanner
	IsLive    func() bool
	BotName   string
	// CommandTimeout bounds each command's external lookups (default 10s).
	CommandTimeout time.Duration

	commands map[string]command

	mu             sync.Mutex
	currentProblem string
}

// Handle processes one chat message.
func (r *Router) Handle(ctx context.Context, m Message) {
	if strings.HasPrefix(m.Text, "!") {
		slog.Info("command", slog.String("component", "chat"), slog.String("user", m.Author), slog.String("text", m.Text))
	}
	if strings.EqualFold(m.Author, r.BotName) {
		return
	}
	if r.Collector != nil && r.IsLive != nil && r.IsLive() {
		for _, s := range r.Collector.Scan(m.Author, m.Text) {
			slog.Info("captured submission", slog.String("component", "recap"), slog.String("user", s.TwitchUser), slog.String("url", s.URL))
		}
	}
	r.dispatch(ctx, m)
}

func (r *Router) dispatch(ctx context.Context, m Message) {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	cmd, ok := r.commands[name]
	if !ok {
		return
	}
	if cmd.privileged && !m.Privileged() {
		slog.Info("command ignored, insufficient permissions", slog.String("component", "chat"), slog.String("command", name), slog.String("user", m.Author))
		return
	}
	telemetry.IncVec(telemetry.CommandsHandled, name)

	timeout := r.CommandTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("error in command", slog.String("component", "chat"), slog.String("command", name), slog.String("user", m.Author), slog.Any("err", rec))
		}
	}()
	cmd.handler(cctx, m, fields[1:])
}

func (r *Router) register(name string, c command) {
	if r.commands == nil {
		r.commands = make(map[string]command)
	}
	r.commands[name] = c
}

// VisibleCommands lists the commands shown by !commands, sorted.
func (r *Router) VisibleCommands() []string {
	var out []string
	for name, c := range r.commands {
		if !c.hidden {
			out = append(out, "!"+name)
		}
	}
	sort.Strings(out)
	return out
}

// CurrentProblem returns the problem set by the last !lt or !ltlockin.
func (r *Router) CurrentProblem() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentProblem
}

func (r *Router) setCurrentProblem(p string) {
	r.mu.Lock()
	r.currentProblem = p
	r.mu.Unlock()
}
