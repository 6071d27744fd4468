package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Bot is the IRC connection for one channel.
type Bot struct {
	channel   string
	client    *twitch.Client
	connected atomic.Bool
}

// NewBot creates an IRC client for channel. Messages are ignored until Route
// is called.
func NewBot(username, oauth, channel string) *Bot {
	b := &Bot{channel: channel, client: twitch.NewClient(username, oauth)}
	b.client.OnConnect(func() {
		b.connected.Store(true)
		slog.Info("bot ready", slog.String("component", "chat"), slog.String("nick", username), slog.String("channel", channel))
	})
	return b
}

// Route sends channel messages to r. Each message is handled with ctx so
// in-flight command lookups stop on shutdown. Call before Run.
func (b *Bot) Route(ctx context.Context, r *Router) {
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		r.Handle(ctx, fromPrivateMessage(msg))
	})
}

func fromPrivateMessage(msg twitch.PrivateMessage) Message {
	return Message{
		Author:      msg.User.Name,
		DisplayName: msg.User.DisplayName,
		Text:        msg.Message,
		Badges:      msg.User.Badges,
	}
}

// Say posts msg to the channel. Messages sent before the connection is up are
// dropped with a warning.
func (b *Bot) Say(msg string) {
	if !b.connected.Load() {
		slog.Warn("chat not connected, dropping message", slog.String("component", "chat"), slog.String("msg", msg))
		return
	}
	b.client.Say(b.channel, msg)
}

// Connected reports whether the IRC session is up.
func (b *Bot) Connected() bool { return b.connected.Load() }

// Run joins the channel and blocks until ctx is cancelled or the connection fails.
func (b *Bot) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = b.client.Disconnect()
		case <-done:
		}
	}()

	b.client.Join(b.channel)
	err := b.client.Connect()
	b.connected.Store(false)
	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		slog.Info("chat disconnected", slog.String("component", "chat"))
		return nil
	}
	return err
}
