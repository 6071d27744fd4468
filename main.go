// Command hairyrug is the stream-assistant bot. It:
//   - Loads configuration and initializes structured logging (stdout plus a
//     daily log file).
//   - Optionally connects to Postgres for encrypted token storage and the
//     recap archive.
//   - Joins the channel's chat, dispatches commands and captures chatter
//     submissions.
//   - Polls stream status and, per live session, runs the ad schedule and the
//     now-playing poller; at the offline edge it posts the recap and cleans up
//     the archived recording.
//   - Serves the overlay websocket and an ops HTTP server with /healthz,
//     /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/howlingfantods/hairyrug/ads"
	"github.com/howlingfantods/hairyrug/chat"
	"github.com/howlingfantods/hairyrug/config"
	"github.com/howlingfantods/hairyrug/crypto"
	"github.com/howlingfantods/hairyrug/db"
	"github.com/howlingfantods/hairyrug/leetcode"
	"github.com/howlingfantods/hairyrug/lifecycle"
	"github.com/howlingfantods/hairyrug/logging"
	"github.com/howlingfantods/hairyrug/nowplaying"
	"github.com/howlingfantods/hairyrug/oauth"
	"github.com/howlingfantods/hairyrug/overlay"
	"github.com/howlingfantods/hairyrug/probe"
	"github.com/howlingfantods/hairyrug/recap"
	"github.com/howlingfantods/hairyrug/server"
	"github.com/howlingfantods/hairyrug/spotify"
	"github.com/howlingfantods/hairyrug/telemetry"
	"github.com/howlingfantods/hairyrug/timer"
	"github.com/howlingfantods/hairyrug/twitchapi"
	"github.com/howlingfantods/hairyrug/vod"
	"github.com/howlingfantods/hairyrug/youtubeapi"
)

const version = "1.0.0"

// tokenStore is satisfied by db.Store and oauth.MemoryStore.
type tokenStore interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	logging.Setup(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		slog.Error("bot exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := cfg.ValidateChatReady(); err != nil {
		return err
	}
	if err := cfg.ValidateHelixReady(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.LogDir != "" {
		df, err := logging.OpenDaily(cfg.LogDir, cfg.LogRetentionDays)
		if err != nil {
			slog.Warn("file logging disabled", slog.Any("err", err))
		} else {
			defer func() { _ = df.Close() }()
			logging.Setup(io.MultiWriter(os.Stdout, df), os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
			g.Go(func() error { df.Run(gctx); return nil })
		}
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("hairyrug", version)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer shutdownTracing()

	// Token persistence: Postgres when configured, otherwise process memory.
	var tokens tokenStore = oauth.NewMemoryStore()
	var store *db.Store
	if cfg.DBDsn != "" {
		dbx, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer func() {
			if err := dbx.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(dbx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		var box *crypto.Box
		if cfg.EncryptionKey != "" {
			if box, err = crypto.NewBox(cfg.EncryptionKey, cfg.EncryptionKeyID); err != nil {
				return err
			}
			slog.Info("OAuth token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
		}
		store = db.New(dbx, box)
		tokens = store
	} else {
		slog.Info("DB_DSN not set, running without persistence")
	}

	// Helix: the user token (commercials, video deletion) is kept fresh by the
	// refresher; stream status uses an app token when a client secret exists.
	httpClient := &http.Client{Timeout: 15 * time.Second}
	userTokens := &twitchapi.StoredToken{Store: tokens, Provider: "twitch", Fallback: cfg.TwitchAccessToken}
	actions := &twitchapi.HelixClient{Tokens: userTokens, ClientID: cfg.TwitchClientID, HTTPClient: httpClient}
	status := actions
	if cfg.TwitchClientSecret != "" {
		app := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, HTTPClient: httpClient}
		logAppToken(ctx, app)
		status = &twitchapi.HelixClient{Tokens: app, ClientID: cfg.TwitchClientID, HTTPClient: httpClient}
	}
	if cfg.TwitchClientSecret != "" && cfg.TwitchRefreshToken != "" {
		refresher := &oauth.Refresher{
			Store:    tokens,
			Provider: "twitch",
			Refresh: func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
				res, err := twitchapi.RefreshToken(rctx, httpClient, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
				if err != nil {
					return "", "", time.Time{}, "", err
				}
				return res.AccessToken, res.RefreshToken, twitchapi.ComputeExpiry(res.ExpiresIn), strings.Join(res.Scope, " "), nil
			},
		}
		if err := refresher.Seed(ctx, cfg.TwitchAccessToken, cfg.TwitchRefreshToken); err != nil {
			slog.Warn("twitch token seed failed", slog.Any("err", err))
		}
		g.Go(func() error { refresher.Run(gctx); return nil })
	}

	bot := chat.NewBot(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannel)
	hub := overlay.NewHub()
	lt := timer.NewPlain(bot)
	lockIn := timer.NewLockIn(bot, hub)

	collector := recap.NewCollector(cfg.TwitchBotUsername)
	flusher := &recap.Flusher{Collector: collector, Sink: recap.NewSink(cfg.DiscordBotURL, cfg.RecapSecret)}
	if store != nil {
		flusher.Archive = store
	}
	if !cfg.RecapEnabled() {
		slog.Info("recap sink not configured, recaps will be skipped", slog.String("component", "recap"))
	}

	prb := probe.New(status, cfg.TwitchBroadcasterID)
	mon := lifecycle.New(prb, cfg.LivePollInterval)
	sched := ads.New(actions, cfg.TwitchBroadcasterID, bot, mon.IsLive)
	mon.Ads = sched
	mon.Recap = flusher
	mon.Cleanup = vod.NewCleaner(prb, actions, cfg.TwitchBroadcasterID, cfg.CleanupCategory)

	sp, err := spotify.New(ctx, cfg, tokens)
	switch {
	case errors.Is(err, spotify.ErrNotConfigured):
		slog.Info("spotify not configured, now-playing disabled", slog.String("component", "nowplaying"))
	case err != nil:
		slog.Warn("spotify client init failed, now-playing disabled", slog.Any("err", err))
	default:
		mon.Poller = nowplaying.New(sp, hub, mon.IsLive, cfg.NowPlayingResync)
	}

	yt, err := youtubeapi.New(ctx, cfg.YouTubeAPIKey)
	if err != nil && !errors.Is(err, youtubeapi.ErrNoAPIKey) {
		slog.Warn("youtube client init failed, using generic labels", slog.Any("err", err))
	}

	router := chat.NewRouter(chat.Deps{
		Reply:         bot,
		Collector:     collector,
		IsLive:        mon.IsLive,
		BotName:       cfg.TwitchBotUsername,
		LT:            lt,
		LockIn:        lockIn,
		Problems:      leetcode.New(cfg.LeetCodeAPIURL),
		Labeler:       yt,
		TimerCtx:      gctx,
		DiscordInvite: cfg.DiscordInvite,
	})
	bot.Route(gctx, router)

	deps := server.Deps{
		Monitor:        mon,
		Ads:            sched,
		Timers:         map[string]server.TimerSource{"lt": lt.Slot, "lockin": lockIn.Slot},
		Overlay:        hub,
		OverlayHandler: hub.Handler(),
		Recap:          collector,
		Chat:           bot,
		CurrentProblem: router.CurrentProblem,
	}
	if store != nil {
		deps.DB = store.DB
		deps.Recaps = store
	}

	g.Go(func() error { return server.Start(gctx, cfg.HTTPAddr, server.NewMux(deps)) })
	g.Go(func() error { return server.Start(gctx, cfg.OverlayAddr, server.OverlayMux(hub.Handler())) })
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { mon.Run(gctx); return nil })

	err = g.Wait()
	lt.Slot.Wait()
	lockIn.Slot.Wait()
	slog.Info("shut down")
	return err
}

// logAppToken fetches the app token once at startup so bad credentials show
// up immediately.
func logAppToken(ctx context.Context, ts *twitchapi.TokenSource) {
	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	tok, err := ts.Get(ctx)
	if err != nil {
		slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		return
	}
	if len(tok) > 6 {
		slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
	}
}
