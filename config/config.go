// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (IRC chat, Helix), use ValidateChatReady and ValidateHelixReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultCleanupCategory is the stream category whose archive is deleted at the offline edge.
const DefaultCleanupCategory = "Fitness & Health"

type Config struct {
	// Twitch IRC (bot account)
	TwitchChannel     string
	TwitchBotUsername string
	TwitchOAuthToken  string

	// Twitch Helix
	TwitchClientID      string
	TwitchClientSecret  string
	TwitchAccessToken   string
	TwitchRefreshToken  string
	TwitchBroadcasterID string

	// Lifecycle
	LivePollInterval time.Duration
	CleanupCategory  string

	// Spotify
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string
	SpotifyRefreshToken string
	NowPlayingResync    time.Duration

	// Problem metadata / labels
	LeetCodeAPIURL string
	YouTubeAPIKey  string
	DiscordInvite  string

	// Recap sink
	DiscordBotURL string
	RecapSecret   string

	// Listeners
	OverlayAddr string
	HTTPAddr    string

	// Persistence (optional)
	DBDsn           string
	EncryptionKey   string
	EncryptionKeyID string

	// Logging
	LogDir           string
	LogRetentionDays int
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateChatReady() / ValidateHelixReady() when a feature requires them. Missing optional
// variables disable features (Spotify, YouTube labels, recap flush, persistence).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = strings.TrimPrefix(strings.ToLower(os.Getenv("TWITCH_CHANNEL")), "#")
	cfg.TwitchBotUsername = strings.ToLower(os.Getenv("TWITCH_BOT_USERNAME"))
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	if cfg.TwitchOAuthToken != "" && !strings.HasPrefix(cfg.TwitchOAuthToken, "oauth:") {
		cfg.TwitchOAuthToken = "oauth:" + cfg.TwitchOAuthToken
	}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchAccessToken = os.Getenv("TWITCH_ACCESS_TOKEN")
	cfg.TwitchRefreshToken = os.Getenv("TWITCH_REFRESH_TOKEN")
	cfg.TwitchBroadcasterID = os.Getenv("TWITCH_BROADCASTER_ID")

	var err error
	if cfg.LivePollInterval, err = durationEnv("LIVE_POLL_INTERVAL", 20*time.Second); err != nil {
		return nil, err
	}
	cfg.CleanupCategory = os.Getenv("CLEANUP_CATEGORY")
	if cfg.CleanupCategory == "" {
		cfg.CleanupCategory = DefaultCleanupCategory
	}

	cfg.SpotifyClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	cfg.SpotifyClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")
	cfg.SpotifyRedirectURI = os.Getenv("SPOTIFY_REDIRECT_URI")
	cfg.SpotifyRefreshToken = os.Getenv("SPOTIFY_REFRESH_TOKEN")
	if cfg.NowPlayingResync, err = durationEnv("NOWPLAYING_RESYNC", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.LeetCodeAPIURL = strings.TrimRight(os.Getenv("LEETCODE_API_URL"), "/")
	if cfg.LeetCodeAPIURL == "" {
		cfg.LeetCodeAPIURL = "https://leetcode-api-pied.vercel.app"
	}
	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.DiscordInvite = os.Getenv("DISCORD_INVITE")

	cfg.DiscordBotURL = strings.TrimRight(os.Getenv("DISCORD_BOT_URL"), "/")
	if cfg.DiscordBotURL == "" {
		cfg.DiscordBotURL = "http://127.0.0.1:8787"
	}
	cfg.RecapSecret = os.Getenv("RECAP_SECRET")

	cfg.OverlayAddr = os.Getenv("OVERLAY_ADDR")
	if cfg.OverlayAddr == "" {
		cfg.OverlayAddr = ":8765"
		if p := os.Getenv("OVERLAY_PORT"); p != "" {
			if _, err := strconv.Atoi(p); err != nil {
				return nil, fmt.Errorf("invalid OVERLAY_PORT: %w", err)
			}
			cfg.OverlayAddr = ":" + p
		}
	}
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	// Empty DSN runs the bot without Postgres.
	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	cfg.EncryptionKeyID = os.Getenv("ENCRYPTION_KEY_ID")

	cfg.LogDir = "logs"
	if v, ok := os.LookupEnv("LOG_DIR"); ok {
		cfg.LogDir = v
	}
	cfg.LogRetentionDays = 7
	if v := os.Getenv("LOG_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid LOG_RETENTION_DAYS %q", v)
		}
		cfg.LogRetentionDays = n
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// ValidateChatReady checks required fields for the IRC connection.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// ValidateHelixReady checks required fields for stream status, VOD and commercial calls.
func (c *Config) ValidateHelixReady() error {
	if c.TwitchClientID == "" || c.TwitchBroadcasterID == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_BROADCASTER_ID")
	}
	if c.TwitchAccessToken == "" && c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_ACCESS_TOKEN or TWITCH_CLIENT_SECRET")
	}
	return nil
}

// SpotifyEnabled reports whether Spotify client credentials are set. A refresh
// token is also required; spotify.New checks env and the token store for it.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// RecapEnabled reports whether the end-of-stream recap can be delivered.
func (c *Config) RecapEnabled() bool {
	return c.DiscordBotURL != "" && c.RecapSecret != ""
}
