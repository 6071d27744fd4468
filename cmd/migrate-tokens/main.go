// Command migrate-tokens seals OAuth token rows that were stored in plaintext
// (encryption_version=0) before ENCRYPTION_KEY was configured.
//
// Usage:
//
//	migrate-tokens [--dry-run]
//
// Requires DB_DSN and ENCRYPTION_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/howlingfantods/hairyrug/crypto"
	"github.com/howlingfantods/hairyrug/db"
	"github.com/howlingfantods/hairyrug/logging"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	flag.Parse()
	_ = godotenv.Load()
	logging.Setup(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dbx, err := db.Connect(ctx, os.Getenv("DB_DSN"))
	if err != nil {
		slog.Error("database connection failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = dbx.Close() }()
	box, err := crypto.NewBox(os.Getenv("ENCRYPTION_KEY"), os.Getenv("ENCRYPTION_KEY_ID"))
	if err != nil {
		slog.Error("encryption key invalid", slog.Any("err", err))
		os.Exit(1)
	}
	n, err := sealPlaintext(ctx, db.New(dbx, nil), db.New(dbx, box), *dryRun)
	if err != nil {
		slog.Error("token migration failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("token migration complete", slog.Int("migrated", n), slog.Bool("dry_run", *dryRun))
}

// sealPlaintext reads each plaintext row through plain and rewrites it
// through sealed.
func sealPlaintext(ctx context.Context, plain, sealed *db.Store, dryRun bool) (int, error) {
	providers, err := plain.ProvidersByEncryption(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list plaintext tokens: %w", err)
	}
	migrated := 0
	for _, p := range providers {
		access, refresh, expiry, scope, err := plain.GetOAuthToken(ctx, p)
		if err != nil {
			return migrated, fmt.Errorf("read %s: %w", p, err)
		}
		if dryRun {
			slog.Info("would seal token", slog.String("provider", p))
			migrated++
			continue
		}
		if err := sealed.UpsertOAuthToken(ctx, p, access, refresh, expiry, scope); err != nil {
			return migrated, fmt.Errorf("seal %s: %w", p, err)
		}
		slog.Info("sealed token", slog.String("provider", p))
		migrated++
	}
	return migrated, nil
}
