// Package db is the optional Postgres layer: connection setup, embedded
// schema migrations, OAuth token rows (sealed at rest when an encryption key
// is configured) and the recap archive.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/howlingfantods/hairyrug/crypto"
)

// Connect opens a Postgres pool through the pgx stdlib driver and pings it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	dbx, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	dbx.SetMaxOpenConns(5)
	dbx.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbx.PingContext(pctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return dbx, nil
}

// Store implements the token stores of twitchapi and spotify and the recap
// archive. A nil Box stores tokens in plaintext (encryption_version 0).
type Store struct {
	DB  *sql.DB
	Box *crypto.Box
}

// New returns a Store; box may be nil.
func New(dbx *sql.DB, box *crypto.Box) *Store {
	if box == nil {
		slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext", slog.String("component", "db_encryption"))
	}
	return &Store{DB: dbx, Box: box}
}

// UpsertOAuthToken stores or replaces the token row for provider.
func (s *Store) UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error {
	version := 0
	var keyID sql.NullString
	if s.Box != nil {
		var err error
		if access, err = s.Box.Seal(access, provider); err != nil {
			return fmt.Errorf("seal access token: %w", err)
		}
		if refresh, err = s.Box.Seal(refresh, provider); err != nil {
			return fmt.Errorf("seal refresh token: %w", err)
		}
		version = 1
		keyID = sql.NullString{String: s.Box.KeyID, Valid: true}
	}
	var exp sql.NullTime
	if !expiry.IsZero() {
		exp = sql.NullTime{Time: expiry, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,NOW())
		ON CONFLICT(provider) DO UPDATE SET
		  access_token=EXCLUDED.access_token,
		  refresh_token=EXCLUDED.refresh_token,
		  expires_at=EXCLUDED.expires_at,
		  scope=EXCLUDED.scope,
		  encryption_version=EXCLUDED.encryption_version,
		  encryption_key_id=EXCLUDED.encryption_key_id,
		  updated_at=NOW()`,
		provider, access, refresh, exp, scope, version, keyID)
	return err
}

// GetOAuthToken returns the row for provider, or zero values when none exists.
// Plaintext rows written before a key was configured are still readable.
func (s *Store) GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var version int
	var exp sql.NullTime
	row := s.DB.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, encryption_version FROM oauth_tokens WHERE provider = $1`, provider)
	err = row.Scan(&access, &refresh, &exp, &scope, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	if version == 1 {
		if s.Box == nil {
			return "", "", time.Time{}, "", fmt.Errorf("token for %s is encrypted but ENCRYPTION_KEY not configured", provider)
		}
		if access, err = s.Box.Open(access, provider); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("open access token: %w", err)
		}
		if refresh, err = s.Box.Open(refresh, provider); err != nil {
			return "", "", time.Time{}, "", fmt.Errorf("open refresh token: %w", err)
		}
	}
	return access, refresh, exp.Time, scope, nil
}

// SaveRecap archives one delivered (or attempted) recap.
func (s *Store) SaveRecap(ctx context.Context, sessionID string, start, end time.Time, payload []byte, sinkStatus string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO recaps(session_id, stream_start, stream_end, payload, sink_status)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT(session_id) DO UPDATE SET sink_status=EXCLUDED.sink_status`,
		sessionID, start, end, payload, sinkStatus)
	return err
}

// RecapRow is one archived recap.
type RecapRow struct {
	SessionID   string    `json:"session_id"`
	StreamStart time.Time `json:"stream_start"`
	StreamEnd   time.Time `json:"stream_end"`
	Payload     []byte    `json:"-"`
	SinkStatus  string    `json:"sink_status"`
}

// RecentRecaps returns up to limit recaps, newest first.
func (s *Store) RecentRecaps(ctx context.Context, limit int) ([]RecapRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT session_id, stream_start, stream_end, payload, sink_status
		FROM recaps ORDER BY stream_end DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []RecapRow
	for rows.Next() {
		var r RecapRow
		if err := rows.Scan(&r.SessionID, &r.StreamStart, &r.StreamEnd, &r.Payload, &r.SinkStatus); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ProvidersByEncryption lists providers whose rows use the given encryption version.
func (s *Store) ProvidersByEncryption(ctx context.Context, version int) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT provider FROM oauth_tokens WHERE encryption_version = $1 ORDER BY provider`, version)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
