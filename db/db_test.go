package db_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/howlingfantods/hairyrug/crypto"
	"github.com/howlingfantods/hairyrug/db"
	"github.com/howlingfantods/hairyrug/testutil"
)

func testBox(t *testing.T) *crypto.Box {
	t.Helper()
	b, err := crypto.NewBox(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")), "test")
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestMigrateIdempotent(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	if err := db.Migrate(dbx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	v, dirty, err := db.MigrationVersion(dbx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 || dirty {
		t.Fatalf("version=%d dirty=%v", v, dirty)
	}
}

func TestTokenRoundTripEncrypted(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := db.New(dbx, testBox(t))
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	if err := s.UpsertOAuthToken(ctx, "twitch", "acc-1", "ref-1", expiry, "channel:edit:commercial"); err != nil {
		t.Fatal(err)
	}
	var raw string
	var version int
	if err := dbx.QueryRow(`SELECT access_token, encryption_version FROM oauth_tokens WHERE provider='twitch'`).Scan(&raw, &version); err != nil {
		t.Fatal(err)
	}
	if version != 1 || strings.Contains(raw, "acc-1") {
		t.Fatalf("row not sealed: version=%d raw=%q", version, raw)
	}

	access, refresh, exp, scope, err := s.GetOAuthToken(ctx, "twitch")
	if err != nil {
		t.Fatal(err)
	}
	if access != "acc-1" || refresh != "ref-1" || scope != "channel:edit:commercial" || !exp.Equal(expiry) {
		t.Fatalf("got %q %q %v %q", access, refresh, exp, scope)
	}

	if err := s.UpsertOAuthToken(ctx, "twitch", "acc-2", "ref-2", expiry, ""); err != nil {
		t.Fatal(err)
	}
	access, _, _, _, _ = s.GetOAuthToken(ctx, "twitch")
	if access != "acc-2" {
		t.Fatalf("after update access = %q", access)
	}
}

func TestTokenPlaintextThenKeyed(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()
	plain := db.New(dbx, nil)
	if err := plain.UpsertOAuthToken(ctx, "spotify", "a", "r", time.Time{}, ""); err != nil {
		t.Fatal(err)
	}
	keyed := db.New(dbx, testBox(t))
	access, refresh, _, _, err := keyed.GetOAuthToken(ctx, "spotify")
	if err != nil || access != "a" || refresh != "r" {
		t.Fatalf("plaintext row unreadable: %q %q %v", access, refresh, err)
	}

	if err := keyed.UpsertOAuthToken(ctx, "spotify", "a2", "r2", time.Time{}, ""); err != nil {
		t.Fatal(err)
	}
	if _, _, _, _, err := plain.GetOAuthToken(ctx, "spotify"); err == nil {
		t.Fatal("sealed row read without a key")
	}
}

func TestTokenMissing(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	access, refresh, exp, scope, err := db.New(dbx, nil).GetOAuthToken(context.Background(), "nope")
	if err != nil || access != "" || refresh != "" || !exp.IsZero() || scope != "" {
		t.Fatalf("missing row = %q %q %v %q %v", access, refresh, exp, scope, err)
	}
}

func TestRecapArchive(t *testing.T) {
	dbx := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := db.New(dbx, nil)
	start := time.Now().Add(-2 * time.Hour)
	for i, id := range []string{"s1", "s2"} {
		end := start.Add(time.Duration(i+1) * time.Hour)
		if err := s.SaveRecap(ctx, id, start, end, []byte(`{"stream_problems":[]}`), "200"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveRecap(ctx, "s1", start, start.Add(time.Hour), []byte(`{}`), "failed"); err != nil {
		t.Fatal(err)
	}
	rows, err := s.RecentRecaps(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].SessionID != "s2" || rows[1].SinkStatus != "failed" {
		t.Fatalf("rows = %+v", rows)
	}
}
