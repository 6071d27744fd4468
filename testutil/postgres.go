package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/howlingfantods/hairyrug/db"
)

// SetupTestDB connects to TEST_PG_DSN, runs migrations and empties the
// tables. It skips the test when TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.Exec(`TRUNCATE oauth_tokens, recaps`); err != nil {
		_ = database.Close()
		t.Fatalf("failed to reset tables: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}
