// Package testutil holds shared test fixtures: datastores and a mock Twitch API.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/d3vgru/easy-peasy-bot/db"
)

// SetupTestDB opens the Postgres store named by TEST_PG_DSN, brings the schema
// up to date and empties the episodes table. It skips the test if
// TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) (*sql.DB, db.Dialect) {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, dialect, err := db.Connect(dsn, "")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := db.Prepare(ctx, database, dialect); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.ExecContext(ctx, `TRUNCATE episodes RESTART IDENTITY`); err != nil {
		database.Close()
		t.Fatalf("failed to truncate episodes: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database, dialect
}

// SetupSQLite returns a migrated in-memory SQLite store private to the test.
func SetupSQLite(t *testing.T) (*sql.DB, db.Dialect) {
	t.Helper()
	database, dialect, err := db.Connect("sqlite::memory:", "")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Prepare(context.Background(), database, dialect); err != nil {
		database.Close()
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database, dialect
}
