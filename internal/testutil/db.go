package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"ticketflow/internal/store"
)

// OpenTestDB returns an in-memory SQLite database with the engine schema
// applied, closed automatically when the test ends.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := store.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return db
}
