package testutil

import (
	"testing"

	"github.com/avanderberg/scrumline/internal/db"
)

// NewTestDB creates an in-memory SQLite database with all migrations applied.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// NewTestUoW creates a UnitOfWork backed by the given test database.
func NewTestUoW(database *db.DB) db.UnitOfWork {
	return db.NewUnitOfWork(database)
}
