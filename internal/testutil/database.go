package testutil

import (
	"testing"

	"vsxreg/internal/config"
	"vsxreg/internal/database"
	"vsxreg/internal/registry"
)

// NewTestDatabase creates a new in-memory SQLite catalog with migrations applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T, clock registry.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"}, clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
