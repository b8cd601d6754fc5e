package database

import (
	"fmt"
	"os"
	"path/filepath"

	"vsxreg/internal/config"
	"vsxreg/internal/registry"
)

// NewDatabaseFromConfig creates a Catalog implementation based on the database config type.
// In-memory databases start empty and are migrated immediately.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock registry.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "vsxreg.db"), clock)
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", clock)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
