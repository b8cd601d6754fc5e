package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"vsxreg/internal/config"
)

// NewStoreFromConfig creates a Store based on the cache config type.
// Type "none" (or empty) returns a nil Store, which disables caching.
func NewStoreFromConfig(cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite cache")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "cache.db"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
