package storage

import (
	"context"
	"fmt"

	"vsxreg/internal/config"
	"vsxreg/internal/registry"
)

// NewStoreFromConfig creates a BlobStore based on the storage config type.
// Type "database" keeps asset content inline in the catalog and returns a nil store.
func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (registry.BlobStore, error) {
	switch cfg.Type {
	case "database":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem storage requires fs_root to be set")
		}
		s, err := NewFileSystemStore(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s, err := NewS3StoreFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
