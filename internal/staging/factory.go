package staging

import (
	"fmt"

	"vsxreg/internal/config"
	"vsxreg/internal/registry"
)

// NewStagingAreaFromConfig creates a StagingArea implementation based on the config type.
func NewStagingAreaFromConfig(cfg config.StagingConfig, clock registry.Clock) (registry.StagingArea, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = config.DefaultStagingMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStagingArea(clock, maxSize), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(cfg.StagingDir, clock, maxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
