package testutil

import (
	"vsxreg/internal/registry"
	"vsxreg/internal/staging"
	"vsxreg/internal/storage"
)

const (
	// DefaultStagingMaxSize is the default max size for test staging areas (10MB).
	DefaultStagingMaxSize = 10 * 1024 * 1024
)

// NewTestStagingArea creates a new in-memory staging area for testing.
func NewTestStagingArea(clock registry.Clock) registry.StagingArea {
	return staging.NewMemoryStagingArea(clock, DefaultStagingMaxSize)
}

// NewTestStorage creates a new in-memory blob store for testing.
func NewTestStorage() *storage.MemoryStore {
	return storage.NewMemoryStore()
}
