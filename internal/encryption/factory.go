package encryption

import (
	"fmt"

	"vsxreg/internal/config"
	"vsxreg/internal/registry"
)

// NewSealerFromConfig creates a KeySealer based on the configured sealer type.
func NewSealerFromConfig(cfg config.IntegrityConfig, passphrase string) (registry.KeySealer, error) {
	switch cfg.Sealer {
	case "age", "":
		s, err := NewAgeSealer(passphrase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none":
		return NewPlainSealer(), nil
	default:
		return nil, fmt.Errorf("unknown sealer type: %q", cfg.Sealer)
	}
}
