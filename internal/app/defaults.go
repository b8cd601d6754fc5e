package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "VSXREG_CONFIG_PATH"
	EnvHome       = "VSXREG_HOME"
)

// Defaults holds the locations used when no explicit path is given.
type Defaults struct {
	ConfigPath string // ~/.config/vsxreg.toml
	BaseDir    string // ~/.local/share/vsxreg; catalog, blobs, staging and logs live below it
}

// GetDefaults returns the default locations, preferring EnvConfigPath and
// EnvHome when set.
func GetDefaults() (Defaults, error) {
	var d Defaults
	d.ConfigPath = os.Getenv(EnvConfigPath)
	d.BaseDir = os.Getenv(EnvHome)
	if d.ConfigPath != "" && d.BaseDir != "" {
		return d, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Defaults{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	if d.ConfigPath == "" {
		d.ConfigPath = filepath.Join(home, ".config", "vsxreg.toml")
	}
	if d.BaseDir == "" {
		d.BaseDir = filepath.Join(home, ".local", "share", "vsxreg")
	}
	return d, nil
}
