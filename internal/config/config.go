package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for vsxreg.
type Config struct {
	BaseDir   string          `toml:"base_dir"`
	LogDir    string          `toml:"log_dir"`
	BaseURL   string          `toml:"base_url"`
	Database  DatabaseConfig  `toml:"database"`
	Storage   StorageConfig   `toml:"storage"`
	Cache     CacheConfig     `toml:"cache"`
	Staging   StagingConfig   `toml:"staging"`
	Integrity IntegrityConfig `toml:"integrity"`
	Publish   PublishConfig   `toml:"publish"`
	Query     QueryConfig     `toml:"query"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StorageConfig represents configuration for asset blob storage.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "database", "memory", "filesystem" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3PathStyle    bool   `toml:"s3_path_style,omitempty"`
	S3AccessKeyEnv string `toml:"s3_access_key_env,omitempty"` // env var holding a static access key id
	S3SecretKeyEnv string `toml:"s3_secret_key_env,omitempty"` // env var holding the matching secret

	// PresignExpirySeconds bounds the lifetime of redirect URLs.
	PresignExpirySeconds int `toml:"presign_expiry_seconds,omitempty"`
}

// CacheConfig represents configuration for the query-result cache.
type CacheConfig struct {
	Type    string `toml:"type"`               // "none", "memory" or "sqlite"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StagingConfig represents configuration for the publish staging queue.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // max total size in bytes; defaults to 256MB
}

// IntegrityConfig controls artifact signing.
type IntegrityConfig struct {
	KeyPair       string `toml:"key_pair"`                 // "" (disabled), "create" or "renew"
	Sealer        string `toml:"sealer,omitempty"`         // "age" (default) or "none"
	PassphraseEnv string `toml:"passphrase_env,omitempty"` // env var holding the key passphrase
}

// Signing key modes.
const (
	KeyPairDisabled = ""
	KeyPairCreate   = "create"
	KeyPairRenew    = "renew"
)

// Enabled reports whether artifacts are signed.
func (c IntegrityConfig) Enabled() bool {
	return c.KeyPair == KeyPairCreate || c.KeyPair == KeyPairRenew
}

// PublishConfig holds publish-flow settings.
type PublishConfig struct {
	BuiltinNamespace string `toml:"builtin_namespace"`
	RetryAttempts    int    `toml:"retry_attempts"`
	RetryBaseDelayMS int    `toml:"retry_base_delay_ms"`
}

// QueryConfig holds marketplace query settings.
type QueryConfig struct {
	DefaultPageSize int `toml:"default_page_size"`
	MaxPageSize     int `toml:"max_page_size"`
}

// Defaults for unset values.
const (
	DefaultBuiltinNamespace     = "vscode"
	DefaultRetryAttempts        = 3
	DefaultRetryBaseDelayMS     = 200
	DefaultPageSize             = 50
	DefaultMaxPageSize          = 100
	DefaultPresignExpirySeconds = 7 * 24 * 60 * 60
)

// DefaultStagingMaxSize is the default staging queue capacity (256MB).
const DefaultStagingMaxSize int64 = 256 * 1024 * 1024

// NewConfig creates a new Config rooted at baseDir with local defaults.
func NewConfig(baseDir string) *Config {
	cfg := &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		BaseURL:  "http://localhost:8080",
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Storage:  StorageConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "storage")},
		Cache:    CacheConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "cache")},
		Staging:  StagingConfig{Type: "filesystem", StagingDir: filepath.Join(baseDir, "staging")},
		Integrity: IntegrityConfig{
			Sealer:        "age",
			PassphraseEnv: "VSXREG_KEY_PASSPHRASE",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values that have a sensible default.
func (c *Config) applyDefaults() {
	if c.Publish.BuiltinNamespace == "" {
		c.Publish.BuiltinNamespace = DefaultBuiltinNamespace
	}
	if c.Publish.RetryAttempts <= 0 {
		c.Publish.RetryAttempts = DefaultRetryAttempts
	}
	if c.Publish.RetryBaseDelayMS <= 0 {
		c.Publish.RetryBaseDelayMS = DefaultRetryBaseDelayMS
	}
	if c.Query.DefaultPageSize <= 0 {
		c.Query.DefaultPageSize = DefaultPageSize
	}
	if c.Query.MaxPageSize <= 0 {
		c.Query.MaxPageSize = DefaultMaxPageSize
	}
	if c.Storage.PresignExpirySeconds <= 0 {
		c.Storage.PresignExpirySeconds = DefaultPresignExpirySeconds
	}
	if c.Staging.MaxSize <= 0 {
		c.Staging.MaxSize = DefaultStagingMaxSize
	}
	if c.Integrity.Sealer == "" {
		c.Integrity.Sealer = "age"
	}
}

// Validate checks the tagged unions for unknown types.
func (c *Config) Validate() error {
	switch c.Integrity.KeyPair {
	case KeyPairDisabled, KeyPairCreate, KeyPairRenew:
	default:
		return fmt.Errorf("unknown integrity key_pair mode: %q", c.Integrity.KeyPair)
	}
	switch c.Cache.Type {
	case "", "none", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown cache type: %q", c.Cache.Type)
	}
	switch c.Storage.Type {
	case "database", "memory", "filesystem", "s3":
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and fills defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
