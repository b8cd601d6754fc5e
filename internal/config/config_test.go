package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/home/user/.local/share/vsxreg",
		LogDir:  "/home/user/.local/share/vsxreg/log",
		BaseURL: "https://open-vsx.example.com",
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/vsxreg/db"},
		Storage: StorageConfig{
			Type:                 "s3",
			S3Bucket:             "vsx-assets",
			S3Prefix:             "prod",
			S3Region:             "eu-west-1",
			S3Endpoint:           "http://minio:9000",
			S3PathStyle:          true,
			PresignExpirySeconds: 3600,
		},
		Cache:     CacheConfig{Type: "memory"},
		Staging:   StagingConfig{Type: "memory", MaxSize: 2048},
		Integrity: IntegrityConfig{KeyPair: KeyPairRenew, Sealer: "none"},
		Publish:   PublishConfig{BuiltinNamespace: "builtin", RetryAttempts: 5, RetryBaseDelayMS: 10},
		Query:     QueryConfig{DefaultPageSize: 20, MaxPageSize: 40},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.BaseURL != original.BaseURL {
		t.Errorf("BaseURL = %q, want %q", got.BaseURL, original.BaseURL)
	}
	if got.Storage != original.Storage {
		t.Errorf("Storage = %+v, want %+v", got.Storage, original.Storage)
	}
	if got.Cache.Type != "memory" {
		t.Errorf("Cache.Type = %q, want %q", got.Cache.Type, "memory")
	}
	if got.Staging.MaxSize != 2048 {
		t.Errorf("Staging.MaxSize = %d, want %d", got.Staging.MaxSize, 2048)
	}
	if !got.Integrity.Enabled() || got.Integrity.KeyPair != KeyPairRenew {
		t.Errorf("Integrity = %+v, want renew mode", got.Integrity)
	}
	if got.Publish != original.Publish {
		t.Errorf("Publish = %+v, want %+v", got.Publish, original.Publish)
	}
	if got.Query != original.Query {
		t.Errorf("Query = %+v, want %+v", got.Query, original.Query)
	}
}

func TestManager_Read_AppliesDefaults(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader("base_dir = \"/srv\"\n[storage]\ntype = \"database\"\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Publish.BuiltinNamespace != DefaultBuiltinNamespace {
		t.Errorf("BuiltinNamespace = %q, want %q", cfg.Publish.BuiltinNamespace, DefaultBuiltinNamespace)
	}
	if cfg.Publish.RetryAttempts != DefaultRetryAttempts {
		t.Errorf("RetryAttempts = %d, want %d", cfg.Publish.RetryAttempts, DefaultRetryAttempts)
	}
	if cfg.Query.DefaultPageSize != DefaultPageSize || cfg.Query.MaxPageSize != DefaultMaxPageSize {
		t.Errorf("Query = %+v", cfg.Query)
	}
	if cfg.Storage.PresignExpirySeconds != DefaultPresignExpirySeconds {
		t.Errorf("PresignExpirySeconds = %d", cfg.Storage.PresignExpirySeconds)
	}
	if cfg.Integrity.Enabled() {
		t.Error("Integrity.Enabled() = true, want disabled by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"create mode", func(c *Config) { c.Integrity.KeyPair = KeyPairCreate }, false},
		{"unknown key mode", func(c *Config) { c.Integrity.KeyPair = "rotate" }, true},
		{"cache none", func(c *Config) { c.Cache.Type = "none" }, false},
		{"unknown cache", func(c *Config) { c.Cache.Type = "redis" }, true},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data")
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/vsxreg")

	if cfg.BaseDir != "/data/vsxreg" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/vsxreg")
	}
	if cfg.LogDir != "/data/vsxreg/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/vsxreg/log")
	}
	if cfg.Database.DataDir != "/data/vsxreg/db" {
		t.Errorf("Database.DataDir = %q", cfg.Database.DataDir)
	}
	if cfg.Storage.Type != "filesystem" || cfg.Storage.FSRoot != "/data/vsxreg/storage" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Staging.StagingDir != "/data/vsxreg/staging" {
		t.Errorf("Staging.StagingDir = %q", cfg.Staging.StagingDir)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vsxreg.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vsxreg.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vsxreg.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "vsxreg.toml")
		if err := os.WriteFile(path, []byte("[storage]\ntype = \"tape\"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadFromFile(path); err == nil {
			t.Fatal("ReadFromFile() expected validation error")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/vsxreg.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
