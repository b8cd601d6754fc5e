package registry_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"vsxreg/internal/asset"
	"vsxreg/internal/cache"
	"vsxreg/internal/config"
	"vsxreg/internal/errs"
	"vsxreg/internal/registry"
	"vsxreg/internal/testutil"
)

func TestService_ResolveVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.namespace(t, "acme", "")
	f.publishActive(t, testutil.VSIXOptions{Version: "1.0.0"})
	f.publishActive(t, testutil.VSIXOptions{Version: "1.1.0"})
	f.publishActive(t, testutil.VSIXOptions{Version: "2.0.0-beta.1", PreRelease: true})
	f.publishActive(t, testutil.VSIXOptions{Version: "2.1.0-rc.1"})
	f.publishActive(t, testutil.VSIXOptions{Version: "1.1.0", TargetPlatform: "linux-x64"})

	tests := []struct {
		name           string
		platform       string
		versionOrAlias string
		wantVersion    string
		wantPlatform   string
		wantPre        bool
	}{
		{"latest prefers stable", "", "latest", "1.1.0", "universal", false},
		{"pre-release alias", "", "pre-release", "2.0.0-beta.1", "universal", true},
		{"concrete version", "", "1.0.0", "1.0.0", "universal", false},
		{"concrete version prefers universal", "", "1.1.0", "1.1.0", "universal", false},
		{"platform filter", "linux-x64", "latest", "1.1.0", "linux-x64", false},
		{"unknown platform ignored", "amiga", "latest", "1.1.0", "universal", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv, err := f.svc.ResolveVersion(ctx, "acme", "tool", tt.platform, tt.versionOrAlias)
			if err != nil {
				t.Fatalf("ResolveVersion() error = %v", err)
			}
			if rv.Version != tt.wantVersion || rv.TargetPlatform != tt.wantPlatform {
				t.Errorf("resolved %s (%s), want %s (%s)", rv.Version, rv.TargetPlatform, tt.wantVersion, tt.wantPlatform)
			}
			if rv.PreRelease != tt.wantPre {
				t.Errorf("PreRelease = %v, want %v", rv.PreRelease, tt.wantPre)
			}
		})
	}

	t.Run("names are case-insensitive", func(t *testing.T) {
		rv, err := f.svc.ResolveVersion(ctx, "ACME", "Tool", "", "1.0.0")
		if err != nil {
			t.Fatalf("ResolveVersion() error = %v", err)
		}
		if rv.Namespace != "acme" || rv.Name != "tool" {
			t.Errorf("resolved %s.%s, want acme.tool", rv.Namespace, rv.Name)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := f.svc.ResolveVersion(ctx, "acme", "tool", "", "3.0.0"); !errs.IsNotFound(err) {
			t.Errorf("missing version error = %v, want not found", err)
		}
		if _, err := f.svc.ResolveVersion(ctx, "acme", "nothing", "", "latest"); !errs.IsNotFound(err) {
			t.Errorf("missing extension error = %v, want not found", err)
		}
		if _, err := f.svc.ResolveVersion(ctx, "vscode", "git", "", "latest"); !errs.IsInvalidInput(err) {
			t.Errorf("builtin namespace error = %v, want invalid input", err)
		}
	})
}

func TestService_ResolveVersion_CacheInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.namespace(t, "acme", "")
	f.publishActive(t, testutil.VSIXOptions{Version: "1.0.0"})
	f.publishActive(t, testutil.VSIXOptions{Version: "1.1.0"})

	rv, err := f.svc.ResolveVersion(ctx, "acme", "tool", "", "latest")
	if err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if rv.Version != "1.1.0" {
		t.Fatalf("latest = %s, want 1.1.0", rv.Version)
	}
	if f.cache.Len() == 0 {
		t.Fatal("resolved version was not cached")
	}
	if _, err := f.svc.ResolveVersion(ctx, "acme", "tool", "", "latest"); err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if hits := f.log.Find("cache hit"); len(hits) != 1 {
		t.Errorf("cache hits = %d, want 1", len(hits))
	}

	f.clock.Advance(1)
	f.publishActive(t, testutil.VSIXOptions{Version: "1.2.0"})
	rv, err = f.svc.ResolveVersion(ctx, "acme", "tool", "", "latest")
	if err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if rv.Version != "1.2.0" {
		t.Errorf("latest after publish = %s, want 1.2.0", rv.Version)
	}

	if err := f.svc.DeactivateVersion(ctx, "acme", "tool", "1.2.0", ""); err != nil {
		t.Fatalf("DeactivateVersion() error = %v", err)
	}
	rv, err = f.svc.ResolveVersion(ctx, "acme", "tool", "", "latest")
	if err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if rv.Version != "1.1.0" {
		t.Errorf("latest after deactivation = %s, want 1.1.0", rv.Version)
	}
	if _, err := f.svc.ResolveVersion(ctx, "acme", "tool", "", "1.2.0"); !errs.IsNotFound(err) {
		t.Errorf("deactivated version error = %v, want not found", err)
	}
}

func TestService_BindCache_DropsPayloadsAfterSettingsChange(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	openCache := func() *cache.ResultCache {
		t.Helper()
		store, err := cache.NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		return cache.New(store, nil)
	}

	signedCache := openCache()
	f := newFixture(t, withKeyPairMode(config.KeyPairCreate), withResultCache(signedCache))
	f.svc.BindCache(ctx)
	if _, err := f.svc.EnsureKeyPair(ctx); err != nil {
		t.Fatalf("EnsureKeyPair() error = %v", err)
	}
	f.namespace(t, "acme", "")
	f.publishActive(t, testutil.VSIXOptions{})

	rv, err := f.svc.ResolveVersion(ctx, "acme", "tool", "", "latest")
	if err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if _, ok := rv.Files[string(asset.TokenSignature)]; !ok {
		t.Fatalf("Files = %v, want a signature entry while signing is enabled", rv.Files)
	}
	if err := signedCache.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	tests := []struct {
		name    string
		baseURL string
	}{
		{"signing disabled", testBaseURL},
		{"base url changed", "https://mirror.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reopened := openCache()
			defer reopened.Close()
			svc := registry.NewService(registry.Dependencies{
				Catalog: f.db,
				Blobs:   f.blobs,
				Staging: f.staging,
				Cache:   reopened,
				Clock:   f.clock,
				IDs:     testutil.NewStubIDGenerator(),
				BaseURL: tt.baseURL,
				Options: registry.Options{RetryAttempts: 1},
			})
			svc.BindCache(ctx)

			rv, err := svc.ResolveVersion(ctx, "acme", "tool", "", "latest")
			if err != nil {
				t.Fatalf("ResolveVersion() error = %v", err)
			}
			for token, url := range rv.Files {
				if token == string(asset.TokenSignature) || token == string(asset.TokenPublicKey) {
					t.Errorf("Files[%s] = %q served with signing disabled", token, url)
				}
				if !strings.HasPrefix(url, tt.baseURL+"/") {
					t.Errorf("Files[%s] = %q, want prefix %s", token, url, tt.baseURL)
				}
			}
		})
	}
}
