package registry_test

import (
	"bytes"
	"context"
	"testing"

	"vsxreg/internal/asset"
	"vsxreg/internal/cache"
	"vsxreg/internal/config"
	"vsxreg/internal/database"
	"vsxreg/internal/errs"
	"vsxreg/internal/logging"
	"vsxreg/internal/registry"
	"vsxreg/internal/storage"
	"vsxreg/internal/testutil"
)

const testBaseURL = "https://vsx.example.com"

type fixture struct {
	svc     *registry.Service
	db      *database.SQLiteDatabase
	blobs   *storage.MemoryStore
	staging registry.StagingArea
	cache   *cache.MemoryStore
	clock   *testutil.StubClock
	log     *logging.Recorder
}

type fixtureOption func(*registry.Dependencies)

func withKeyPairMode(mode string) fixtureOption {
	return func(d *registry.Dependencies) { d.Options.KeyPairMode = mode }
}

func withInlineStorage(d *registry.Dependencies) { d.Blobs = nil }

func withResultCache(c *cache.ResultCache) fixtureOption {
	return func(d *registry.Dependencies) { d.Cache = c }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	f := &fixture{
		db:      testutil.NewTestDatabase(t, clock),
		blobs:   testutil.NewTestStorage(),
		staging: testutil.NewTestStagingArea(clock),
		cache:   cache.NewMemoryStore(),
		clock:   clock,
		log:     &logging.Recorder{},
	}
	deps := registry.Dependencies{
		Catalog: f.db,
		Blobs:   f.blobs,
		Staging: f.staging,
		Sealer:  testutil.NewTestSealer(),
		Cache:   cache.New(f.cache, nil),
		Logger:  f.log,
		Clock:   clock,
		IDs:     testutil.NewStubIDGenerator(),
		BaseURL: testBaseURL,
		Options: registry.Options{RetryAttempts: 1},
	}
	for _, o := range opts {
		o(&deps)
	}
	f.svc = registry.NewService(deps)
	return f
}

func (f *fixture) namespace(t *testing.T, name, owner string) {
	t.Helper()
	if _, err := f.svc.CreateNamespace(context.Background(), name, owner); err != nil {
		t.Fatalf("CreateNamespace(%q) error = %v", name, err)
	}
}

// publish stages a package built from opts as user "alice".
func (f *fixture) publish(t *testing.T, opts testutil.VSIXOptions) *registry.PublishResult {
	t.Helper()
	res, err := f.svc.Publish(context.Background(), bytes.NewReader(testutil.BuildVSIX(t, opts)), "alice")
	if err != nil {
		t.Fatalf("Publish(%s) error = %v", opts.Version, err)
	}
	return res
}

// publishActive publishes and processes the upload.
func (f *fixture) publishActive(t *testing.T, opts testutil.VSIXOptions) *registry.PublishResult {
	t.Helper()
	res := f.publish(t, opts)
	n, err := f.svc.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ProcessPending() activated %d, want 1", n)
	}
	return res
}

func TestService_PublishAndProcess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.namespace(t, "acme", "")

	vsixOpts := testutil.VSIXOptions{
		DisplayName: "Tool",
		Icon:        "media/logo.png",
		Files: map[string]string{
			"README.md":      "# Tool",
			"media/logo.png": "png-bytes",
		},
	}
	res := f.publish(t, vsixOpts)
	if res.Version.Active {
		t.Error("published version is active before processing")
	}

	if _, err := f.svc.ResolveVersion(ctx, "acme", "tool", "", "latest"); !errs.IsNotFound(err) {
		t.Fatalf("ResolveVersion() before processing error = %v, want not found", err)
	}
	if n, _ := f.staging.Count(); n != 1 {
		t.Fatalf("staged uploads = %d, want 1", n)
	}

	n, err := f.svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ProcessPending() = %d, want 1", n)
	}
	if n, _ := f.staging.Count(); n != 0 {
		t.Errorf("staged uploads after processing = %d, want 0", n)
	}

	// package, manifest, readme, icon, vsixmanifest and three bundled files
	if got := f.blobs.Len(); got != 8 {
		t.Errorf("stored blobs = %d, want 8", got)
	}

	rv, err := f.svc.ResolveVersion(ctx, "acme", "tool", "", "latest")
	if err != nil {
		t.Fatalf("ResolveVersion() error = %v", err)
	}
	if rv.Version != "1.0.0" || rv.DisplayName != "Tool" {
		t.Errorf("resolved = %s %q, want 1.0.0 \"Tool\"", rv.Version, rv.DisplayName)
	}
	wantURL := testBaseURL + "/api/acme/tool/1.0.0/file/acme.tool-1.0.0.vsix"
	if got := rv.Files[string(asset.TokenPackage)]; got != wantURL {
		t.Errorf("package URL = %q, want %q", got, wantURL)
	}
	if _, ok := rv.Files[string(asset.TokenSignature)]; ok {
		t.Error("signature listed while signing is disabled")
	}
}

func TestService_Publish_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		data  func(t *testing.T) []byte
	}{
		{
			name:  "unknown namespace",
			setup: func(t *testing.T, f *fixture) {},
			data: func(t *testing.T) []byte {
				return testutil.BuildVSIX(t, testutil.VSIXOptions{Publisher: "ghost"})
			},
		},
		{
			name:  "builtin namespace",
			setup: func(t *testing.T, f *fixture) {},
			data: func(t *testing.T) []byte {
				return testutil.BuildVSIX(t, testutil.VSIXOptions{Publisher: "vscode"})
			},
		},
		{
			name:  "not an archive",
			setup: func(t *testing.T, f *fixture) { f.namespace(t, "acme", "") },
			data:  func(t *testing.T) []byte { return []byte("not a zip") },
		},
		{
			name:  "namespace owned by another user",
			setup: func(t *testing.T, f *fixture) { f.namespace(t, "acme", "bob") },
			data: func(t *testing.T) []byte {
				return testutil.BuildVSIX(t, testutil.VSIXOptions{})
			},
		},
		{
			name: "version already published",
			setup: func(t *testing.T, f *fixture) {
				f.namespace(t, "acme", "")
				f.publish(t, testutil.VSIXOptions{})
			},
			data: func(t *testing.T) []byte {
				return testutil.BuildVSIX(t, testutil.VSIXOptions{Description: "again"})
			},
		},
		{
			name:  "invalid version",
			setup: func(t *testing.T, f *fixture) { f.namespace(t, "acme", "") },
			data: func(t *testing.T) []byte {
				return testutil.BuildVSIX(t, testutil.VSIXOptions{Version: "one"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)
			before, _ := f.staging.Count()

			_, err := f.svc.Publish(context.Background(), bytes.NewReader(tt.data(t)), "alice")
			if !errs.IsInvalidInput(err) {
				t.Fatalf("Publish() error = %v, want invalid input", err)
			}
			if after, _ := f.staging.Count(); after != before {
				t.Errorf("staged uploads = %d, want %d", after, before)
			}
		})
	}
}

func TestService_ProcessPending_RejectsUnsignable(t *testing.T) {
	ctx := context.Background()
	// Signing is enabled but no key pair was ever created.
	f := newFixture(t, withKeyPairMode(config.KeyPairCreate))
	f.namespace(t, "acme", "")
	f.publish(t, testutil.VSIXOptions{})

	n, err := f.svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if n != 0 {
		t.Errorf("ProcessPending() = %d, want 0", n)
	}
	if count, _ := f.staging.Count(); count != 0 {
		t.Errorf("staged uploads = %d, want rejected upload removed", count)
	}

	ext, err := f.db.FindExtension(ctx, "acme", "tool")
	if err != nil || ext == nil {
		t.Fatalf("FindExtension() = %v, %v", ext, err)
	}
	v, err := f.db.FindVersion(ctx, ext.ID, "1.0.0", "universal")
	if err != nil {
		t.Fatalf("FindVersion() error = %v", err)
	}
	if v != nil {
		t.Error("rejected version still exists")
	}
}

func TestService_GetAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.namespace(t, "acme", "")
	data := testutil.BuildVSIX(t, testutil.VSIXOptions{
		Files: map[string]string{"README.md": "# Tool", "media/logo.png": "png-bytes"},
	})
	if _, err := f.svc.Publish(ctx, bytes.NewReader(data), "alice"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if _, err := f.svc.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	tests := []struct {
		name        string
		token       string
		wantContent string
	}{
		{"package", string(asset.TokenPackage), string(data)},
		{"readme", string(asset.TokenReadme), "# Tool"},
		{"web resource", asset.WebResourcesPrefix + "extension/media/logo.png", "png-bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.GetAsset(ctx, "acme", "tool", "1.0.0", "", tt.token)
			if err != nil {
				t.Fatalf("GetAsset() error = %v", err)
			}
			if resp.IsRedirect() {
				t.Fatalf("GetAsset() redirected to %s", resp.RedirectURL)
			}
			if string(resp.Content) != tt.wantContent {
				t.Errorf("content = %q, want %q", resp.Content, tt.wantContent)
			}
		})
	}

	t.Run("counts package downloads", func(t *testing.T) {
		ext, err := f.db.FindExtension(ctx, "acme", "tool")
		if err != nil {
			t.Fatalf("FindExtension() error = %v", err)
		}
		if ext.DownloadCount != 1 {
			t.Errorf("DownloadCount = %d, want 1", ext.DownloadCount)
		}
	})

	notFound := []struct {
		name, version, token string
	}{
		{"unknown token", "1.0.0", "Microsoft.VisualStudio.Services.Unknown"},
		{"missing changelog", "1.0.0", string(asset.TokenChangelog)},
		{"missing version", "9.9.9", string(asset.TokenPackage)},
		{"resource outside extension dir", "1.0.0", asset.WebResourcesPrefix + "extension.vsixmanifest"},
		{"signature while signing disabled", "1.0.0", string(asset.TokenSignature)},
	}
	for _, tt := range notFound {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GetAsset(ctx, "acme", "tool", tt.version, "", tt.token)
			if !errs.IsNotFound(err) {
				t.Errorf("GetAsset() error = %v, want not found", err)
			}
		})
	}

	t.Run("detects corrupted blobs", func(t *testing.T) {
		f.blobs.Corrupt("acme/tool/1.0.0/README.md", []byte("tampered"))
		_, err := f.svc.GetAsset(ctx, "acme", "tool", "1.0.0", "", string(asset.TokenReadme))
		if errs.CategoryOf(err) != errs.CategoryIntegrityFailure {
			t.Errorf("GetAsset() error = %v, want integrity failure", err)
		}
	})
}

func TestService_InlineStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, withInlineStorage)
	f.namespace(t, "acme", "")
	f.publishActive(t, testutil.VSIXOptions{Files: map[string]string{"README.md": "# Inline"}})

	if got := f.blobs.Len(); got != 0 {
		t.Errorf("stored blobs = %d, want 0", got)
	}
	resp, err := f.svc.GetAsset(ctx, "acme", "tool", "latest", "", string(asset.TokenReadme))
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if string(resp.Content) != "# Inline" {
		t.Errorf("content = %q, want %q", resp.Content, "# Inline")
	}
}

func TestService_Browse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.namespace(t, "acme", "")
	f.publishActive(t, testutil.VSIXOptions{Files: map[string]string{
		"README.md":           "# Tool",
		"media/logo.png":      "png",
		"media/dark/logo.png": "dark-png",
	}})

	t.Run("lists a directory", func(t *testing.T) {
		res, err := f.svc.Browse(ctx, "acme", "tool", "latest", "extension/media")
		if err != nil {
			t.Fatalf("Browse() error = %v", err)
		}
		base := testBaseURL + "/vscode/unpkg/acme/tool/1.0.0/extension/media/"
		want := []string{base + "dark/", base + "logo.png"}
		if len(res.Entries) != len(want) {
			t.Fatalf("Entries = %v, want %v", res.Entries, want)
		}
		for i := range want {
			if res.Entries[i] != want[i] {
				t.Errorf("Entries[%d] = %q, want %q", i, res.Entries[i], want[i])
			}
		}
		if res.CacheControl != asset.CacheControl {
			t.Errorf("CacheControl = %q", res.CacheControl)
		}
	})

	t.Run("serves a file", func(t *testing.T) {
		res, err := f.svc.Browse(ctx, "acme", "tool", "1.0.0", "extension/README.md")
		if err != nil {
			t.Fatalf("Browse() error = %v", err)
		}
		if res.File == nil || string(res.File.Content) != "# Tool" {
			t.Fatalf("File = %+v, want README content", res.File)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := f.svc.Browse(ctx, "acme", "tool", "1.0.0", "extension/nothing")
		if !errs.IsNotFound(err) {
			t.Errorf("Browse() error = %v, want not found", err)
		}
	})
}
