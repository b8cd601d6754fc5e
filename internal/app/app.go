package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"vsxreg/internal/cache"
	"vsxreg/internal/config"
	"vsxreg/internal/database"
	"vsxreg/internal/database/migrations"
	"vsxreg/internal/encryption"
	"vsxreg/internal/errs"
	"vsxreg/internal/integrity"
	"vsxreg/internal/marketplace"
	"vsxreg/internal/model"
	"vsxreg/internal/registry"
	"vsxreg/internal/staging"
	"vsxreg/internal/storage"
)

// Settings carries the per-invocation inputs that do not live in the config file.
type Settings struct {
	// Operation identifies the CLI command being run (e.g. "Publish").
	Operation  string
	Parameters string

	// Passphrase unlocks the signing key. Only needed when signing is enabled.
	Passphrase string

	// LogEcho, when set, receives a copy of every log line and enables
	// debug output.
	LogEcho io.Writer
}

// RegistryApp is the application layer between the CLI and the registry
// Service. It constructs all dependencies from config, records mutating
// operations and releases every resource on Close.
type RegistryApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	blobs   registry.BlobStore
	cache   *cache.ResultCache
	service *registry.Service
	op      *Operation
	logFile *os.File
}

// NewRegistryApp creates a fully wired RegistryApp from the given config.
// When signing is enabled the active key pair is created on first use.
// The caller must call Close when done.
func NewRegistryApp(ctx context.Context, cfg *config.Config, settings Settings) (*RegistryApp, error) {
	blobs, err := storage.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	clock := registry.RealClock{}
	sa, err := staging.NewStagingAreaFromConfig(cfg.Staging, clock)
	if err != nil {
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	var sealer registry.KeySealer
	if cfg.Integrity.Enabled() {
		sealer, err = encryption.NewSealerFromConfig(cfg.Integrity, settings.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("creating key sealer: %w", err)
		}
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, clock)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run 'vsxreg db migrate'): %w", err)
	}

	cacheStore, err := cache.NewStoreFromConfig(cfg.Cache)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	level := slog.LevelInfo
	if settings.LogEcho != nil {
		level = slog.LevelDebug
	}
	logger, logFile, err := newLogger(cfg.LogDir, opID, level, settings.LogEcho)
	if err != nil {
		db.Close()
		if cacheStore != nil {
			cacheStore.Close()
		}
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}
	resultCache := cache.New(cacheStore, adapter)

	svc := registry.NewService(registry.Dependencies{
		Catalog: db,
		Blobs:   blobs,
		Staging: sa,
		Sealer:  sealer,
		Cache:   resultCache,
		Logger:  adapter,
		Clock:   clock,
		IDs:     registry.UUIDGenerator{},
		BaseURL: cfg.BaseURL,
		Options: registry.OptionsFromConfig(cfg),
	})

	a := &RegistryApp{
		cfg:     cfg,
		db:      db,
		blobs:   blobs,
		cache:   resultCache,
		service: svc,
		op:      NewOperation(settings.Operation, settings.Parameters),
		logFile: logFile,
	}

	svc.BindCache(ctx)
	if _, err := svc.EnsureKeyPair(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("preparing signing key: %w", err)
	}
	return a, nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for catalog-mutating commands.
func (a *RegistryApp) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate persists the operation, runs fn and records its outcome.
func (a *RegistryApp) mutate(ctx context.Context, fn func() error) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

// CreateNamespace registers a namespace owned by owner.
func (a *RegistryApp) CreateNamespace(ctx context.Context, name, owner string) (*model.Namespace, error) {
	var ns *model.Namespace
	err := a.mutate(ctx, func() error {
		var err error
		ns, err = a.service.CreateNamespace(ctx, name, owner)
		return err
	})
	return ns, err
}

// TransferNamespace hands a namespace to a new owner.
func (a *RegistryApp) TransferNamespace(ctx context.Context, name, owner string) error {
	return a.mutate(ctx, func() error {
		return a.service.TransferNamespace(ctx, name, owner)
	})
}

// Publish stages the .vsix file at path on behalf of user.
func (a *RegistryApp) Publish(ctx context.Context, path, user string) (*registry.PublishResult, error) {
	var res *registry.PublishResult
	err := a.mutate(ctx, func() error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening package: %w", err)
		}
		defer f.Close()
		res, err = a.service.Publish(ctx, f, user)
		return err
	})
	return res, err
}

// ProcessPending activates every staged upload and returns how many versions
// were activated.
func (a *RegistryApp) ProcessPending(ctx context.Context) (int, error) {
	var n int
	err := a.mutate(ctx, func() error {
		var err error
		n, err = a.service.ProcessPending(ctx)
		return err
	})
	return n, err
}

// ResolveVersion resolves a version or alias of an extension.
func (a *RegistryApp) ResolveVersion(ctx context.Context, namespace, extension, targetPlatform, versionOrAlias string) (*registry.ResolvedVersion, error) {
	return a.service.ResolveVersion(ctx, namespace, extension, targetPlatform, versionOrAlias)
}

// Query answers a JSON-encoded marketplace query.
func (a *RegistryApp) Query(ctx context.Context, body []byte, targetPlatform string) (*marketplace.QueryResult, error) {
	req, err := marketplace.DecodeRequest(body)
	if err != nil {
		return nil, err
	}
	return a.service.Query(ctx, req, targetPlatform)
}

// GetAsset resolves an asset token. Package downloads are counted.
func (a *RegistryApp) GetAsset(ctx context.Context, namespace, extension, versionOrAlias, targetPlatform, token string) (*registry.AssetResponse, error) {
	return a.service.GetAsset(ctx, namespace, extension, versionOrAlias, targetPlatform, token)
}

// Browse lists or fetches bundled files of a version.
func (a *RegistryApp) Browse(ctx context.Context, namespace, extension, versionOrAlias, path string) (*registry.BrowseResult, error) {
	return a.service.Browse(ctx, namespace, extension, versionOrAlias, path)
}

// DeactivateVersion hides one build from clients.
func (a *RegistryApp) DeactivateVersion(ctx context.Context, namespace, extension, version, targetPlatform string) error {
	return a.mutate(ctx, func() error {
		return a.service.DeactivateVersion(ctx, namespace, extension, version, targetPlatform)
	})
}

// DeleteVersion removes one build and its files.
func (a *RegistryApp) DeleteVersion(ctx context.Context, namespace, extension, version, targetPlatform string) error {
	return a.mutate(ctx, func() error {
		return a.service.DeleteVersion(ctx, namespace, extension, version, targetPlatform)
	})
}

// DeleteExtension removes an extension with every version.
func (a *RegistryApp) DeleteExtension(ctx context.Context, namespace, extension string) error {
	return a.mutate(ctx, func() error {
		return a.service.DeleteExtension(ctx, namespace, extension)
	})
}

// RenameExtension renames an extension within its namespace.
func (a *RegistryApp) RenameExtension(ctx context.Context, namespace, extension, newName string) error {
	return a.mutate(ctx, func() error {
		return a.service.RenameExtension(ctx, namespace, extension, newName)
	})
}

// DeactivatePublisher hides every version published by user.
func (a *RegistryApp) DeactivatePublisher(ctx context.Context, user string) (int64, error) {
	var n int64
	err := a.mutate(ctx, func() error {
		var err error
		n, err = a.service.DeactivatePublisher(ctx, user)
		return err
	})
	return n, err
}

// RenewKeyPair rotates the signing key, optionally re-signing every version.
func (a *RegistryApp) RenewKeyPair(ctx context.Context, resign bool) (*registry.RenewResult, error) {
	var res *registry.RenewResult
	err := a.mutate(ctx, func() error {
		var err error
		res, err = a.service.RenewKeyPair(ctx, resign)
		return err
	})
	return res, err
}

// EnsureKeyPair returns the active signing key pair, creating it if none
// exists yet.
func (a *RegistryApp) EnsureKeyPair(ctx context.Context) (*model.SignatureKeyPair, error) {
	var kp *model.SignatureKeyPair
	err := a.mutate(ctx, func() error {
		var err error
		kp, err = a.service.EnsureKeyPair(ctx)
		if err == nil && kp == nil {
			err = errs.InvalidInputf("signing is disabled (set integrity key_pair to %q or %q)", config.KeyPairCreate, config.KeyPairRenew)
		}
		return err
	})
	return kp, err
}

// PublicKey returns a key pair by id, or the active one for an empty id.
func (a *RegistryApp) PublicKey(ctx context.Context, id string) (*model.SignatureKeyPair, error) {
	return a.service.PublicKey(ctx, id)
}

// VerifyVersion checks the stored signature of one build.
func (a *RegistryApp) VerifyVersion(ctx context.Context, namespace, extension, version, targetPlatform string) (bool, error) {
	return a.service.VerifyVersion(ctx, namespace, extension, version, targetPlatform)
}

// History returns the most recent recorded operations.
func (a *RegistryApp) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	return a.service.History(ctx, limit)
}

// FlushCache drops every cached result.
func (a *RegistryApp) FlushCache(ctx context.Context) {
	a.cache.Flush(ctx)
}

// ValidateStorage verifies that the configured blob store is reachable.
func (a *RegistryApp) ValidateStorage(ctx context.Context) error {
	if a.blobs == nil {
		return nil
	}
	return a.blobs.ValidateSetup(ctx)
}

// Close finalizes the operation record and closes all resources.
func (a *RegistryApp) Close() error {
	var errList []error

	if a.op.Persisted() {
		// The command context may already be cancelled; the record must still be closed.
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
			errList = append(errList, fmt.Errorf("finishing operation: %w", err))
		}
	}
	if err := a.cache.Close(); err != nil {
		errList = append(errList, fmt.Errorf("closing cache: %w", err))
	}
	if err := a.db.Close(); err != nil {
		errList = append(errList, fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errList...)
}

// MigrateDatabase applies pending schema migrations to the configured catalog.
func MigrateDatabase(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, registry.RealClock{})
	if err != nil {
		return migrations.Status{}, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return migrations.Status{}, err
	}
	return migrations.ReadStatus(db.DB())
}

// DatabaseStatus reports the schema version of the configured catalog.
func DatabaseStatus(cfg *config.Config) (migrations.Status, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, registry.RealClock{})
	if err != nil {
		return migrations.Status{}, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return migrations.ReadStatus(db.DB())
}

// VerifyFiles checks a package against a signature archive and a PEM public
// key, all read from disk. It needs no registry state.
func VerifyFiles(packagePath, signaturePath, publicKeyPath string) (bool, error) {
	artifact, err := os.ReadFile(packagePath)
	if err != nil {
		return false, fmt.Errorf("reading package: %w", err)
	}
	archive, err := os.ReadFile(signaturePath)
	if err != nil {
		return false, fmt.Errorf("reading signature: %w", err)
	}
	publicKey, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return false, fmt.Errorf("reading public key: %w", err)
	}
	return integrity.VerifyBundle(artifact, archive, strings.TrimSpace(string(publicKey)))
}

// NeedsPassphrase reports whether opening cfg's signing key requires a passphrase.
func NeedsPassphrase(cfg *config.Config) bool {
	return cfg.Integrity.Enabled() && cfg.Integrity.Sealer != "none"
}

// PassphraseFromEnv returns the passphrase held in the configured environment variable.
func PassphraseFromEnv(cfg *config.Config) string {
	if cfg.Integrity.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(cfg.Integrity.PassphraseEnv)
}
