package registry

import (
	"context"
	"time"

	"vsxreg/internal/asset"
	"vsxreg/internal/cache"
	"vsxreg/internal/config"
	"vsxreg/internal/logging"
	"vsxreg/internal/model"
)

// Options holds the settings the service reads from config.
type Options struct {
	// KeyPairMode is one of config.KeyPairDisabled, KeyPairCreate or KeyPairRenew.
	KeyPairMode      string
	BuiltinNamespace string
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	DefaultPageSize  int
	MaxPageSize      int
}

// OptionsFromConfig extracts service Options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		KeyPairMode:      cfg.Integrity.KeyPair,
		BuiltinNamespace: cfg.Publish.BuiltinNamespace,
		RetryAttempts:    cfg.Publish.RetryAttempts,
		RetryBaseDelay:   time.Duration(cfg.Publish.RetryBaseDelayMS) * time.Millisecond,
		DefaultPageSize:  cfg.Query.DefaultPageSize,
		MaxPageSize:      cfg.Query.MaxPageSize,
	}
}

// SigningEnabled reports whether published artifacts are signed.
func (o Options) SigningEnabled() bool {
	return o.KeyPairMode == config.KeyPairCreate || o.KeyPairMode == config.KeyPairRenew
}

// Dependencies are the collaborators of a Service. Blobs may be nil, in which
// case file content is stored inline in the catalog. Cache may be nil or
// disabled. Sealer is only required when signing is enabled.
type Dependencies struct {
	Catalog Catalog
	Blobs   BlobStore
	Staging StagingArea
	Sealer  KeySealer
	Cache   *cache.ResultCache
	Logger  logging.Logger
	Clock   Clock
	IDs     IDGenerator
	BaseURL string
	Options Options
}

// Service is the orchestration layer that coordinates the catalog, storage,
// staging, signing and caching to perform the registry operations needed by
// the CLI.
type Service struct {
	catalog     Catalog
	blobs       BlobStore
	staging     StagingArea
	sealer      KeySealer
	cache       *cache.ResultCache
	invalidator *cache.Coordinator
	assets      *asset.Resolver
	logger      logging.Logger
	clock       Clock
	idgen       IDGenerator
	opts        Options
}

// NewService creates a Service from deps, filling defaults for the optional ones.
func NewService(deps Dependencies) *Service {
	logger := logging.OrDiscard(deps.Logger)
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	idgen := deps.IDs
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	opts := deps.Options
	if opts.BuiltinNamespace == "" {
		opts.BuiltinNamespace = config.DefaultBuiltinNamespace
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = config.DefaultRetryAttempts
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = config.DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = config.DefaultMaxPageSize
	}
	resultCache := deps.Cache
	if resultCache == nil {
		resultCache = cache.New(nil, logger)
	}

	return &Service{
		catalog:     deps.Catalog,
		blobs:       deps.Blobs,
		staging:     deps.Staging,
		sealer:      deps.Sealer,
		cache:       resultCache,
		invalidator: cache.NewCoordinator(resultCache, logger),
		assets:      asset.NewResolver(deps.BaseURL, opts.SigningEnabled()),
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		opts:        opts,
	}
}

// BindCache drops cached payloads built under a different base URL or
// signing setting. Call it once before serving from a persistent cache.
func (s *Service) BindCache(ctx context.Context) {
	s.cache.Bind(ctx, s.assets.Fingerprint())
}

// invalidate evicts every cache entry a committed mutation of ext could have
// made stale. versions lists every version string of ext before and after
// the mutation.
func (s *Service) invalidate(ctx context.Context, kind cache.EventKind, ext *model.Extension, versions []string) {
	s.invalidator.Invalidate(ctx, cache.Event{
		Kind:        kind,
		ExtensionID: ext.ID,
		Namespace:   ext.NamespaceName,
		Extension:   ext.Name,
		Versions:    versions,
	})
}

// versionStrings returns the distinct version strings of versions.
func versionStrings(versions []*model.ExtensionVersion) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range versions {
		if !seen[v.Version] {
			seen[v.Version] = true
			out = append(out, v.Version)
		}
	}
	return out
}
