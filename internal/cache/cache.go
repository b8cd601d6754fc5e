package cache

import (
	"context"

	"vsxreg/internal/logging"
	"vsxreg/internal/marketplace"
)

// Store is the backing key-value store of a ResultCache. Implementations
// provide their own concurrency control.
type Store interface {
	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys []string) error

	// Track records key as a member of group.
	Track(ctx context.Context, group, key string) error

	// Tracked returns every key recorded for group.
	Tracked(ctx context.Context, group string) ([]string, error)

	// Untrack forgets group and its members.
	Untrack(ctx context.Context, group string) error

	// Flush removes every entry and every group.
	Flush(ctx context.Context) error

	Close() error
}

// ResultCache holds previously computed response payloads.
//
// A nil store disables caching: every Get misses and writes are dropped.
// Store failures are logged and treated as misses; they never reach callers.
// Entries have no TTL and leave only through explicit eviction.
type ResultCache struct {
	store       Store
	logger      logging.Logger
	fingerprint string
}

// settingsKey holds the fingerprint the stored payloads were built under.
// Its prefix never collides with a version or query key.
const settingsKey = "meta/settings"

// New creates a ResultCache over store, which may be nil.
func New(store Store, logger logging.Logger) *ResultCache {
	return &ResultCache{store: store, logger: logging.OrDiscard(logger)}
}

// Enabled reports whether a backing store is configured.
func (c *ResultCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Get returns the cached value for key.
func (c *ResultCache) Get(ctx context.Context, key Key) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	value, ok, err := c.store.Get(ctx, string(key))
	if err != nil {
		c.logger.Warn("cache get failed", "key", string(key), "error", err)
		return nil, false
	}
	return value, ok
}

// Put stores value under key. Concurrent puts for the same key are
// last-write-wins.
func (c *ResultCache) Put(ctx context.Context, key Key, value []byte) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Put(ctx, string(key), value); err != nil {
		c.logger.Warn("cache put failed", "key", string(key), "error", err)
	}
}

// PutQuery stores a per-extension query result and records its shape so a
// later mutation of the extension can find it.
func (c *ResultCache) PutQuery(ctx context.Context, extensionID int64, targetPlatform string, opts marketplace.Options, value []byte) {
	if !c.Enabled() {
		return
	}
	key := QueryKey(extensionID, targetPlatform, opts)
	// Track first: an entry that exists but is not tracked could never be evicted.
	if err := c.store.Track(ctx, trackingGroup(extensionID), string(key)); err != nil {
		c.logger.Warn("cache track failed", "key", string(key), "error", err)
		return
	}
	c.Put(ctx, key, value)
}

// Evict removes keys.
func (c *ResultCache) Evict(ctx context.Context, keys ...Key) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = string(k)
	}
	if err := c.store.Delete(ctx, raw); err != nil {
		c.logger.Warn("cache evict failed", "keys", len(keys), "error", err)
	}
}

// trackedQueryKeys returns the query keys materialized for an extension.
func (c *ResultCache) trackedQueryKeys(ctx context.Context, extensionID int64) []Key {
	if !c.Enabled() {
		return nil
	}
	raw, err := c.store.Tracked(ctx, trackingGroup(extensionID))
	if err != nil {
		c.logger.Warn("cache tracking lookup failed", "extension_id", extensionID, "error", err)
		return nil
	}
	keys := make([]Key, len(raw))
	for i, k := range raw {
		keys[i] = Key(k)
	}
	return keys
}

func (c *ResultCache) untrack(ctx context.Context, extensionID int64) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Untrack(ctx, trackingGroup(extensionID)); err != nil {
		c.logger.Warn("cache untrack failed", "extension_id", extensionID, "error", err)
	}
}

// Flush drops every entry. A bound fingerprint is recorded again afterwards.
func (c *ResultCache) Flush(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Flush(ctx); err != nil {
		c.logger.Warn("cache flush failed", "error", err)
		return
	}
	c.recordFingerprint(ctx)
}

// Bind ties the cache to fingerprint, which identifies the settings that
// shape cached payloads. A persistent store populated under any other
// fingerprint, or under none, is flushed first.
func (c *ResultCache) Bind(ctx context.Context, fingerprint string) {
	if !c.Enabled() {
		return
	}
	c.fingerprint = fingerprint
	stored, ok, err := c.store.Get(ctx, settingsKey)
	if err != nil {
		c.logger.Warn("cache get failed", "key", settingsKey, "error", err)
	}
	if ok && string(stored) == fingerprint {
		return
	}
	c.logger.Info("cache settings changed, flushing", "previous", string(stored), "current", fingerprint)
	c.Flush(ctx)
}

func (c *ResultCache) recordFingerprint(ctx context.Context) {
	if c.fingerprint == "" {
		return
	}
	if err := c.store.Put(ctx, settingsKey, []byte(c.fingerprint)); err != nil {
		c.logger.Warn("cache put failed", "key", settingsKey, "error", err)
	}
}

// Close closes the backing store.
func (c *ResultCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Close()
}
