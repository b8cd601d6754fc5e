package cache

import (
	"context"

	"vsxreg/internal/logging"
	"vsxreg/internal/model"
	"vsxreg/internal/resolver"
)

// EventKind names a catalog mutation.
type EventKind string

const (
	ExtensionCreated   EventKind = "extension_created"
	ExtensionUpdated   EventKind = "extension_updated"
	ExtensionDeleted   EventKind = "extension_deleted"
	VersionAdded       EventKind = "version_added"
	VersionRemoved     EventKind = "version_removed"
	VersionDeactivated EventKind = "version_deactivated"
	VisibilityChanged  EventKind = "visibility_changed"
)

// Event describes a committed mutation of one extension.
type Event struct {
	Kind        EventKind
	ExtensionID int64
	Namespace   string
	Extension   string

	// Versions holds every version string attached to the extension before
	// or after the mutation.
	Versions []string

	// PreviousNamespace and PreviousExtension are set when the mutation
	// changed the extension's name.
	PreviousNamespace string
	PreviousExtension string
}

// lookupPlatforms is every platform a single-version key may carry,
// including the platform-less case.
var lookupPlatforms = append([]string{""}, model.TargetPlatforms...)

// AffectedKeys returns every key that could be stale after ev: the
// single-version key for each alias and version under each platform, for
// the current and any previous name, plus the materialized query keys.
func AffectedKeys(ev Event, materialized []Key) KeySet {
	keys := make(KeySet)

	type name struct{ namespace, extension string }
	names := []name{{ev.Namespace, ev.Extension}}
	if ev.PreviousNamespace != "" || ev.PreviousExtension != "" {
		prev := name{ev.PreviousNamespace, ev.PreviousExtension}
		if prev.namespace == "" {
			prev.namespace = ev.Namespace
		}
		if prev.extension == "" {
			prev.extension = ev.Extension
		}
		names = append(names, prev)
	}

	versions := append(append([]string{}, resolver.Aliases...), ev.Versions...)
	for _, n := range names {
		for _, v := range versions {
			for _, p := range lookupPlatforms {
				keys.Add(VersionKey(n.namespace, n.extension, p, v))
			}
		}
	}

	keys.Add(materialized...)
	return keys
}

// Coordinator evicts stale entries after committed mutations. Callers invoke
// Invalidate only once the mutation is durably visible.
type Coordinator struct {
	cache  *ResultCache
	logger logging.Logger
}

func NewCoordinator(cache *ResultCache, logger logging.Logger) *Coordinator {
	return &Coordinator{cache: cache, logger: logging.OrDiscard(logger)}
}

// Invalidate evicts every key affected by events and returns how many keys
// were evicted.
func (c *Coordinator) Invalidate(ctx context.Context, events ...Event) int {
	if !c.cache.Enabled() {
		return 0
	}
	total := 0
	for _, ev := range events {
		keys := AffectedKeys(ev, c.cache.trackedQueryKeys(ctx, ev.ExtensionID))
		c.cache.Evict(ctx, keys.Sorted()...)
		// Tracking survives eviction so entries written concurrently stay reachable.
		if ev.Kind == ExtensionDeleted {
			c.cache.untrack(ctx, ev.ExtensionID)
		}
		total += len(keys)
		c.logger.Info("cache invalidated", "event", string(ev.Kind), "extension", ev.Namespace+"."+ev.Extension, "keys", len(keys))
	}
	return total
}
