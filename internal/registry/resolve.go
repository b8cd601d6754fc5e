package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vsxreg/internal/cache"
	"vsxreg/internal/model"
)

// ResolvedVersion is the payload of a single-version lookup. It is cached,
// so it carries nothing that changes without a catalog mutation; download
// counts in particular are left out.
type ResolvedVersion struct {
	PublicID          string            `json:"publicId"`
	Namespace         string            `json:"namespace"`
	Name              string            `json:"name"`
	Version           string            `json:"version"`
	TargetPlatform    string            `json:"targetPlatform"`
	PreRelease        bool              `json:"preRelease"`
	Timestamp         time.Time         `json:"timestamp"`
	DisplayName       string            `json:"displayName,omitempty"`
	Description       string            `json:"description,omitempty"`
	Categories        []string          `json:"categories,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Engines           []string          `json:"engines,omitempty"`
	Dependencies      []string          `json:"dependencies,omitempty"`
	BundledExtensions []string          `json:"bundledExtensions,omitempty"`
	License           string            `json:"license,omitempty"`
	Repository        string            `json:"repository,omitempty"`
	Files             map[string]string `json:"files"`
}

// ResolveVersion returns the active version of an extension named by a
// concrete version or an alias. Results are served from the cache when
// present and cached after a miss.
func (s *Service) ResolveVersion(ctx context.Context, namespace, extension, targetPlatform, versionOrAlias string) (*ResolvedVersion, error) {
	if err := s.checkNamespaceAllowed(namespace); err != nil {
		return nil, err
	}
	platform := model.NormalizeTargetPlatform(targetPlatform)
	key := cache.VersionKey(namespace, extension, platform, versionOrAlias)

	if cached, ok := s.cache.Get(ctx, key); ok {
		var rv ResolvedVersion
		if err := json.Unmarshal(cached, &rv); err == nil {
			s.logger.Debug("cache hit", "key", string(key))
			return &rv, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", string(key))
	}

	ext, err := s.activeExtension(ctx, namespace, extension)
	if err != nil {
		return nil, err
	}
	v, err := s.resolveActive(ctx, ext, platform, versionOrAlias)
	if err != nil {
		return nil, err
	}
	resources, err := s.catalog.ListFileResources(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	rv := &ResolvedVersion{
		PublicID:          ext.PublicID,
		Namespace:         ext.NamespaceName,
		Name:              ext.Name,
		Version:           v.Version,
		TargetPlatform:    v.TargetPlatform,
		PreRelease:        v.PreRelease || v.SemverIsPreRelease,
		Timestamp:         v.Timestamp,
		DisplayName:       v.DisplayName,
		Description:       v.Description,
		Categories:        v.Categories,
		Tags:              v.Tags,
		Engines:           v.Engines,
		Dependencies:      v.Dependencies,
		BundledExtensions: v.BundledExtensions,
		License:           v.License,
		Repository:        v.Repository,
		Files:             make(map[string]string),
	}
	for _, f := range s.assets.Files(ext, v, resources) {
		rv.Files[f.AssetType] = f.Source
	}

	if payload, err := json.Marshal(rv); err == nil {
		s.cache.Put(ctx, key, payload)
	}
	return rv, nil
}
