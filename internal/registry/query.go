package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"vsxreg/internal/cache"
	"vsxreg/internal/marketplace"
	"vsxreg/internal/model"
	"vsxreg/internal/resolver"
)

// Version property keys of the gallery protocol.
const (
	propEngine             = "Microsoft.VisualStudio.Code.Engine"
	propDependency         = "Microsoft.VisualStudio.Code.ExtensionDependencies"
	propExtensionPack      = "Microsoft.VisualStudio.Code.ExtensionPack"
	propLocalizedLanguages = "Microsoft.VisualStudio.Code.LocalizedLanguages"
	propPreRelease         = "Microsoft.VisualStudio.Code.PreRelease"
	propRepository         = "Microsoft.VisualStudio.Services.Links.Source"
)

// Query answers a marketplace query. Each matched extension's entry is
// cached per (extension, platform, options); statistics are attached after
// the cache so download counts stay current.
func (s *Service) Query(ctx context.Context, req *marketplace.QueryRequest, targetPlatform string) (*marketplace.QueryResult, error) {
	params, err := marketplace.ParseRequest(req, targetPlatform, s.opts.DefaultPageSize, s.opts.MaxPageSize)
	if err != nil {
		return nil, err
	}

	exts, total, err := s.catalog.SearchExtensions(ctx, SearchQuery{
		PublicIDs:      params.ExtensionIDs,
		FullNames:      params.ExtensionNames,
		Text:           params.Text,
		Tags:           params.Tags,
		Category:       params.Category,
		TargetPlatform: params.TargetPlatform,
		SortBy:         params.SortBy,
		SortAscending:  params.SortAscending,
		Offset:         params.Offset,
		Limit:          params.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("searching extensions: %w", err)
	}

	results := make([]marketplace.Extension, 0, len(exts))
	for _, ext := range exts {
		if strings.EqualFold(ext.NamespaceName, s.opts.BuiltinNamespace) {
			continue
		}
		entry, err := s.queryEntry(ctx, ext, params)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		if params.Options.IncludeStatistics {
			entry.Statistics = statistics(ext)
		}
		results = append(results, *entry)
	}
	return marketplace.NewQueryResult(results, total), nil
}

// queryEntry returns the cached entry for ext or builds and caches it.
// It returns nil when ext has no active version for the platform.
func (s *Service) queryEntry(ctx context.Context, ext *model.Extension, params marketplace.Params) (*marketplace.Extension, error) {
	key := cache.QueryKey(ext.ID, params.TargetPlatform, params.Options)
	if cached, ok := s.cache.Get(ctx, key); ok {
		var entry marketplace.Extension
		if err := json.Unmarshal(cached, &entry); err == nil {
			s.logger.Debug("cache hit", "key", string(key))
			return &entry, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", string(key))
	}

	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	entry, err := s.buildEntry(ctx, ext, platformVersions(versions, params.TargetPlatform), params.Options)
	if err != nil || entry == nil {
		return nil, err
	}

	if payload, err := json.Marshal(entry); err == nil {
		s.cache.PutQuery(ctx, ext.ID, params.TargetPlatform, params.Options, payload)
	}
	return entry, nil
}

// platformVersions keeps the builds for platform and universal builds.
// An empty platform keeps everything.
func platformVersions(versions []*model.ExtensionVersion, platform string) []*model.ExtensionVersion {
	if platform == "" {
		return versions
	}
	var out []*model.ExtensionVersion
	for _, v := range versions {
		if v.TargetPlatform == platform || v.IsUniversal() {
			out = append(out, v)
		}
	}
	return out
}

func (s *Service) buildEntry(ctx context.Context, ext *model.Extension, versions []*model.ExtensionVersion, opts marketplace.Options) (*marketplace.Extension, error) {
	latest := resolver.SelectLatest(versions, "", false, true)
	if latest == nil {
		return nil, nil
	}

	flags := "validated, public"
	if latest.PreRelease || latest.SemverIsPreRelease {
		flags += ", preview"
	}
	entry := &marketplace.Extension{
		ExtensionID:      ext.PublicID,
		ExtensionName:    ext.Name,
		DisplayName:      latest.DisplayName,
		ShortDescription: latest.Description,
		Publisher: marketplace.Publisher{
			PublisherID:   ext.NamespaceName,
			PublisherName: ext.NamespaceName,
			DisplayName:   ext.NamespaceName,
		},
		Flags: flags,
	}
	if opts.IncludeCategoryAndTags {
		entry.Categories = latest.Categories
		entry.Tags = latest.Tags
	}
	if !opts.ShapesVersions() {
		return entry, nil
	}

	var selected []*model.ExtensionVersion
	if opts.IncludeLatestVersionOnly {
		selected = resolver.LatestPerPlatform(versions, false, true)
	} else {
		for _, v := range resolver.Sort(versions) {
			if v.Active {
				selected = append(selected, v)
			}
		}
	}

	for _, v := range selected {
		qv := marketplace.Version{
			Version:        v.Version,
			TargetPlatform: v.TargetPlatform,
			Flags:          "validated",
			LastUpdated:    v.Timestamp.UTC().Format(time.RFC3339),
		}
		if opts.IncludeFiles {
			resources, err := s.catalog.ListFileResources(ctx, v.ID)
			if err != nil {
				return nil, fmt.Errorf("listing files: %w", err)
			}
			qv.Files = s.assets.Files(ext, v, resources)
		}
		if opts.IncludeVersionProperties {
			qv.Properties = versionProperties(v)
		}
		if opts.IncludeAssetURI {
			qv.AssetURI = s.assets.AssetURI(ext, v)
			qv.FallbackAssetURI = qv.AssetURI
		}
		entry.Versions = append(entry.Versions, qv)
	}
	return entry, nil
}

func versionProperties(v *model.ExtensionVersion) []marketplace.Property {
	props := []marketplace.Property{
		{Key: propDependency, Value: strings.Join(v.Dependencies, ",")},
		{Key: propExtensionPack, Value: strings.Join(v.BundledExtensions, ",")},
		{Key: propLocalizedLanguages, Value: ""},
	}
	for _, engine := range v.Engines {
		if r, ok := strings.CutPrefix(engine, "vscode@"); ok {
			props = append([]marketplace.Property{{Key: propEngine, Value: r}}, props...)
			break
		}
	}
	if v.Repository != "" {
		props = append(props, marketplace.Property{Key: propRepository, Value: v.Repository})
	}
	if v.PreRelease {
		props = append(props, marketplace.Property{Key: propPreRelease, Value: "true"})
	}
	return props
}

func statistics(ext *model.Extension) []marketplace.Statistic {
	stats := []marketplace.Statistic{{StatisticName: "install", Value: float64(ext.DownloadCount)}}
	if ext.AverageRating != nil {
		stats = append(stats,
			marketplace.Statistic{StatisticName: "averagerating", Value: *ext.AverageRating},
			marketplace.Statistic{StatisticName: "ratingcount", Value: float64(ext.ReviewCount)},
		)
	}
	return stats
}
