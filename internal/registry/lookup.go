package registry

import (
	"context"
	"fmt"

	"vsxreg/internal/errs"
	"vsxreg/internal/model"
	"vsxreg/internal/resolver"
)

// activeExtension returns an active extension or a NotFound error.
func (s *Service) activeExtension(ctx context.Context, namespace, name string) (*model.Extension, error) {
	if err := s.checkNamespaceAllowed(namespace); err != nil {
		return nil, err
	}
	ext, err := s.catalog.FindExtension(ctx, namespace, name)
	if err != nil {
		return nil, fmt.Errorf("finding extension: %w", err)
	}
	if ext == nil || !ext.Active {
		return nil, errs.NotFoundf("extension not found: %s.%s", namespace, name)
	}
	return ext, nil
}

// anyExtension returns an extension regardless of its active state.
func (s *Service) anyExtension(ctx context.Context, namespace, name string) (*model.Extension, error) {
	ext, err := s.catalog.FindExtension(ctx, namespace, name)
	if err != nil {
		return nil, fmt.Errorf("finding extension: %w", err)
	}
	if ext == nil {
		return nil, errs.NotFoundf("extension not found: %s.%s", namespace, name)
	}
	return ext, nil
}

// resolveActive picks the active version of ext matching targetPlatform and
// versionOrAlias. An unknown platform means no platform filter.
func (s *Service) resolveActive(ctx context.Context, ext *model.Extension, targetPlatform, versionOrAlias string) (*model.ExtensionVersion, error) {
	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	v := resolver.Select(versions, model.NormalizeTargetPlatform(targetPlatform), versionOrAlias, true)
	if v == nil {
		return nil, errs.NotFoundf("version not found: %s %s", ext.FullName(), versionOrAlias)
	}
	return v, nil
}

// findBuild returns the build of ext with the exact version and platform.
// An empty platform means universal.
func (s *Service) findBuild(ctx context.Context, ext *model.Extension, version, targetPlatform string) (*model.ExtensionVersion, error) {
	platform := model.TargetPlatformUniversal
	if targetPlatform != "" {
		platform = model.NormalizeTargetPlatform(targetPlatform)
		if platform == "" {
			return nil, errs.InvalidInputf("unknown target platform: %q", targetPlatform)
		}
	}
	v, err := s.catalog.FindVersion(ctx, ext.ID, version, platform)
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if v == nil {
		return nil, errs.NotFoundf("version not found: %s %s (%s)", ext.FullName(), version, platform)
	}
	return v, nil
}
