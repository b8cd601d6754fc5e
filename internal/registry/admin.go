package registry

import (
	"context"
	"fmt"
	"strings"

	"vsxreg/internal/cache"
	"vsxreg/internal/errs"
	"vsxreg/internal/model"
)

// DeactivateVersion hides one build from clients without deleting its files.
// An empty platform means universal.
func (s *Service) DeactivateVersion(ctx context.Context, namespace, extension, version, targetPlatform string) error {
	ext, err := s.anyExtension(ctx, namespace, extension)
	if err != nil {
		return err
	}
	v, err := s.findBuild(ctx, ext, version, targetPlatform)
	if err != nil {
		return err
	}
	if !v.Active {
		return nil
	}
	if err := s.catalog.SetVersionActive(ctx, v.ID, false); err != nil {
		return fmt.Errorf("deactivating version: %w", err)
	}

	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	s.invalidate(ctx, cache.VersionDeactivated, ext, append(versionStrings(versions), v.Version))
	s.logger.Info("version deactivated", "extension", ext.FullName(), "version", v.Version, "platform", v.TargetPlatform)
	return nil
}

// DeleteVersion removes one build and its stored files.
func (s *Service) DeleteVersion(ctx context.Context, namespace, extension, version, targetPlatform string) error {
	ext, err := s.anyExtension(ctx, namespace, extension)
	if err != nil {
		return err
	}
	v, err := s.findBuild(ctx, ext, version, targetPlatform)
	if err != nil {
		return err
	}

	// Collected before deletion: the event must name every version the
	// extension had, including the removed one.
	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	resources, err := s.catalog.ListFileResources(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}

	if err := s.catalog.DeleteVersion(ctx, v.ID); err != nil {
		return fmt.Errorf("deleting version: %w", err)
	}
	s.discardStaged(v.ID)
	s.deleteBlobs(ctx, resources)

	s.invalidate(ctx, cache.VersionRemoved, ext, versionStrings(versions))
	s.logger.Info("version deleted", "extension", ext.FullName(), "version", v.Version, "platform", v.TargetPlatform, "files", len(resources))
	return nil
}

// discardStaged drops a pending upload of a deleted version, logging failures.
func (s *Service) discardStaged(versionID int64) {
	if s.staging == nil {
		return
	}
	if err := s.staging.Discard(versionID); err != nil {
		s.logger.Warn("discarding staged upload failed", "version_id", versionID, "error", err)
	}
}

// DeleteExtension removes an extension with all its versions and files.
func (s *Service) DeleteExtension(ctx context.Context, namespace, extension string) error {
	ext, err := s.anyExtension(ctx, namespace, extension)
	if err != nil {
		return err
	}
	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	var resources []*model.FileResource
	for _, v := range versions {
		res, err := s.catalog.ListFileResources(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("listing files: %w", err)
		}
		resources = append(resources, res...)
	}

	if err := s.catalog.DeleteExtension(ctx, ext.ID); err != nil {
		return fmt.Errorf("deleting extension: %w", err)
	}
	for _, v := range versions {
		if !v.Active {
			s.discardStaged(v.ID)
		}
	}
	s.deleteBlobs(ctx, resources)

	s.invalidate(ctx, cache.ExtensionDeleted, ext, versionStrings(versions))
	s.logger.Info("extension deleted", "extension", ext.FullName(), "versions", len(versions))
	return nil
}

// RenameExtension gives an extension a new name within its namespace.
// Entries cached under the old name are evicted too.
func (s *Service) RenameExtension(ctx context.Context, namespace, extension, newName string) error {
	if err := validateName("extension", newName); err != nil {
		return err
	}
	ext, err := s.anyExtension(ctx, namespace, extension)
	if err != nil {
		return err
	}
	if ext.Name == newName {
		return nil
	}
	if !strings.EqualFold(ext.Name, newName) {
		taken, err := s.catalog.FindExtension(ctx, ext.NamespaceName, newName)
		if err != nil {
			return fmt.Errorf("checking for existing extension: %w", err)
		}
		if taken != nil {
			return errs.InvalidInputf("extension already exists: %s", taken.FullName())
		}
	}

	versions, err := s.catalog.ListVersions(ctx, ext.ID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}
	if err := s.catalog.RenameExtension(ctx, ext.ID, newName); err != nil {
		return fmt.Errorf("renaming extension: %w", err)
	}

	s.invalidator.Invalidate(ctx, cache.Event{
		Kind:              cache.ExtensionUpdated,
		ExtensionID:       ext.ID,
		Namespace:         ext.NamespaceName,
		Extension:         newName,
		Versions:          versionStrings(versions),
		PreviousExtension: ext.Name,
	})
	s.logger.Info("extension renamed", "extension", ext.FullName(), "name", newName)
	return nil
}

// DeactivatePublisher hides every version published by user and returns how
// many versions changed.
func (s *Service) DeactivatePublisher(ctx context.Context, user string) (int64, error) {
	if user == "" {
		return 0, errs.InvalidInputf("user must not be empty")
	}
	// Listed first: the extensions may become inactive and unsearchable.
	exts, err := s.catalog.ListExtensionsPublishedBy(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("listing extensions: %w", err)
	}
	n, err := s.catalog.DeactivateVersionsPublishedBy(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("deactivating versions: %w", err)
	}

	for _, ext := range exts {
		versions, err := s.catalog.ListVersions(ctx, ext.ID)
		if err != nil {
			return n, fmt.Errorf("listing versions: %w", err)
		}
		s.invalidate(ctx, cache.VisibilityChanged, ext, versionStrings(versions))
	}
	s.logger.Info("publisher deactivated", "user", user, "versions", n, "extensions", len(exts))
	return n, nil
}

// DefaultHistoryLimit is the number of operations History returns when
// limit is not positive.
const DefaultHistoryLimit = 20

// History returns the most recent recorded operations, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	ops, err := s.catalog.ListOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
