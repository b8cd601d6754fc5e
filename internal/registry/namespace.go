package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"vsxreg/internal/cache"
	"vsxreg/internal/errs"
	"vsxreg/internal/model"
)

var namePattern = regexp.MustCompile(`^[\w\-\+\$~]+$`)

// validateName checks a namespace or extension name.
func validateName(kind, name string) error {
	if !namePattern.MatchString(name) {
		return errs.InvalidInputf("invalid %s name: %q", kind, name)
	}
	return nil
}

// checkNamespaceAllowed rejects the builtin namespace, which is reserved for
// extensions shipped with the editor.
func (s *Service) checkNamespaceAllowed(namespace string) error {
	if strings.EqualFold(namespace, s.opts.BuiltinNamespace) {
		return errs.InvalidInputf("built-in extension namespace '%s' not allowed", namespace)
	}
	return nil
}

// CreateNamespace registers a namespace. owner may be empty, which lets any
// user publish to it.
func (s *Service) CreateNamespace(ctx context.Context, name, owner string) (*model.Namespace, error) {
	if err := validateName("namespace", name); err != nil {
		return nil, err
	}
	if err := s.checkNamespaceAllowed(name); err != nil {
		return nil, err
	}

	existing, err := s.catalog.FindNamespace(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking for existing namespace: %w", err)
	}
	if existing != nil {
		return nil, errs.InvalidInputf("namespace already exists: %s", existing.Name)
	}

	ns, err := s.catalog.CreateNamespace(ctx, name, owner)
	if err != nil {
		return nil, fmt.Errorf("creating namespace: %w", err)
	}
	s.logger.Info("namespace created", "namespace", ns.Name, "owner", owner)
	return ns, nil
}

// TransferNamespace changes the namespace owner. Every extension of the
// namespace is invalidated since ownership affects what clients see.
func (s *Service) TransferNamespace(ctx context.Context, name, newOwner string) error {
	ns, err := s.catalog.FindNamespace(ctx, name)
	if err != nil {
		return fmt.Errorf("finding namespace: %w", err)
	}
	if ns == nil {
		return errs.NotFoundf("namespace not found: %s", name)
	}

	exts, err := s.catalog.ListExtensionsInNamespace(ctx, ns.ID)
	if err != nil {
		return fmt.Errorf("listing extensions: %w", err)
	}
	if err := s.catalog.UpdateNamespaceOwner(ctx, ns.ID, newOwner); err != nil {
		return fmt.Errorf("updating namespace owner: %w", err)
	}

	for _, ext := range exts {
		versions, err := s.catalog.ListVersions(ctx, ext.ID)
		if err != nil {
			return fmt.Errorf("listing versions: %w", err)
		}
		s.invalidate(ctx, cache.VisibilityChanged, ext, versionStrings(versions))
	}
	s.logger.Info("namespace transferred", "namespace", ns.Name, "owner", newOwner)
	return nil
}
