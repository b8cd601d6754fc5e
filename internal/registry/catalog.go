package registry

import (
	"context"

	"vsxreg/internal/model"
)

// Catalog provides the persistent view of namespaces, extensions, versions,
// file resources and signing keys. Lookups return (nil, nil) when nothing
// matches. Every mutating method is atomic: it commits fully or not at all.
type Catalog interface {
	// Namespace operations

	CreateNamespace(ctx context.Context, name, owner string) (*model.Namespace, error)
	// FindNamespace matches the name case-insensitively.
	FindNamespace(ctx context.Context, name string) (*model.Namespace, error)
	UpdateNamespaceOwner(ctx context.Context, namespaceID int64, owner string) error

	// Extension operations

	// FindExtension matches namespace and name case-insensitively.
	FindExtension(ctx context.Context, namespace, name string) (*model.Extension, error)
	FindExtensionByID(ctx context.Context, id int64) (*model.Extension, error)
	FindOrCreateExtension(ctx context.Context, namespaceID int64, name, publicID string) (*model.Extension, error)
	ListExtensionsInNamespace(ctx context.Context, namespaceID int64) ([]*model.Extension, error)
	// ListExtensionsPublishedBy returns every extension with a version published by user.
	ListExtensionsPublishedBy(ctx context.Context, user string) ([]*model.Extension, error)
	// SearchExtensions returns one page of matches and the total match count.
	SearchExtensions(ctx context.Context, q SearchQuery) ([]*model.Extension, int, error)
	RenameExtension(ctx context.Context, extensionID int64, newName string) error
	// DeleteExtension removes the extension with its versions and file resources.
	DeleteExtension(ctx context.Context, extensionID int64) error
	IncrementDownloadCount(ctx context.Context, extensionID int64) error

	// Version operations

	// CreateVersion inserts v and sets v.ID.
	CreateVersion(ctx context.Context, v *model.ExtensionVersion) error
	FindVersionByID(ctx context.Context, id int64) (*model.ExtensionVersion, error)
	FindVersion(ctx context.Context, extensionID int64, version, targetPlatform string) (*model.ExtensionVersion, error)
	ListVersions(ctx context.Context, extensionID int64) ([]*model.ExtensionVersion, error)
	// ActivateVersion stores resources, records the signing key and marks the
	// version active, all in one transaction.
	ActivateVersion(ctx context.Context, versionID int64, keyPairID string, resources []*model.FileResource) error
	SetVersionActive(ctx context.Context, versionID int64, active bool) error
	// DeactivateVersionsPublishedBy deactivates every version published by user
	// and returns how many changed.
	DeactivateVersionsPublishedBy(ctx context.Context, user string) (int64, error)
	DeleteVersion(ctx context.Context, versionID int64) error
	// ReplaceSignature swaps the version's signature resource and key in one transaction.
	ReplaceSignature(ctx context.Context, versionID int64, keyPairID string, signature *model.FileResource) error

	// File resource operations

	ListFileResources(ctx context.Context, versionID int64) ([]*model.FileResource, error)

	// Signing key operations

	ActiveKeyPair(ctx context.Context) (*model.SignatureKeyPair, error)
	FindKeyPair(ctx context.Context, id string) (*model.SignatureKeyPair, error)
	// ActivateKeyPair stores kp as the only active key pair; the previous one
	// stays available for verification.
	ActivateKeyPair(ctx context.Context, kp *model.SignatureKeyPair) error

	// Operation log

	CreateOperation(ctx context.Context, operation, parameters string) (*model.Operation, error)
	FinishOperation(ctx context.Context, id int64, status string) error
	ListOperations(ctx context.Context, limit int) ([]*model.Operation, error)

	// CheckMigrations verifies that the database schema is up to date.
	CheckMigrations() error

	Close() error
}

// SearchQuery filters and pages SearchExtensions.
type SearchQuery struct {
	PublicIDs       []string
	FullNames       []string // lowercased "namespace.name"
	Text            string
	Tags            []string
	Category        string
	TargetPlatform  string // "" matches any; otherwise the platform or universal
	IncludeInactive bool
	SortBy          string // one of the marketplace sort keys
	SortAscending   bool
	Offset          int
	Limit           int
}
