package model

import "time"

// Namespace groups extensions published under one publisher name.
type Namespace struct {
	ID        int64
	Name      string // unique, case-insensitive
	Owner     string // user allowed to publish; empty means unrestricted
	CreatedAt time.Time
}

// Extension belongs to exactly one Namespace. Active is derived: an extension
// is active when at least one of its versions is active.
type Extension struct {
	ID            int64
	PublicID      string // UUID exposed to marketplace clients
	NamespaceID   int64
	NamespaceName string // denormalized on read
	Name          string // unique within namespace, case-insensitive
	Active        bool
	DownloadCount int64
	AverageRating *float64
	ReviewCount   int64
	CreatedAt     time.Time
}

// FullName returns "namespace.name".
func (e *Extension) FullName() string {
	return e.NamespaceName + "." + e.Name
}

// ExtensionVersion is one published build of an extension.
// (ExtensionID, TargetPlatform, Version) is unique.
type ExtensionVersion struct {
	ID             int64
	ExtensionID    int64
	Version        string
	TargetPlatform string

	// Parsed semantic version, stored alongside the raw string for ordering.
	SemverMajor        int64
	SemverMinor        int64
	SemverPatch        int64
	SemverPreRelease   string
	SemverIsPreRelease bool

	PreRelease bool // publisher flag from the vsix manifest
	Active     bool
	Timestamp  time.Time

	DisplayName       string
	Description       string
	Categories        []string
	Tags              []string
	Dependencies      []string
	BundledExtensions []string
	Engines           []string
	License           string
	Repository        string

	PublishedBy        string
	SignatureKeyPairID string // empty when the version is unsigned
}

// IsUniversal reports whether the build targets every platform.
func (v *ExtensionVersion) IsUniversal() bool {
	return v.TargetPlatform == TargetPlatformUniversal
}

// File resource types.
const (
	ResourceDownload     = "download"
	ResourceManifest     = "manifest"
	ResourceReadme       = "readme"
	ResourceLicense      = "license"
	ResourceIcon         = "icon"
	ResourceChangelog    = "changelog"
	ResourceVsixManifest = "vsixmanifest"
	ResourceSignature    = "download-sig"
	ResourceSubResource  = "resource"
)

// Storage types recorded on a FileResource.
const (
	StorageDatabase   = "database"
	StorageMemory     = "memory"
	StorageFileSystem = "filesystem"
	StorageS3         = "s3"
)

// FileResource is a stored asset belonging to one ExtensionVersion.
type FileResource struct {
	ID                 int64
	ExtensionVersionID int64
	Type               string
	Name               string // file name, or relative path for sub-resources
	StorageType        string
	StorageKey         string // location inside the blob store; empty for inline content
	Content            []byte // inline content when StorageType is database
	Size               int64
	Digest             string // OCI-style digest, e.g. "sha256:..."
}

// SignatureKeyPair is the process-wide signing identity. At most one is active.
type SignatureKeyPair struct {
	ID            string // UUID
	PublicKeyText string // PEM
	PrivateKey    []byte // sealed private key
	Active        bool
	CreatedAt     time.Time
}

// Operation records one mutating CLI command.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "running", "success" or "error"
	StartedAt  time.Time
	FinishedAt *time.Time
}
