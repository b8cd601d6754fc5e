package registry

import (
	"context"
	"io"
	"time"

	"github.com/opencontainers/go-digest"
)

// BlobStore persists asset bytes outside the catalog database.
// Operations stream through io.Reader/io.Writer so large archives are never
// held in memory by the registry itself.
type BlobStore interface {
	// Type returns the storage name recorded on file resources (model.Storage*).
	Type() string

	// Put stores the content of r under key, replacing any previous content,
	// and returns its digest and size.
	Put(ctx context.Context, key string, r io.Reader) (digest.Digest, int64, error)

	// Get writes the content stored under key to w. When expected is set the
	// content is verified against it and a mismatch is an integrity failure.
	Get(ctx context.Context, key string, w io.Writer, expected digest.Digest) error

	// Delete removes key. Missing keys are ignored.
	Delete(ctx context.Context, key string) error

	// Location returns a URL clients may fetch key from directly, or "" when
	// the registry has to stream the content itself.
	Location(ctx context.Context, key string) (string, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}

// KeySealer protects signing private keys at rest.
type KeySealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// StagedUpload is one uploaded artifact waiting for post-processing.
type StagedUpload struct {
	VersionID int64     `json:"version_id"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	StagedAt  time.Time `json:"staged_at"`
}

// ProcessFunc post-processes one staged upload. Returning nil removes the
// upload from the queue; an error leaves it queued for a later attempt.
type ProcessFunc func(r io.Reader, upload StagedUpload) error

// StagingArea queues uploaded artifacts between publish and activation.
type StagingArea interface {
	// Stage copies r into the staging area and queues it for versionID.
	Stage(versionID int64, r io.Reader) error

	// ProcessNext calls fn with the oldest staged upload. It returns nil
	// without calling fn when the queue is empty.
	ProcessNext(fn ProcessFunc) error

	// Discard drops a queued upload without processing it.
	Discard(versionID int64) error

	// Count returns the number of queued uploads.
	Count() (int, error)

	// Size returns the total size of staged content in bytes.
	Size() (int64, error)

	// IsStaged reports whether versionID has a queued upload.
	IsStaged(versionID int64) (bool, error)
}
