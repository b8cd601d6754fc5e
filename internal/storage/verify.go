// Package storage holds the blob stores behind registry.BlobStore.
package storage

import (
	_ "crypto/sha256" // registers the canonical digest algorithm
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"

	"vsxreg/internal/errs"
)

// putDigest copies r to w while computing the canonical digest of the bytes.
func putDigest(w io.Writer, r io.Reader) (digest.Digest, int64, error) {
	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(w, digester.Hash()), r)
	if err != nil {
		return "", n, err
	}
	return digester.Digest(), n, nil
}

// copyVerified copies r to w and checks the bytes against expected.
// Bytes are written as they are read, so on mismatch w has already
// received the corrupt content; callers must discard it.
func copyVerified(w io.Writer, r io.Reader, key string, expected digest.Digest) error {
	if expected == "" {
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		return nil
	}
	if err := expected.Validate(); err != nil {
		return errs.InvalidInputf("invalid digest for %s: %v", key, err)
	}

	verifier := expected.Verifier()
	if _, err := io.Copy(io.MultiWriter(w, verifier), r); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if !verifier.Verified() {
		return errs.Wrap(fmt.Errorf("content of %s does not match digest %s", key, expected),
			errs.CategoryIntegrityFailure, false)
	}
	return nil
}
