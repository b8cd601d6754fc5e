package testutil

import (
	"github.com/opencontainers/go-digest"
)

// Digest returns the canonical digest string of data, the format recorded on
// file resources and staged uploads.
func Digest(data []byte) string {
	return digest.FromBytes(data).String()
}
