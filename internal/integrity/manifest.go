package integrity

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gowebpki/jcs"
)

// ManifestEntry records the size and digests of one file.
type ManifestEntry struct {
	Size    int64             `json:"size"`
	Digests map[string]string `json:"digests"`
}

// Manifest lists the digest of the whole package and of every file inside it.
// Entry keys are the base64-encoded entry paths.
type Manifest struct {
	Package ManifestEntry            `json:"package"`
	Entries map[string]ManifestEntry `json:"entries"`
}

func newManifestEntry(r io.Reader) (ManifestEntry, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return ManifestEntry{}, err
	}
	return ManifestEntry{
		Size:    n,
		Digests: map[string]string{"sha256": base64.StdEncoding.EncodeToString(h.Sum(nil))},
	}, nil
}

// NewManifest computes the manifest of a zip artifact. Directory entries are skipped.
func NewManifest(artifact []byte) (*Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(artifact), int64(len(artifact)))
	if err != nil {
		return nil, fmt.Errorf("reading package archive: %w", err)
	}

	m := &Manifest{Entries: make(map[string]ManifestEntry, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		entry, err := newManifestEntry(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("hashing entry %s: %w", f.Name, err)
		}
		m.Entries[base64.StdEncoding.EncodeToString([]byte(f.Name))] = entry
	}

	if m.Package, err = newManifestEntry(bytes.NewReader(artifact)); err != nil {
		return nil, fmt.Errorf("hashing package: %w", err)
	}
	return m, nil
}

// Canonical returns the RFC 8785 (JCS) encoding of m, so equal manifests
// always serialize to identical bytes.
func (m *Manifest) Canonical() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return jcs.Transform(raw)
}
