package integrity

import (
	"archive/zip"
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"vsxreg/internal/errs"
)

// Entry names inside a signature archive. Consuming clients look them up by
// exact name.
const (
	EntrySignature   = ".signature.sig"
	EntryManifest    = ".signature.manifest"
	EntryPlaceholder = ".signature.p7s"
)

// Bundle is the decoded content of a signature archive.
type Bundle struct {
	Signature []byte
	Manifest  []byte
}

// Sign produces a signature archive for artifact: a detached Ed25519
// signature over the raw artifact bytes, the canonical manifest, and an
// empty placeholder entry. Ed25519 is deterministic, so signing the same
// artifact with the same key always yields the same archive.
func Sign(artifact []byte, kp KeyPair) ([]byte, error) {
	if len(kp.Private) != ed25519.PrivateKeySize {
		return nil, errs.Wrap(errors.New("signing key is not set"), errs.CategorySigningFailure, false)
	}

	manifest, err := NewManifest(artifact)
	if err != nil {
		return nil, errs.Wrap(fmt.Errorf("building manifest: %w", err), errs.CategorySigningFailure, false)
	}
	manifestBytes, err := manifest.Canonical()
	if err != nil {
		return nil, errs.Wrap(err, errs.CategorySigningFailure, false)
	}

	bundle := Bundle{
		Signature: ed25519.Sign(kp.Private, artifact),
		Manifest:  manifestBytes,
	}
	out, err := bundle.Encode()
	if err != nil {
		return nil, errs.Wrap(err, errs.CategorySigningFailure, false)
	}
	return out, nil
}

// Encode writes the bundle as a zip archive with fixed entry order and no
// timestamps.
func (b Bundle) Encode() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{EntrySignature, b.Signature},
		{EntryManifest, b.Manifest},
		{EntryPlaceholder, nil},
	} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("creating entry %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("writing entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing signature archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadBundle decodes a signature archive. All three entries must be present.
func ReadBundle(archive []byte) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("reading signature archive: %w", err)
	}

	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", f.Name, err)
		}
		entries[f.Name] = data
	}

	for _, name := range []string{EntrySignature, EntryManifest, EntryPlaceholder} {
		if _, ok := entries[name]; !ok {
			return nil, fmt.Errorf("signature archive is missing %s", name)
		}
	}
	return &Bundle{Signature: entries[EntrySignature], Manifest: entries[EntryManifest]}, nil
}

// Verify checks a raw detached signature over artifact. A corrupt or
// truncated signature yields false; an unparsable public key is an error.
func Verify(artifact, signature []byte, publicKeyPEM string) (bool, error) {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false, err
	}
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(pub, artifact, signature), nil
}

// VerifyBundle checks a signature archive against artifact. Besides the
// signature, the archived manifest must match the one computed from artifact.
func VerifyBundle(artifact, archive []byte, publicKeyPEM string) (bool, error) {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false, err
	}
	bundle, err := ReadBundle(archive)
	if err != nil {
		return false, nil
	}
	if len(bundle.Signature) != ed25519.SignatureSize || !ed25519.Verify(pub, artifact, bundle.Signature) {
		return false, nil
	}

	manifest, err := NewManifest(artifact)
	if err != nil {
		return false, nil
	}
	want, err := manifest.Canonical()
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, bundle.Manifest), nil
}
