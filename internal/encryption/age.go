package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"vsxreg/internal/registry"
)

// AgeSealer implements registry.KeySealer using age's scrypt-based
// passphrase encryption. Sealed keys are only readable with the same passphrase.
type AgeSealer struct {
	passphrase string
	workFactor int // 0 keeps age's default
}

var _ registry.KeySealer = (*AgeSealer)(nil)

// NewAgeSealer creates an AgeSealer for passphrase.
func NewAgeSealer(passphrase string) (*AgeSealer, error) {
	if passphrase == "" {
		return nil, errors.New("age sealer requires a passphrase")
	}
	return &AgeSealer{passphrase: passphrase}, nil
}

// SetWorkFactor overrides the scrypt work factor (log2 of N) used when sealing.
// Lower values make tests fast; opening accepts any factor up to age's limit.
func (s *AgeSealer) SetWorkFactor(logN int) {
	s.workFactor = logN
}

// Seal encrypts plaintext with the passphrase.
func (s *AgeSealer) Seal(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.workFactor > 0 {
		recipient.SetWorkFactor(s.workFactor)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts a key sealed by Seal.
func (s *AgeSealer) Open(sealed []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting key: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key: %w", err)
	}
	return plaintext, nil
}
