package testutil

import (
	"testing"

	"vsxreg/internal/encryption"
	"vsxreg/internal/integrity"
	"vsxreg/internal/registry"
)

// NewTestSealer returns a sealer that stores keys unencrypted.
func NewTestSealer() registry.KeySealer {
	return encryption.NewPlainSealer()
}

// NewTestKeyPair generates a signing key pair or fails the test.
func NewTestKeyPair(t *testing.T) integrity.KeyPair {
	t.Helper()
	kp, err := integrity.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	return kp
}
