package encryption

import (
	"bytes"
	"fmt"

	"vsxreg/internal/registry"
)

// plainHeader is prepended to keys by PlainSealer so sealed output is
// distinguishable from raw key material.
var plainHeader = []byte("VSXKEY\x00\x00")

// PlainSealer stores keys without encryption. It is meant for tests and for
// deployments that protect the catalog database by other means.
type PlainSealer struct{}

var _ registry.KeySealer = (*PlainSealer)(nil)

func NewPlainSealer() *PlainSealer {
	return &PlainSealer{}
}

func (PlainSealer) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(plainHeader)+len(plaintext))
	out = append(out, plainHeader...)
	return append(out, plaintext...), nil
}

func (PlainSealer) Open(sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, plainHeader) {
		return nil, fmt.Errorf("invalid plain key header")
	}
	return append([]byte(nil), sealed[len(plainHeader):]...), nil
}
