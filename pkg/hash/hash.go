package hash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

type Algorithm string

const SHA256 Algorithm = "sha256"

// Hasher renders digests as lower-case hex.
type Hasher interface {
	Calculate(data []byte) (string, error)
	Verify(data []byte, expectedHash string) (bool, error)
}

type hexHasher struct {
	algorithm Algorithm
}

func NewHasher(algorithm Algorithm) Hasher {
	return &hexHasher{
		algorithm: Algorithm(strings.ToLower(string(algorithm))),
	}
}

func (h *hexHasher) Calculate(data []byte) (string, error) {
	hasher, err := h.newHash()
	if err != nil {
		return "", err
	}

	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (h *hexHasher) Verify(data []byte, expectedHash string) (bool, error) {
	calculated, err := h.Calculate(data)
	if err != nil {
		return false, err
	}

	expected := strings.ToLower(strings.TrimSpace(expectedHash))
	return subtle.ConstantTimeCompare([]byte(calculated), []byte(expected)) == 1, nil
}

func (h *hexHasher) newHash() (hash.Hash, error) {
	switch h.algorithm {
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", h.algorithm)
	}
}

// SHA256Hex is the digest used for ledger entries.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
