package types

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the size of a hash in bytes.
const HashSize = sha256.Size

// SignatureSize is the expected size of a signature in bytes.
const SignatureSize = ed25519.SignatureSize

// PublicKeySize is the expected size of a public key in bytes.
const PublicKeySize = ed25519.PublicKeySize

// Hash is a SHA-256 digest. The zero value is the empty hash.
type Hash [HashSize]byte

// NewHash creates a Hash from bytes, returning an error if the length is
// wrong. Use for untrusted input (network, files).
func NewHash(data []byte) (Hash, error) {
	if len(data) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(data))
	}
	var h Hash
	copy(h[:], data)
	return h, nil
}

// MustNewHash creates a Hash, panicking if invalid.
// Use only for trusted internal data.
func MustNewHash(data []byte) Hash {
	h, err := NewHash(data)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBytes computes the SHA-256 hash of data.
func HashBytes(data []byte) Hash {
	return sha256.Sum256(data)
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Signature is a detached signature over canonical sign bytes.
type Signature []byte

// NewSignature creates a Signature from bytes, returning an error if the
// length is wrong. The input is copied so the caller cannot mutate it later.
func NewSignature(data []byte) (Signature, error) {
	if len(data) != SignatureSize {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	return Signature(bytes.Clone(data)), nil
}

// Equal compares two signatures.
func (s Signature) Equal(other Signature) bool {
	return bytes.Equal(s, other)
}

// Copy returns an independent copy of the signature.
func (s Signature) Copy() Signature {
	return Signature(bytes.Clone(s))
}

// PublicKey is an Ed25519 public key.
type PublicKey []byte

// NewPublicKey creates a PublicKey from bytes, returning an error if the
// length is wrong. The input is copied.
func NewPublicKey(data []byte) (PublicKey, error) {
	if len(data) != PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	return PublicKey(bytes.Clone(data)), nil
}

// Equal compares two public keys.
func (p PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(p, other)
}
