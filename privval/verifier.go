package privval

import (
	"crypto/ed25519"
	"sync"

	"github.com/phichain/phiconsensus/types"
)

// KeyRing maps validator addresses to public keys and verifies vote
// signatures against raw sign bytes. It satisfies the engine's
// signature-verification collaborator.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]types.PublicKey
}

// NewKeyRing creates an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]types.PublicKey)}
}

// Add registers (or replaces) the public key for an address.
func (kr *KeyRing) Add(address string, pub types.PublicKey) {
	cp := make([]byte, len(pub))
	copy(cp, pub)

	kr.mu.Lock()
	defer kr.mu.Unlock()
	kr.keys[address] = types.PublicKey(cp)
}

// Remove drops the key for an address.
func (kr *KeyRing) Remove(address string) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	delete(kr.keys, address)
}

// Verify reports whether sig is a valid signature by address over msg.
// Unknown addresses and malformed key or signature material verify false,
// never panic.
func (kr *KeyRing) Verify(address string, msg []byte, sig types.Signature) bool {
	kr.mu.RLock()
	pub, ok := kr.keys[address]
	kr.mu.RUnlock()

	if !ok || len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
