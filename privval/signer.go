package privval

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/phichain/phiconsensus/types"
)

// Errors
var (
	ErrDoubleSign       = errors.New("double sign attempt")
	ErrHeightRegression = errors.New("height regression")
)

// PrivValidator signs finality votes on behalf of one validator. Key
// generation and secure storage are out of scope here; implementations may
// wrap HSMs, remote signers or files.
type PrivValidator interface {
	// Address returns the validator address this signer votes as.
	Address() string

	// PubKey returns the public key peers verify against.
	PubKey() types.PublicKey

	// SignVote signs a finality vote for the block with the given header
	// hash at the given height, refusing double signs.
	SignVote(chainID string, height uint64, headerHash types.Hash) (types.Signature, error)
}

// LastSignState tracks the last signed vote for double-sign prevention.
type LastSignState struct {
	Height     uint64
	HeaderHash types.Hash
	Signature  types.Signature
	signed     bool
}

// Check returns nil if signing (height, headerHash) is allowed: heights must
// not regress, and a second sign at the same height must be for the same
// block (in which case the cached signature is reused).
func (lss *LastSignState) Check(height uint64, headerHash types.Hash) error {
	if !lss.signed {
		return nil
	}
	if height < lss.Height {
		return fmt.Errorf("%w: last signed %d, asked %d", ErrHeightRegression, lss.Height, height)
	}
	if height == lss.Height && headerHash != lss.HeaderHash {
		return fmt.Errorf("%w: height %d", ErrDoubleSign, height)
	}
	return nil
}

// MemPV is an in-memory Ed25519 signer. Intended for tests and local tooling;
// production validators plug their own PrivValidator.
type MemPV struct {
	mu   sync.Mutex
	addr string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	last LastSignState
}

// GenerateMemPV creates a signer with a fresh random key.
func GenerateMemPV(address string) (*MemPV, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &MemPV{addr: address, priv: priv, pub: pub}, nil
}

// NewMemPV creates a signer from an existing private key.
func NewMemPV(address string, priv ed25519.PrivateKey) (*MemPV, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return &MemPV{
		addr: address,
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Address implements PrivValidator.
func (pv *MemPV) Address() string { return pv.addr }

// PubKey implements PrivValidator.
func (pv *MemPV) PubKey() types.PublicKey {
	out := make([]byte, len(pv.pub))
	copy(out, pv.pub)
	return types.PublicKey(out)
}

// SignVote implements PrivValidator. Re-signing the same (height, block) is
// idempotent and returns the cached signature.
func (pv *MemPV) SignVote(chainID string, height uint64, headerHash types.Hash) (types.Signature, error) {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	if err := pv.last.Check(height, headerHash); err != nil {
		return nil, err
	}
	if pv.last.signed && pv.last.Height == height && pv.last.HeaderHash == headerHash {
		return pv.last.Signature.Copy(), nil
	}

	msg := types.VoteSignBytes(chainID, height, headerHash)
	sig := types.Signature(ed25519.Sign(pv.priv, msg))

	pv.last = LastSignState{
		Height:     height,
		HeaderHash: headerHash,
		Signature:  sig.Copy(),
		signed:     true,
	}
	return sig, nil
}
