package types

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// FibProof is the mathematical proof a proposer embeds in a block: the claimed
// Fibonacci value for the block height and the proposer's own entry index.
type FibProof struct {
	// FibValue is the claimed F(height). Exact, arbitrary precision.
	FibValue *big.Int

	// EntryIndex is the proposer's claimed registration order.
	EntryIndex uint64
}

// Copy returns a deep copy of the proof.
func (p FibProof) Copy() FibProof {
	out := FibProof{EntryIndex: p.EntryIndex}
	if p.FibValue != nil {
		out.FibValue = new(big.Int).Set(p.FibValue)
	}
	return out
}

// Block is a proposed block as consumed by the consensus core. The header is
// opaque to this layer; the core only binds it into the integrity hash and
// the vote sign bytes. Transactions, parent links and timestamps live inside
// the header bytes and belong to the application.
type Block struct {
	Height        uint64
	Proposer      string
	Header        []byte
	Proof         FibProof
	IntegrityHash Hash
}

// HeaderHash is the SHA-256 digest of the opaque header bytes. This is the
// value quorum votes commit to.
func (b *Block) HeaderHash() Hash {
	if b == nil {
		return Hash{}
	}
	return HashBytes(b.Header)
}

// Copy returns a deep copy of the block.
func (b *Block) Copy() *Block {
	if b == nil {
		return nil
	}
	out := &Block{
		Height:        b.Height,
		Proposer:      b.Proposer,
		Proof:         b.Proof.Copy(),
		IntegrityHash: b.IntegrityHash,
	}
	if b.Header != nil {
		out.Header = make([]byte, len(b.Header))
		copy(out.Header, b.Header)
	}
	return out
}

// IntegrityPreimage builds the preimage whose hash binds a block header to φ:
// the raw header bytes followed by the golden ratio rendered at the
// configured precision. Every validator recomputes this identically.
func IntegrityPreimage(header, phiDigits []byte) []byte {
	out := make([]byte, 0, len(header)+len(phiDigits))
	out = append(out, header...)
	return append(out, phiDigits...)
}

// canonicalVote is the JSON form signed by quorum-slice members. Field order
// is fixed by the struct definition, so encoding is deterministic.
type canonicalVote struct {
	ChainID    string `json:"chain_id"`
	Height     uint64 `json:"height"`
	HeaderHash string `json:"header_hash"`
}

// VoteSignBytes returns the canonical bytes a quorum-slice member signs to
// vote for the block with the given header hash at the given height.
func VoteSignBytes(chainID string, height uint64, headerHash Hash) []byte {
	data, err := json.Marshal(canonicalVote{
		ChainID:    chainID,
		Height:     height,
		HeaderHash: headerHash.String(),
	})
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal canonical vote: %v", err))
	}
	return data
}
