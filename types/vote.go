package types

import (
	"crypto/ed25519"
	"errors"
)

// Errors
var (
	ErrInvalidVote      = errors.New("invalid vote")
	ErrInvalidSignature = errors.New("invalid vote signature")
)

// QuorumVote is a quorum-slice member's signed agreement to finalize a block.
// Votes are ephemeral: they are held only until the height reaches a finality
// decision, then handed to the archiver or dropped.
type QuorumVote struct {
	Height    uint64 `json:"height"`
	Voter     string `json:"voter"`
	Signature []byte `json:"signature"`
}

// Copy returns a deep copy of the vote.
func (v QuorumVote) Copy() QuorumVote {
	out := QuorumVote{Height: v.Height, Voter: v.Voter}
	if v.Signature != nil {
		out.Signature = make([]byte, len(v.Signature))
		copy(out.Signature, v.Signature)
	}
	return out
}

// VerifyVoteSignature checks a vote signature against the voter's public key
// and the canonical sign bytes for (chainID, height, headerHash).
func VerifyVoteSignature(chainID string, height uint64, headerHash Hash, sig Signature, pubKey PublicKey) error {
	if len(sig) != SignatureSize {
		return ErrInvalidSignature
	}
	if len(pubKey) != PublicKeySize {
		return errors.New("invalid public key size")
	}
	msg := VoteSignBytes(chainID, height, headerHash)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}
