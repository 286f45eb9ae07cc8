package engine

import (
	"errors"

	"github.com/phichain/phiconsensus/registry"
)

// Input errors: the request itself is malformed or refers to something the
// core does not know. Always caller-recoverable; never mutate state.
var (
	ErrInvalidBlock         = errors.New("invalid block")
	ErrHeightMismatch       = errors.New("block height mismatch")
	ErrHeightOutOfRange     = errors.New("height outside supported fibonacci range")
	ErrEmptyPool            = errors.New("empty reward pool")
	ErrNonMember            = errors.New("voter not in quorum slice")
	ErrUnknownHeight        = errors.New("no block collecting at height")
	ErrInvalidVoteSignature = errors.New("invalid vote signature")
)

// Proof errors: the block carried proofs that do not match what every honest
// observer recomputes. The block is rejected and the claimed proposer's
// performance score takes the hit — bad proofs cost reputation, malformed
// requests do not.
var (
	ErrWrongProposer    = errors.New("wrong proposer")
	ErrBadFibProof      = errors.New("bad fibonacci proof")
	ErrBadIntegrityHash = errors.New("bad integrity hash")
)

// Liveness errors: the round cannot progress. Surfaced to the
// chain-progression layer, never retried silently inside this core.
var (
	ErrNoActiveValidators = errors.New("no active validators")
	ErrNoEligibleLeader   = errors.New("no eligible leader")
	ErrHeightTimedOut     = errors.New("height timed out")
)

// Lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
)

// IsInputError reports whether err is caller-recoverable bad input.
func IsInputError(err error) bool {
	for _, target := range []error{
		ErrInvalidBlock, ErrHeightMismatch, ErrHeightOutOfRange, ErrEmptyPool,
		ErrNonMember, ErrUnknownHeight, ErrInvalidVoteSignature,
		registry.ErrDuplicateAddress, registry.ErrInvalidStake,
		registry.ErrUnknownValidator, registry.ErrEmptyAddress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsProofError reports whether err is a block-proof rejection.
func IsProofError(err error) bool {
	return errors.Is(err, ErrWrongProposer) ||
		errors.Is(err, ErrBadFibProof) ||
		errors.Is(err, ErrBadIntegrityHash)
}

// IsLivenessError reports whether err means the round cannot progress.
func IsLivenessError(err error) bool {
	return errors.Is(err, ErrNoActiveValidators) ||
		errors.Is(err, ErrNoEligibleLeader) ||
		errors.Is(err, ErrHeightTimedOut)
}
