package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/phichain/phiconsensus/types"
)

// ValidateBlock checks a proposed block against expectedHeight and, if every
// proof holds, admits the height into vote collection.
//
// Checks run in a fixed order: height match, proposer identity, Fibonacci
// proof, integrity hash. A height mismatch is bad input and costs the
// proposer nothing; any later failure is a proof error and lowers the claimed
// proposer's performance score. On success the leader's score rises and the
// block's height begins Collecting quorum votes.
func (e *Engine) ValidateBlock(block *types.Block, expectedHeight uint64) error {
	if block == nil {
		return ErrInvalidBlock
	}
	if block.Height != expectedHeight {
		// Bad input, not a bad proof: no penalty for the named proposer.
		return fmt.Errorf("%w: got %d, expected %d", ErrHeightMismatch, block.Height, expectedHeight)
	}

	leader, err := e.SelectLeader(block.Height)
	if err != nil {
		return err
	}

	if block.Proposer != leader.Address {
		return e.failProof(block, fmt.Errorf("%w: got %s, expected %s",
			ErrWrongProposer, block.Proposer, leader.Address))
	}

	expectedFib, err := e.fib.Fib(block.Height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHeightOutOfRange, err)
	}
	if block.Proof.FibValue == nil || block.Proof.FibValue.Cmp(expectedFib) != 0 {
		return e.failProof(block, fmt.Errorf("%w: wrong fibonacci value for height %d",
			ErrBadFibProof, block.Height))
	}
	if block.Proof.EntryIndex != leader.EntryIndex {
		return e.failProof(block, fmt.Errorf("%w: entry index %d, expected %d",
			ErrBadFibProof, block.Proof.EntryIndex, leader.EntryIndex))
	}

	e.mu.RLock()
	hasher := e.hasher
	e.mu.RUnlock()
	expectedHash := hasher.Hash(types.IntegrityPreimage(block.Header, e.phiDigits))
	if block.IntegrityHash != expectedHash {
		return e.failProof(block, fmt.Errorf("%w: header not bound to φ", ErrBadIntegrityHash))
	}

	if err := e.registry.RecordOutcome(block.Proposer, true); err != nil {
		return fmt.Errorf("recording success for %s: %w", block.Proposer, err)
	}
	e.metrics.BlocksAccepted.Inc()

	e.beginCollecting(block, leader.Address)

	e.log.Info("block accepted",
		zap.Uint64("height", block.Height),
		zap.String("proposer", block.Proposer),
		zap.String("header_hash", block.HeaderHash().String()))
	return nil
}

// failProof records the rejection against the claimed proposer (when it is a
// registered validator) and returns err.
func (e *Engine) failProof(block *types.Block, err error) error {
	if e.registry.Has(block.Proposer) {
		// Best effort; the rejection itself is the caller's signal.
		_ = e.registry.RecordOutcome(block.Proposer, false)
	}
	e.metrics.BlocksRejected.WithLabelValues(rejectionReason(err)).Inc()

	e.log.Warn("block rejected",
		zap.Uint64("height", block.Height),
		zap.String("proposer", block.Proposer),
		zap.Error(err))
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrWrongProposer):
		return "wrong_proposer"
	case errors.Is(err, ErrBadFibProof):
		return "bad_fib_proof"
	case errors.Is(err, ErrBadIntegrityHash):
		return "bad_integrity_hash"
	default:
		return "other"
	}
}

// BuildBlock assembles a valid block for the given height and header bytes as
// the current expected leader would propose it: correct Fibonacci proof and
// integrity hash included. Returns a proof error if proposer is not the
// expected leader for the height.
func (e *Engine) BuildBlock(height uint64, proposer string, header []byte) (*types.Block, error) {
	leader, err := e.SelectLeader(height)
	if err != nil {
		return nil, err
	}
	if leader.Address != proposer {
		return nil, fmt.Errorf("%w: %s is not the leader for height %d",
			ErrWrongProposer, proposer, height)
	}

	fibValue, err := e.fib.Fib(height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeightOutOfRange, err)
	}

	e.mu.RLock()
	hasher := e.hasher
	e.mu.RUnlock()

	block := &types.Block{
		Height:   height,
		Proposer: proposer,
		Proof: types.FibProof{
			FibValue:   fibValue,
			EntryIndex: leader.EntryIndex,
		},
		IntegrityHash: hasher.Hash(types.IntegrityPreimage(header, e.phiDigits)),
	}
	if header != nil {
		block.Header = make([]byte, len(header))
		copy(block.Header, header)
	}
	return block, nil
}
