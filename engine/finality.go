package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phichain/phiconsensus/archive"
	"github.com/phichain/phiconsensus/types"
)

// FinalityState is the finality status of one height.
type FinalityState int

const (
	// StateUnknown: no accepted block is tracked for the height.
	StateUnknown FinalityState = iota

	// StateCollecting: an accepted block is awaiting quorum-slice votes.
	StateCollecting

	// StateFinalized: every quorum-slice member voted for the block.
	StateFinalized

	// StateTimedOut: the finality timeout fired before unanimity.
	StateTimedOut
)

// String implements fmt.Stringer.
func (s FinalityState) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateCollecting:
		return "Collecting"
	case StateFinalized:
		return "Finalized"
	case StateTimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("FinalityState(%d)", int(s))
	}
}

// heightTracker carries one height's accepted block and the votes collected
// so far. The tracker's own mutex serializes vote handling per height, so
// votes for different heights never contend.
type heightTracker struct {
	mu sync.Mutex

	height     uint64
	leader     string
	headerHash types.Hash
	slice      []string
	state      FinalityState

	// Voter address to the first verified vote, kept only until a decision.
	votes map[string]*types.QuorumVote
}

func (t *heightTracker) inSlice(addr string) bool {
	for _, m := range t.slice {
		if m == addr {
			return true
		}
	}
	return false
}

// beginCollecting starts vote collection for an accepted block. If the height
// is already Collecting or Finalized the first accepted block wins and the new
// one is ignored; a TimedOut height is retried with the new block.
func (e *Engine) beginCollecting(block *types.Block, leader string) {
	v, err := e.registry.Validator(leader)
	if err != nil {
		// Leader came out of SelectLeader moments ago; losing it here means
		// a concurrent registry wipe, which the tracker cannot outlive anyway.
		e.log.Error("leader vanished after validation",
			zap.Uint64("height", block.Height), zap.Error(err))
		return
	}

	t := &heightTracker{
		height:     block.Height,
		leader:     leader,
		headerHash: block.HeaderHash(),
		state:      StateCollecting,
		votes:      make(map[string]*types.QuorumVote),
	}
	if v.QuorumSlice != nil {
		t.slice = make([]string, len(v.QuorumSlice))
		copy(t.slice, v.QuorumSlice)
	}

	e.mu.Lock()
	if prev, ok := e.heights[block.Height]; ok {
		prev.mu.Lock()
		prevState := prev.state
		prev.mu.Unlock()
		if prevState != StateTimedOut {
			e.mu.Unlock()
			return
		}
		// Retry after timeout: the new block replaces the dead round.
	}
	e.heights[block.Height] = t
	e.mu.Unlock()

	// An empty quorum slice has nothing to wait for.
	if len(t.slice) == 0 {
		t.mu.Lock()
		t.state = StateFinalized
		t.mu.Unlock()
		e.decide(t, archive.DecisionFinalized)
		return
	}

	e.metrics.HeightsCollecting.Inc()
	e.ticker.ScheduleTimeout(TimeoutInfo{
		Height:   block.Height,
		Duration: e.config.FinalityTimeout,
	})
}

// RecordVote applies one quorum-slice member's finality vote for the block
// collecting at height. The signature must cover the canonical vote bytes for
// this chain, height and the accepted block's header hash.
//
// Duplicate votes are idempotent; the first one counts. Votes for decided
// heights return the decided state without error (Finalized) or with
// ErrHeightTimedOut (TimedOut). Unanimity across the leader's quorum slice
// finalizes the height atomically.
func (e *Engine) RecordVote(height uint64, voter string, sig types.Signature) (FinalityState, error) {
	e.mu.RLock()
	t, ok := e.heights[height]
	e.mu.RUnlock()
	if !ok {
		return StateUnknown, fmt.Errorf("%w: %d", ErrUnknownHeight, height)
	}

	state, finalizedNow, err := e.applyVote(t, voter, sig)
	if !finalizedNow {
		return state, err
	}

	e.ticker.Cancel(height)
	e.metrics.HeightsCollecting.Dec()
	e.decide(t, archive.DecisionFinalized)
	return StateFinalized, nil
}

// applyVote runs the per-height vote checks under the tracker lock. It
// reports whether this vote completed unanimity; if so the caller settles the
// decision outside the lock.
func (e *Engine) applyVote(t *heightTracker, voter string, sig types.Signature) (FinalityState, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateFinalized:
		return StateFinalized, false, nil
	case StateTimedOut:
		return StateTimedOut, false, fmt.Errorf("%w: %d", ErrHeightTimedOut, t.height)
	}

	if !t.inSlice(voter) {
		return StateCollecting, false, fmt.Errorf("%w: %s at height %d", ErrNonMember, voter, t.height)
	}
	if _, dup := t.votes[voter]; dup {
		return StateCollecting, false, nil
	}

	msg := types.VoteSignBytes(e.config.ChainID, t.height, t.headerHash)
	if e.verifier == nil || !e.verifier.Verify(voter, msg, sig) {
		return StateCollecting, false, fmt.Errorf("%w: %s at height %d", ErrInvalidVoteSignature, voter, t.height)
	}

	if ev, err := e.evpool.Record(t.height, voter, t.headerHash, sig); err == nil && ev != nil {
		e.metrics.Equivocations.Inc()
		e.log.Warn("equivocation detected",
			zap.Uint64("height", t.height),
			zap.String("voter", voter))
	}

	t.votes[voter] = &types.QuorumVote{
		Height:    t.height,
		Voter:     voter,
		Signature: sig.Copy(),
	}
	e.metrics.VotesRecorded.Inc()

	e.log.Debug("vote recorded",
		zap.Uint64("height", t.height),
		zap.String("voter", voter),
		zap.Int("have", len(t.votes)),
		zap.Int("need", len(t.slice)))

	if len(t.votes) < len(t.slice) {
		return StateCollecting, false, nil
	}
	t.state = StateFinalized
	return StateFinalized, true, nil
}

// FinalityStatus returns the finality state of a height.
func (e *Engine) FinalityStatus(height uint64) FinalityState {
	e.mu.RLock()
	t, ok := e.heights[height]
	e.mu.RUnlock()
	if !ok {
		return StateUnknown
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Abandon marks a Collecting height TimedOut immediately, without waiting for
// its timer. No-op for unknown or already decided heights.
func (e *Engine) Abandon(height uint64) {
	e.ticker.Cancel(height)
	e.onFinalityTimeout(height)
}

// onFinalityTimeout transitions a still-Collecting height to TimedOut.
func (e *Engine) onFinalityTimeout(height uint64) {
	e.mu.RLock()
	t, ok := e.heights[height]
	e.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	if t.state != StateCollecting {
		t.mu.Unlock()
		return
	}
	t.state = StateTimedOut
	have, need := len(t.votes), len(t.slice)
	t.mu.Unlock()

	e.metrics.HeightsCollecting.Dec()
	e.log.Warn("height timed out",
		zap.Uint64("height", height),
		zap.String("leader", t.leader),
		zap.Int("votes", have),
		zap.Int("needed", need))
	e.decide(t, archive.DecisionTimedOut)
}

// decide records a terminal state: counters, archive record, vote release.
// Called exactly once per tracker decision.
func (e *Engine) decide(t *heightTracker, decision string) {
	t.mu.Lock()
	votes := make([]types.QuorumVote, 0, len(t.votes))
	for _, v := range t.votes {
		votes = append(votes, v.Copy())
	}
	// Votes are held only until the decision; the record keeps them.
	t.votes = make(map[string]*types.QuorumVote)
	t.mu.Unlock()

	sort.Slice(votes, func(i, j int) bool { return votes[i].Voter < votes[j].Voter })

	e.mu.Lock()
	switch decision {
	case archive.DecisionFinalized:
		e.finalizedCount++
		e.metrics.HeightsFinalized.Inc()
	case archive.DecisionTimedOut:
		e.timedOutCount++
		e.metrics.HeightsTimedOut.Inc()
	}
	archiver := e.archiver
	e.mu.Unlock()

	rec := &archive.Record{
		Height:     t.height,
		Decision:   decision,
		Leader:     t.leader,
		HeaderHash: t.headerHash.String(),
		Votes:      votes,
		Time:       time.Now(),
	}
	if err := archiver.Archive(rec); err != nil {
		e.log.Error("archiving decision failed",
			zap.Uint64("height", t.height),
			zap.String("decision", decision),
			zap.Error(err))
	}
}

// Prune drops trackers for decided heights below the given height and purges
// matching equivocation bookkeeping. Collecting heights are kept regardless.
func (e *Engine) Prune(below uint64) {
	e.mu.Lock()
	for h, t := range e.heights {
		if h >= below {
			continue
		}
		t.mu.Lock()
		decided := t.state == StateFinalized || t.state == StateTimedOut
		t.mu.Unlock()
		if decided {
			delete(e.heights, h)
		}
	}
	e.mu.Unlock()

	e.evpool.Purge(below)
}
