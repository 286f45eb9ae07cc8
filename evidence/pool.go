// Package evidence tracks equivocation by quorum-slice voters.
//
// A voter equivocates by signing finality votes for two different blocks at
// the same height — possible when a timed-out height is retried with a new
// block, or when competing proposals reach different nodes. The pool records
// the first vote seen per (height, voter) and emits Evidence when a
// conflicting one arrives. What to do with the evidence (slashing, reporting)
// belongs to the surrounding chain, not this core.
package evidence

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phichain/phiconsensus/types"
)

// Errors
var (
	ErrDuplicateEvidence = errors.New("duplicate evidence")
)

// MaxSeenVotes bounds memory for equivocation detection. With one vote per
// slice member per height this allows thousands of undecided heights before
// the oldest entries are purged by the owner.
const MaxSeenVotes = 100000

// Evidence is a proven equivocation: two verified votes from the same voter
// for different blocks at the same height.
type Evidence struct {
	Height     uint64
	Voter      string
	FirstHash  types.Hash
	SecondHash types.Hash
	FirstSig   types.Signature
	SecondSig  types.Signature
	Time       time.Time
}

type voteKey struct {
	height uint64
	voter  string
}

type seenVote struct {
	headerHash types.Hash
	sig        types.Signature
}

// Pool collects seen votes and pending evidence.
type Pool struct {
	mu sync.RWMutex

	// First verified vote per height/voter.
	seen map[voteKey]seenVote

	// Equivocations awaiting pickup by the chain layer.
	pending []*Evidence

	// Pairs already reported, to avoid duplicate evidence for the same
	// (height, voter).
	reported map[voteKey]struct{}
}

// NewPool creates an empty evidence pool.
func NewPool() *Pool {
	return &Pool{
		seen:     make(map[voteKey]seenVote),
		reported: make(map[voteKey]struct{}),
	}
}

// Record notes a verified vote. It returns non-nil Evidence the first time a
// conflicting vote (same height and voter, different header hash) is seen,
// and ErrDuplicateEvidence for further conflicts of an already-reported pair.
// Re-recording the same vote is a no-op.
func (p *Pool) Record(height uint64, voter string, headerHash types.Hash, sig types.Signature) (*Evidence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := voteKey{height: height, voter: voter}
	prev, ok := p.seen[key]
	if !ok {
		if len(p.seen) < MaxSeenVotes {
			p.seen[key] = seenVote{headerHash: headerHash, sig: sig.Copy()}
		}
		return nil, nil
	}
	if prev.headerHash == headerHash {
		return nil, nil
	}

	if _, dup := p.reported[key]; dup {
		return nil, fmt.Errorf("%w: %s at height %d", ErrDuplicateEvidence, voter, height)
	}
	p.reported[key] = struct{}{}

	ev := &Evidence{
		Height:     height,
		Voter:      voter,
		FirstHash:  prev.headerHash,
		SecondHash: headerHash,
		FirstSig:   prev.sig.Copy(),
		SecondSig:  sig.Copy(),
		Time:       time.Now(),
	}
	p.pending = append(p.pending, ev)
	return ev, nil
}

// Pending returns copies of all unconsumed evidence.
func (p *Pool) Pending() []*Evidence {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Evidence, len(p.pending))
	for i, ev := range p.pending {
		cp := *ev
		cp.FirstSig = ev.FirstSig.Copy()
		cp.SecondSig = ev.SecondSig.Copy()
		out[i] = &cp
	}
	return out
}

// Purge drops seen votes and pending evidence below the given height. The
// owner calls this as heights are decided and pruned.
func (p *Pool) Purge(belowHeight uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key := range p.seen {
		if key.height < belowHeight {
			delete(p.seen, key)
			delete(p.reported, key)
		}
	}

	kept := p.pending[:0]
	for _, ev := range p.pending {
		if ev.Height >= belowHeight {
			kept = append(kept, ev)
		}
	}
	p.pending = kept
}

// Size returns the number of tracked votes.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.seen)
}
