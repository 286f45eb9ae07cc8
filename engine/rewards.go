package engine

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/holiman/uint256"
)

// CalculateRewards splits a reward pool across the active validators by
// priority rank at the given height.
//
// Rank i (1-based, priority descending, ties broken by lower entry index)
// receives the proportion F(i+1) / Σ F(j+1) of the pool. Division is exact
// integer arithmetic; whatever remainder rounding leaves goes to rank 1, so
// the payouts always sum to the pool exactly.
func (e *Engine) CalculateRewards(height uint64, pool *uint256.Int) (map[string]*uint256.Int, error) {
	if pool == nil || pool.IsZero() {
		return nil, ErrEmptyPool
	}

	active := e.registry.ActiveValidators()
	if len(active) == 0 {
		return nil, ErrNoActiveValidators
	}

	type ranked struct {
		address    string
		entryIndex uint64
		priority   float64
	}
	ranks := make([]ranked, 0, len(active))
	for _, v := range active {
		score, err := e.PriorityScore(v.Address, height)
		if err != nil {
			return nil, fmt.Errorf("priority for %s: %w", v.Address, err)
		}
		ranks = append(ranks, ranked{address: v.Address, entryIndex: v.EntryIndex, priority: score})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].priority != ranks[j].priority {
			return ranks[i].priority > ranks[j].priority
		}
		return ranks[i].entryIndex < ranks[j].entryIndex
	})

	// Share weights F(i+1) for i = 1..N and their sum, exact.
	weights := make([]*big.Int, len(ranks))
	total := new(big.Int)
	for i := range ranks {
		w, err := e.fib.Fib(uint64(i) + 2)
		if err != nil {
			return nil, fmt.Errorf("share weight for rank %d: %w", i+1, err)
		}
		weights[i] = w
		total.Add(total, w)
	}

	poolBig := pool.ToBig()
	out := make(map[string]*uint256.Int, len(ranks))
	distributed := new(big.Int)
	for i, r := range ranks {
		share := new(big.Int).Mul(poolBig, weights[i])
		share.Quo(share, total)
		distributed.Add(distributed, share)

		payout, overflow := uint256.FromBig(share)
		if overflow {
			return nil, fmt.Errorf("payout for %s overflows", r.address)
		}
		out[r.address] = payout
	}

	// Rounding remainder goes to rank 1.
	remainder := new(big.Int).Sub(poolBig, distributed)
	if remainder.Sign() > 0 {
		rem, overflow := uint256.FromBig(remainder)
		if overflow {
			return nil, fmt.Errorf("remainder overflows")
		}
		out[ranks[0].address] = new(uint256.Int).Add(out[ranks[0].address], rem)
	}
	return out, nil
}
