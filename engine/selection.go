package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/phichain/phiconsensus/phimath"
	"github.com/phichain/phiconsensus/registry"
)

// SelectLeader returns the validator expected to propose the block at the
// given height.
//
// The raw candidate is active validator number F(height) mod N, counting in
// entry-index order over the N currently active validators. If the candidate's
// performance score is below the eligibility floor, selection walks forward
// circularly to the next eligible validator. Deterministic for a fixed
// registry state: every honest node picks the same leader.
func (e *Engine) SelectLeader(height uint64) (*registry.Validator, error) {
	if height > e.config.MaxFibIndex {
		return nil, fmt.Errorf("%w: height %d (max %d)", ErrHeightOutOfRange, height, e.config.MaxFibIndex)
	}

	active := e.registry.ActiveValidators()
	if len(active) == 0 {
		return nil, ErrNoActiveValidators
	}

	raw := int(phimath.FibMod(height, uint64(len(active))))
	for i := 0; i < len(active); i++ {
		candidate := active[(raw+i)%len(active)]
		if candidate.PerformanceScore >= e.config.MinEligiblePerformance {
			if i > 0 {
				e.log.Debug("leader selection skipped low performers",
					zap.Uint64("height", height),
					zap.Int("skipped", i),
					zap.String("leader", candidate.Address))
			}
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("%w: height %d, %d active", ErrNoEligibleLeader, height, len(active))
}

// RotationSchedule returns the expected leaders for count consecutive heights
// starting at from, under the current registry state. Diagnostic: the actual
// leader at a future height depends on the registry state then.
func (e *Engine) RotationSchedule(from uint64, count int) ([]string, error) {
	out := make([]string, 0, count)
	for h := from; h < from+uint64(count); h++ {
		leader, err := e.SelectLeader(h)
		if err != nil {
			return nil, fmt.Errorf("height %d: %w", h, err)
		}
		out = append(out, leader.Address)
	}
	return out, nil
}

// modFactor is the height-dependent multiplier applied to priority scores:
// 1 + (F(height mod 100) mod 10)/10, always in [1.0, 1.9].
func modFactor(height uint64) float64 {
	return 1.0 + float64(phimath.FibMod(height%100, 10))/10.0
}

// PriorityScore computes a validator's reward-rank priority at a height:
// stake x φ-weight x performance x the height modulation factor.
func (e *Engine) PriorityScore(address string, height uint64) (float64, error) {
	v, err := e.registry.Validator(address)
	if err != nil {
		return 0, err
	}

	e.mu.RLock()
	ledger := e.stakes
	e.mu.RUnlock()

	stake, err := ledger.Stake(address)
	if err != nil {
		return 0, fmt.Errorf("stake lookup for %s: %w", address, err)
	}
	return float64(stake) * v.Weight * v.PerformanceScore * modFactor(height), nil
}
