// Package registry owns the set of registered validators: registration order,
// φ-weights, performance scores, activation state and quorum slices.
//
// Entry indexes form a contiguous sequence starting at zero across all
// validators ever registered and are never reused; validators are deactivated
// rather than deleted so history stays attributable. The registry is the
// single mutation point for performance scores and doubles as the stake
// ledger unless an external one is wired into the engine.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/phichain/phiconsensus/phimath"
)

// Errors
var (
	ErrDuplicateAddress = errors.New("validator address already registered")
	ErrInvalidStake     = errors.New("invalid stake")
	ErrUnknownValidator = errors.New("unknown validator")
	ErrEmptyAddress     = errors.New("validator address is empty")
)

// Config holds the performance-update constants. Alpha rewards successes,
// Beta penalizes failures; both must lie in (0, 1]. Failures are penalized
// faster than successes reward.
type Config struct {
	Alpha float64
	Beta  float64
}

// DefaultConfig returns the default performance-update constants.
func DefaultConfig() Config {
	return Config{Alpha: 0.1, Beta: 0.2}
}

// ValidateBasic performs basic validation of the config.
func (cfg Config) ValidateBasic() error {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0,1], got %v", cfg.Alpha)
	}
	if cfg.Beta <= 0 || cfg.Beta > 1 {
		return fmt.Errorf("beta must be in (0,1], got %v", cfg.Beta)
	}
	return nil
}

// Validator is a registered consensus participant. EntryIndex and Weight are
// fixed at registration; Stake changes only through the staking surface;
// PerformanceScore changes only through RecordOutcome.
type Validator struct {
	Address          string
	EntryIndex       uint64
	Weight           float64
	Stake            int64
	PerformanceScore float64
	Active           bool
	QuorumSlice      []string
}

// InSlice reports whether addr is a member of this validator's quorum slice.
func (v *Validator) InSlice(addr string) bool {
	for _, m := range v.QuorumSlice {
		if m == addr {
			return true
		}
	}
	return false
}

// copyValidator returns an independent copy so callers cannot mutate
// registry-internal state.
func copyValidator(v *Validator) *Validator {
	out := &Validator{
		Address:          v.Address,
		EntryIndex:       v.EntryIndex,
		Weight:           v.Weight,
		Stake:            v.Stake,
		PerformanceScore: v.PerformanceScore,
		Active:           v.Active,
	}
	if v.QuorumSlice != nil {
		out.QuorumSlice = make([]string, len(v.QuorumSlice))
		copy(out.QuorumSlice, v.QuorumSlice)
	}
	return out
}

// Registry is the owned, mutex-guarded validator state passed explicitly to
// the engine. The entry-index counter is implicit in the order slice: the
// next index is always len(order), so two registrations can never be issued
// the same index.
type Registry struct {
	mu  sync.RWMutex
	cfg Config
	log *zap.Logger

	byAddress map[string]*Validator
	order     []*Validator // entry-index ascending, never reordered
}

// New creates an empty registry. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		cfg:       cfg,
		log:       log,
		byAddress: make(map[string]*Validator),
	}
}

// Register adds a validator, assigning the next entry index and the weight
// φ^entryIndex. The new validator starts active with a perfect performance
// score. The quorum slice is the set of peers whose unanimous votes finalize
// this validator's blocks; it may include the validator itself.
func (r *Registry) Register(address string, stake int64, quorumSlice []string) (*Validator, error) {
	if address == "" {
		return nil, ErrEmptyAddress
	}
	if stake < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStake, stake)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAddress[address]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, address)
	}

	entryIndex := uint64(len(r.order))
	v := &Validator{
		Address:          address,
		EntryIndex:       entryIndex,
		Weight:           phimath.Weight(entryIndex),
		Stake:            stake,
		PerformanceScore: 1.0,
		Active:           true,
	}
	if quorumSlice != nil {
		v.QuorumSlice = make([]string, len(quorumSlice))
		copy(v.QuorumSlice, quorumSlice)
	}

	r.byAddress[address] = v
	r.order = append(r.order, v)

	r.log.Info("validator registered",
		zap.String("address", address),
		zap.Uint64("entry_index", entryIndex),
		zap.Float64("weight", v.Weight),
		zap.Int64("stake", stake))

	return copyValidator(v), nil
}

// Deactivate removes a validator from selection eligibility without deleting
// it. Its entry index is never reissued.
func (r *Registry) Deactivate(address string) error {
	return r.setActive(address, false)
}

// Reactivate restores a validator's selection eligibility.
func (r *Registry) Reactivate(address string) error {
	return r.setActive(address, true)
}

func (r *Registry) setActive(address string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byAddress[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, address)
	}
	if v.Active != active {
		v.Active = active
		r.log.Info("validator activation changed",
			zap.String("address", address), zap.Bool("active", active))
	}
	return nil
}

// RecordOutcome applies the exponential-moving-average performance update.
// On success the score moves toward 1 by Alpha of the remaining headroom; on
// failure it shrinks by Beta. The score never leaves [0, 1].
func (r *Registry) RecordOutcome(address string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byAddress[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, address)
	}

	if success {
		v.PerformanceScore = min(1.0, v.PerformanceScore+r.cfg.Alpha*(1.0-v.PerformanceScore))
	} else {
		v.PerformanceScore = max(0.0, v.PerformanceScore-r.cfg.Beta*v.PerformanceScore)
	}

	r.log.Debug("performance updated",
		zap.String("address", address),
		zap.Bool("success", success),
		zap.Float64("score", v.PerformanceScore))
	return nil
}

// ActiveValidators returns copies of all active validators ordered by entry
// index ascending. This ordering is the canonical indexing basis for leader
// selection and reward rank and is stable for a fixed registry state.
func (r *Registry) ActiveValidators() []*Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Validator, 0, len(r.order))
	for _, v := range r.order {
		if v.Active {
			out = append(out, copyValidator(v))
		}
	}
	return out
}

// Validator returns a copy of the validator with the given address.
func (r *Registry) Validator(address string) (*Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byAddress[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownValidator, address)
	}
	return copyValidator(v), nil
}

// Has reports whether the address belongs to a registered validator,
// active or not.
func (r *Registry) Has(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAddress[address]
	return ok
}

// PerformanceScore returns the validator's current performance score.
func (r *Registry) PerformanceScore(address string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byAddress[address]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownValidator, address)
	}
	return v.PerformanceScore, nil
}

// Stake returns the validator's current stake. The registry satisfies the
// engine's stake-ledger collaborator with this method.
func (r *Registry) Stake(address string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byAddress[address]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownValidator, address)
	}
	return v.Stake, nil
}

// SetStake is the staking collaborator's mutation point (deposit/withdraw
// settle to an absolute amount). The consensus core itself never calls this.
func (r *Registry) SetStake(address string, stake int64) error {
	if stake < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidStake, stake)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byAddress[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, address)
	}
	v.Stake = stake
	return nil
}

// SetQuorumSlice replaces a validator's quorum slice. Only the validator's
// own request reaches this; enforcing that is the caller's concern (the core
// has no authentication surface).
func (r *Registry) SetQuorumSlice(address string, quorumSlice []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.byAddress[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValidator, address)
	}

	v.QuorumSlice = nil
	if quorumSlice != nil {
		v.QuorumSlice = make([]string, len(quorumSlice))
		copy(v.QuorumSlice, quorumSlice)
	}
	return nil
}

// Size returns the number of validators ever registered.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Addresses returns all registered addresses sorted lexicographically.
// Intended for reports and diagnostics, not consensus ordering.
func (r *Registry) Addresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byAddress))
	for addr := range r.byAddress {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
