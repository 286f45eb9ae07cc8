package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/phichain/phiconsensus/phimath"
)

// Config holds configuration for the consensus engine.
type Config struct {
	// ChainID identifies the chain; it is mixed into every vote's sign
	// bytes so votes cannot be replayed across networks.
	ChainID string

	// MinEligiblePerformance is the performance-score floor below which a
	// validator is skipped during leader selection.
	MinEligiblePerformance float64

	// PhiDecimals is the precision at which φ is rendered into the
	// integrity-hash preimage. Every validator must agree on this.
	PhiDecimals int

	// MaxFibIndex bounds the Fibonacci indices (and therefore block
	// heights) the engine will evaluate.
	MaxFibIndex uint64

	// FinalityTimeout is how long a height may sit in Collecting before it
	// transitions to TimedOut.
	FinalityTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		ChainID:                "phi-mainnet-1",
		MinEligiblePerformance: 0.2,
		PhiDecimals:            phimath.DefaultPhiDecimals,
		MaxFibIndex:            phimath.DefaultMaxIndex,
		FinalityTimeout:        10 * time.Second,
	}
}

// ValidateBasic performs basic validation of the config.
func (cfg *Config) ValidateBasic() error {
	if cfg.ChainID == "" {
		return errors.New("chain ID must not be empty")
	}
	if cfg.MinEligiblePerformance < 0 || cfg.MinEligiblePerformance > 1 {
		return fmt.Errorf("min eligible performance must be in [0,1], got %v", cfg.MinEligiblePerformance)
	}
	if cfg.PhiDecimals <= 0 {
		return fmt.Errorf("phi decimals must be positive, got %d", cfg.PhiDecimals)
	}
	if cfg.MaxFibIndex < phimath.MinMaxIndex {
		return fmt.Errorf("max fibonacci index must be at least %d, got %d", phimath.MinMaxIndex, cfg.MaxFibIndex)
	}
	if cfg.FinalityTimeout <= 0 {
		return fmt.Errorf("finality timeout must be positive, got %v", cfg.FinalityTimeout)
	}
	return nil
}
