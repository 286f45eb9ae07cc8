package main

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/phichain/phiconsensus/engine"
	"github.com/phichain/phiconsensus/phimath"
)

// GenesisValidator is one entry of the bootstrap validator set.
type GenesisValidator struct {
	Address string
	Stake   int64
}

// NodeConfig is the TOML-backed configuration of the demo node.
type NodeConfig struct {
	ChainID                string
	MinEligiblePerformance float64
	PhiDecimals            int
	MaxFibIndex            uint64

	// Durations as strings ("10s", "500ms"), parsed on load.
	FinalityTimeout string
	RoundInterval   string

	// ArchivePath enables the file archiver when non-empty.
	ArchivePath string

	// MetricsAddr enables the Prometheus endpoint when non-empty.
	MetricsAddr string

	// StartHeight is the first round's block height.
	StartHeight uint64

	Genesis []GenesisValidator
}

// genesisStakes is the bootstrap stake ladder: each validator's stake is the
// previous two summed, echoing the Fibonacci growth the chain is built on.
var genesisStakes = []int64{1000000, 1618033, 2618033, 4236066, 6854099, 11090165}

// DefaultNodeConfig returns the demo defaults: six validators whose quorum
// slices are the full set minus themselves.
func DefaultNodeConfig() *NodeConfig {
	cfg := &NodeConfig{
		ChainID:                "phi-local-1",
		MinEligiblePerformance: 0.2,
		PhiDecimals:            phimath.DefaultPhiDecimals,
		MaxFibIndex:            phimath.DefaultMaxIndex,
		FinalityTimeout:        "10s",
		RoundInterval:          "1s",
		MetricsAddr:            "127.0.0.1:9480",
		StartHeight:            1,
	}
	for i, stake := range genesisStakes {
		cfg.Genesis = append(cfg.Genesis, GenesisValidator{
			Address: fmt.Sprintf("validator-%d", i+1),
			Stake:   stake,
		})
	}
	return cfg
}

// LoadNodeConfig reads a TOML config file over the defaults.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	return cfg, nil
}

// EngineConfig translates the node config into an engine config.
func (cfg *NodeConfig) EngineConfig() (*engine.Config, error) {
	finality, err := time.ParseDuration(cfg.FinalityTimeout)
	if err != nil {
		return nil, fmt.Errorf("finality timeout: %w", err)
	}

	ec := &engine.Config{
		ChainID:                cfg.ChainID,
		MinEligiblePerformance: cfg.MinEligiblePerformance,
		PhiDecimals:            cfg.PhiDecimals,
		MaxFibIndex:            cfg.MaxFibIndex,
		FinalityTimeout:        finality,
	}
	if err := ec.ValidateBasic(); err != nil {
		return nil, err
	}
	return ec, nil
}

// roundInterval parses the configured pacing of the local round loop.
func (cfg *NodeConfig) roundInterval() (time.Duration, error) {
	d, err := time.ParseDuration(cfg.RoundInterval)
	if err != nil {
		return 0, fmt.Errorf("round interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("round interval must be positive, got %v", d)
	}
	return d, nil
}

// ValidateBasic checks the parts EngineConfig does not cover.
func (cfg *NodeConfig) ValidateBasic() error {
	if len(cfg.Genesis) == 0 {
		return fmt.Errorf("genesis validator set must not be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Genesis))
	for _, gv := range cfg.Genesis {
		if gv.Address == "" {
			return fmt.Errorf("genesis validator with empty address")
		}
		if gv.Stake < 0 {
			return fmt.Errorf("genesis validator %s has negative stake", gv.Address)
		}
		if _, dup := seen[gv.Address]; dup {
			return fmt.Errorf("genesis validator %s listed twice", gv.Address)
		}
		seen[gv.Address] = struct{}{}
	}
	if _, err := cfg.roundInterval(); err != nil {
		return err
	}
	return nil
}
