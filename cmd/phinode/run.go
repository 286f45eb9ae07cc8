package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phichain/phiconsensus/archive"
	"github.com/phichain/phiconsensus/engine"
	"github.com/phichain/phiconsensus/privval"
	"github.com/phichain/phiconsensus/registry"
)

// roundRewardPool is the pool apportioned after each finalized round.
const roundRewardPool = 1000000

// prunedHeightLag is how many decided heights are kept before pruning.
const prunedHeightLag = 100

// node bundles everything the round loop drives.
type node struct {
	cfg       *NodeConfig
	log       *zap.Logger
	reg       *registry.Registry
	engine    *engine.Engine
	signers   map[string]*privval.MemPV
	addresses []string
	archiver  archive.Archiver
	promReg   *prometheus.Registry
}

// buildNode bootstraps the genesis validator set, one in-memory signer per
// validator, and the engine over them. Each validator's quorum slice is the
// rest of the set, so finality needs every peer's vote.
func buildNode(cfg *NodeConfig, log *zap.Logger) (*node, error) {
	reg := registry.New(registry.DefaultConfig(), log)
	keyring := privval.NewKeyRing()
	signers := make(map[string]*privval.MemPV, len(cfg.Genesis))
	addresses := make([]string, 0, len(cfg.Genesis))
	for _, gv := range cfg.Genesis {
		addresses = append(addresses, gv.Address)
	}

	for _, gv := range cfg.Genesis {
		slice := make([]string, 0, len(addresses)-1)
		for _, addr := range addresses {
			if addr != gv.Address {
				slice = append(slice, addr)
			}
		}
		if _, err := reg.Register(gv.Address, gv.Stake, slice); err != nil {
			return nil, fmt.Errorf("registering %s: %w", gv.Address, err)
		}

		pv, err := privval.GenerateMemPV(gv.Address)
		if err != nil {
			return nil, fmt.Errorf("generating key for %s: %w", gv.Address, err)
		}
		keyring.Add(gv.Address, pv.PubKey())
		signers[gv.Address] = pv
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	eng, err := engine.NewEngine(engineCfg, reg, keyring, log)
	if err != nil {
		return nil, err
	}

	var archiver archive.Archiver = archive.NopArchiver{}
	if cfg.ArchivePath != "" {
		fa, err := archive.NewFileArchiver(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		fa.Sync = true
		archiver = fa
	}
	eng.SetArchiver(archiver)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng.RegisterMetrics(promReg)

	return &node{
		cfg:       cfg,
		log:       log,
		reg:       reg,
		engine:    eng,
		signers:   signers,
		addresses: addresses,
		archiver:  archiver,
		promReg:   promReg,
	}, nil
}

// runNode runs the round loop (and the metrics endpoint, if configured) until
// the context is canceled or the requested number of rounds has run.
func runNode(parent context.Context, cfg *NodeConfig, log *zap.Logger, rounds uint64) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := buildNode(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.archiver.Close(); err != nil {
			log.Warn("closing archive", zap.Error(err))
		}
	}()

	if err := n.engine.Start(); err != nil {
		return err
	}
	defer func() { _ = n.engine.Stop() }()

	interval, err := cfg.roundInterval()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr: cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(n.promReg,
				promhttp.HandlerOpts{Registry: n.promReg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return n.roundLoop(ctx, interval, rounds)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// roundLoop drives one consensus round per tick: select, propose, validate,
// vote to finality, reward.
func (n *node) roundLoop(ctx context.Context, interval time.Duration, rounds uint64) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	height := n.cfg.StartHeight
	var done uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := n.runRound(height); err != nil {
			n.log.Error("round failed", zap.Uint64("height", height), zap.Error(err))
		}
		if height > prunedHeightLag {
			n.engine.Prune(height - prunedHeightLag)
		}

		height++
		done++
		if rounds > 0 && done >= rounds {
			n.logReport()
			return nil
		}
		if done%60 == 0 {
			n.logReport()
		}
	}
}

func (n *node) runRound(height uint64) error {
	leader, err := n.engine.SelectLeader(height)
	if err != nil {
		return err
	}

	header := []byte(fmt.Sprintf(`{"height":%d,"proposer":"%s","time":"%s"}`,
		height, leader.Address, time.Now().UTC().Format(time.RFC3339Nano)))
	block, err := n.engine.BuildBlock(height, leader.Address, header)
	if err != nil {
		return err
	}
	if err := n.engine.ValidateBlock(block, height); err != nil {
		return err
	}

	headerHash := block.HeaderHash()
	state := engine.StateCollecting
	for _, voter := range leader.QuorumSlice {
		sig, err := n.signers[voter].SignVote(n.cfg.ChainID, height, headerHash)
		if err != nil {
			return fmt.Errorf("vote by %s: %w", voter, err)
		}
		state, err = n.engine.RecordVote(height, voter, sig)
		if err != nil {
			return fmt.Errorf("recording vote by %s: %w", voter, err)
		}
	}
	if state != engine.StateFinalized {
		return fmt.Errorf("height %d did not finalize: %s", height, state)
	}

	payouts, err := n.engine.CalculateRewards(height, uint256.NewInt(roundRewardPool))
	if err != nil {
		return err
	}
	n.log.Info("round finalized",
		zap.Uint64("height", height),
		zap.String("leader", leader.Address),
		zap.Int("payouts", len(payouts)))
	return nil
}

func (n *node) logReport() {
	rep := n.engine.Report()
	n.log.Info("engine report",
		zap.Int("validators", rep.Validators),
		zap.Int("active", rep.ActiveCount),
		zap.Int64("total_stake", rep.TotalStake),
		zap.Float64("avg_performance", rep.AvgPerformance),
		zap.Uint64("finalized", rep.Finalized),
		zap.Uint64("timed_out", rep.TimedOut),
		zap.Int("pending_evidence", rep.PendingEvidence))
}
