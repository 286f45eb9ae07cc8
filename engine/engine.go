package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/phichain/phiconsensus/archive"
	"github.com/phichain/phiconsensus/evidence"
	"github.com/phichain/phiconsensus/phimath"
	"github.com/phichain/phiconsensus/registry"
	"github.com/phichain/phiconsensus/types"
)

// Hasher computes the digest used for block integrity hashes.
type Hasher interface {
	Hash(data []byte) types.Hash
}

// SignatureVerifier checks a vote signature against the voter's registered
// key. Implementations must return false rather than error or panic on
// unknown voters or malformed material.
type SignatureVerifier interface {
	Verify(address string, msg []byte, sig types.Signature) bool
}

// StakeLedger reports validator stake for priority scoring. The registry
// satisfies this itself; an external staking module may be wired in instead.
type StakeLedger interface {
	Stake(address string) (int64, error)
}

// sha256Hasher is the default Hasher.
type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) types.Hash { return types.HashBytes(data) }

// Engine is the Φ-consensus core: leader selection, block proof validation,
// reward calculation and quorum-slice finality over one validator registry.
//
// The engine owns no networking and no chain state. Blocks and votes arrive
// through method calls; decisions leave through return values, the archiver
// and the evidence pool.
type Engine struct {
	mu sync.RWMutex

	config     *Config
	log        *zap.Logger
	instanceID uuid.UUID

	registry  *registry.Registry
	fib       *phimath.FibCache
	phiDigits []byte

	hasher   Hasher
	verifier SignatureVerifier
	stakes   StakeLedger
	archiver archive.Archiver
	evpool   *evidence.Pool
	metrics  *Metrics

	// Undecided and recently decided heights.
	heights map[uint64]*heightTracker
	ticker  *TimeoutTicker

	finalizedCount uint64
	timedOutCount  uint64

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates an engine over the given registry. The verifier checks
// quorum vote signatures; pass nil only if RecordVote will never be used.
// A nil logger disables logging.
func NewEngine(cfg *Config, reg *registry.Registry, verifier SignatureVerifier, log *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if reg == nil {
		return nil, fmt.Errorf("registry must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		config:     cfg,
		log:        log,
		instanceID: uuid.New(),
		registry:   reg,
		fib:        phimath.NewFibCache(cfg.MaxFibIndex),
		phiDigits:  phimath.PhiBytes(cfg.PhiDecimals),
		hasher:     sha256Hasher{},
		verifier:   verifier,
		stakes:     reg,
		archiver:   archive.NopArchiver{},
		evpool:     evidence.NewPool(),
		metrics:    NewMetrics(nil),
		heights:    make(map[uint64]*heightTracker),
		ticker:     NewTimeoutTicker(),
	}, nil
}

// SetHasher replaces the integrity hasher. Call before Start.
func (e *Engine) SetHasher(h Hasher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasher = h
}

// SetStakeLedger replaces the stake source used for priority scoring.
// Call before Start.
func (e *Engine) SetStakeLedger(s StakeLedger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stakes = s
}

// SetArchiver replaces the decision archiver. Call before Start. The engine
// does not close the archiver; its owner does.
func (e *Engine) SetArchiver(a archive.Archiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.archiver = a
}

// SetEvidencePool replaces the equivocation pool. Call before Start.
func (e *Engine) SetEvidencePool(p *evidence.Pool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evpool = p
}

// RegisterMetrics registers the engine's Prometheus instruments on reg.
// Call before Start.
func (e *Engine) RegisterMetrics(reg prometheus.Registerer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = NewMetrics(reg)
}

// InstanceID identifies this engine instance in logs and reports.
func (e *Engine) InstanceID() string {
	return e.instanceID.String()
}

// EvidencePool exposes the equivocation pool for the chain layer to drain.
func (e *Engine) EvidencePool() *evidence.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.evpool
}

// Registry returns the validator registry the engine operates over.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Start launches the finality-timeout routine.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.ticker.Start()

	e.wg.Add(1)
	go e.timeoutRoutine()

	e.log.Info("engine started",
		zap.String("instance_id", e.instanceID.String()),
		zap.String("chain_id", e.config.ChainID))
	return nil
}

// Stop halts the timeout routine and waits for it to exit. Undecided heights
// stay Collecting; they will never time out after Stop.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.started = false
	e.cancel()
	e.ticker.Stop()
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info("engine stopped", zap.String("instance_id", e.instanceID.String()))
	return nil
}

func (e *Engine) timeoutRoutine() {
	defer e.wg.Done()

	for {
		select {
		case ti := <-e.ticker.Chan():
			e.onFinalityTimeout(ti.Height)
		case <-e.ctx.Done():
			return
		}
	}
}
