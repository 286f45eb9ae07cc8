package integration

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/phichain/phiconsensus/archive"
	"github.com/phichain/phiconsensus/engine"
	"github.com/phichain/phiconsensus/privval"
	"github.com/phichain/phiconsensus/registry"
)

// cluster is a full in-process validator set sharing one engine, the way a
// single node sees the network.
type cluster struct {
	reg       *registry.Registry
	engine    *engine.Engine
	signers   map[string]*privval.MemPV
	addresses []string
	chainID   string
}

func newCluster(t *testing.T, size int, cfg *engine.Config) *cluster {
	t.Helper()

	if cfg == nil {
		cfg = engine.DefaultConfig()
	}

	reg := registry.New(registry.DefaultConfig(), nil)
	keyring := privval.NewKeyRing()
	signers := make(map[string]*privval.MemPV, size)

	addresses := make([]string, size)
	for i := range addresses {
		addresses[i] = fmt.Sprintf("val-%d", i)
	}

	// Fibonacci-flavored stake ladder; each validator's slice is everyone else.
	stake := int64(1000000)
	prev := int64(618033)
	for _, addr := range addresses {
		slice := make([]string, 0, size-1)
		for _, other := range addresses {
			if other != addr {
				slice = append(slice, other)
			}
		}
		_, err := reg.Register(addr, stake, slice)
		require.NoError(t, err)
		stake, prev = stake+prev, stake

		pv, err := privval.GenerateMemPV(addr)
		require.NoError(t, err)
		keyring.Add(addr, pv.PubKey())
		signers[addr] = pv
	}

	eng, err := engine.NewEngine(cfg, reg, keyring, nil)
	require.NoError(t, err)

	return &cluster{
		reg:       reg,
		engine:    eng,
		signers:   signers,
		addresses: addresses,
		chainID:   cfg.ChainID,
	}
}

// runRound drives one height through proposal, validation and voting, leaving
// out any voters listed in absent.
func (c *cluster) runRound(t *testing.T, height uint64, absent ...string) engine.FinalityState {
	t.Helper()

	leader, err := c.engine.SelectLeader(height)
	require.NoError(t, err)

	header := []byte(fmt.Sprintf("header-%d", height))
	block, err := c.engine.BuildBlock(height, leader.Address, header)
	require.NoError(t, err)
	require.NoError(t, c.engine.ValidateBlock(block, height))

	skip := make(map[string]bool, len(absent))
	for _, a := range absent {
		skip[a] = true
	}

	state := engine.StateCollecting
	for _, voter := range leader.QuorumSlice {
		if skip[voter] {
			continue
		}
		sig, err := c.signers[voter].SignVote(c.chainID, height, block.HeaderHash())
		require.NoError(t, err)
		state, err = c.engine.RecordVote(height, voter, sig)
		require.NoError(t, err)
	}
	return state
}

func TestConsensusRounds(t *testing.T) {
	c := newCluster(t, 5, nil)
	arch := archive.NopArchiver{}
	c.engine.SetArchiver(arch)

	for height := uint64(1); height <= 30; height++ {
		state := c.runRound(t, height)
		require.Equal(t, engine.StateFinalized, state, "height %d", height)

		payouts, err := c.engine.CalculateRewards(height, uint256.NewInt(1000000))
		require.NoError(t, err)

		total := new(uint256.Int)
		for _, amount := range payouts {
			total.Add(total, amount)
		}
		require.Equal(t, uint256.NewInt(1000000), total, "height %d", height)
	}

	rep := c.engine.Report()
	require.Equal(t, uint64(30), rep.Finalized)
	require.Zero(t, rep.TimedOut)
	require.InDelta(t, 1.0, rep.AvgPerformance, 1e-9)
	require.Zero(t, rep.PendingEvidence)
}

func TestLeaderRotationCoversValidators(t *testing.T) {
	c := newCluster(t, 5, nil)

	schedule, err := c.engine.RotationSchedule(1, 50)
	require.NoError(t, err)

	leaders := make(map[string]int)
	for _, addr := range schedule {
		leaders[addr]++
	}
	// F(h) mod 5 walks its Pisano cycle, so rotation touches several
	// validators rather than pinning one.
	require.GreaterOrEqual(t, len(leaders), 3)
}

func TestTimeoutThenRetry(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.FinalityTimeout = 50 * time.Millisecond
	c := newCluster(t, 3, cfg)

	require.NoError(t, c.engine.Start())
	defer func() { _ = c.engine.Stop() }()

	// One slice member never votes; the height must time out.
	leader, err := c.engine.SelectLeader(1)
	require.NoError(t, err)
	state := c.runRound(t, 1, leader.QuorumSlice[0])
	require.Equal(t, engine.StateCollecting, state)

	require.Eventually(t, func() bool {
		return c.engine.FinalityStatus(1) == engine.StateTimedOut
	}, 2*time.Second, 10*time.Millisecond)

	// The chain-progression layer retries the work at a later height.
	state = c.runRound(t, 2)
	require.Equal(t, engine.StateFinalized, state)

	rep := c.engine.Report()
	require.Equal(t, uint64(1), rep.Finalized)
	require.Equal(t, uint64(1), rep.TimedOut)
}

func TestDecisionsSurviveArchiveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	c := newCluster(t, 4, nil)
	fa, err := archive.NewFileArchiver(path)
	require.NoError(t, err)
	c.engine.SetArchiver(fa)

	for height := uint64(1); height <= 10; height++ {
		require.Equal(t, engine.StateFinalized, c.runRound(t, height))
	}
	require.NoError(t, fa.Close())

	recs, err := archive.ReadAll(path)
	require.NoError(t, err)
	require.Len(t, recs, 10)
	for i, rec := range recs {
		require.Equal(t, uint64(i+1), rec.Height)
		require.Equal(t, archive.DecisionFinalized, rec.Decision)
		require.Len(t, rec.Votes, 3)
	}
}

func TestMisbehavingProposerLosesEligibility(t *testing.T) {
	c := newCluster(t, 3, nil)

	leader, err := c.engine.SelectLeader(7)
	require.NoError(t, err)

	// The leader keeps proposing blocks with a bogus Fibonacci proof; each
	// rejection erodes its score. After eight failures (0.8^8 < 0.2) the
	// selection walk passes it over.
	for i := 0; i < 8; i++ {
		block, err := c.engine.BuildBlock(7, leader.Address, []byte("header"))
		require.NoError(t, err)
		block.Proof.EntryIndex++
		require.ErrorIs(t, c.engine.ValidateBlock(block, 7), engine.ErrBadFibProof)
	}

	replacement, err := c.engine.SelectLeader(7)
	require.NoError(t, err)
	require.NotEqual(t, leader.Address, replacement.Address)
}
