package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phichain/phiconsensus/phimath"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(DefaultConfig(), nil)
}

func TestRegisterAssignsContiguousEntryIndexes(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 10; i++ {
		v, err := r.Register(fmt.Sprintf("val-%d", i), int64(100*i), nil)
		require.NoError(t, err)
		require.Equal(t, uint64(i), v.EntryIndex)
		require.InDelta(t, phimath.Weight(uint64(i)), v.Weight, 1e-12)
		require.Equal(t, 1.0, v.PerformanceScore)
		require.True(t, v.Active)
	}

	// Deactivation must not free an index for reuse.
	require.NoError(t, r.Deactivate("val-3"))
	v, err := r.Register("val-10", 0, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(10), v.EntryIndex)
}

func TestRegisterRejectsDuplicatesAndBadStake(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register("alice", 100, nil)
	require.NoError(t, err)

	_, err = r.Register("alice", 50, nil)
	require.ErrorIs(t, err, ErrDuplicateAddress)

	_, err = r.Register("bob", -1, nil)
	require.ErrorIs(t, err, ErrInvalidStake)

	_, err = r.Register("", 1, nil)
	require.ErrorIs(t, err, ErrEmptyAddress)

	// Failed registrations must not consume entry indexes.
	v, err := r.Register("carol", 25, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v.EntryIndex)
}

func TestActivationToggles(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("alice", 100, nil)
	require.NoError(t, err)

	require.ErrorIs(t, r.Deactivate("ghost"), ErrUnknownValidator)
	require.ErrorIs(t, r.Reactivate("ghost"), ErrUnknownValidator)

	require.NoError(t, r.Deactivate("alice"))
	require.Empty(t, r.ActiveValidators())

	require.NoError(t, r.Reactivate("alice"))
	require.Len(t, r.ActiveValidators(), 1)
}

func TestRecordOutcomeEMA(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("alice", 100, nil)
	require.NoError(t, err)

	// One failure from a perfect score: 1.0 - 0.2*1.0 = 0.8.
	require.NoError(t, r.RecordOutcome("alice", false))
	score, err := r.PerformanceScore("alice")
	require.NoError(t, err)
	require.InDelta(t, 0.8, score, 1e-12)

	// Recovery: 0.8 + 0.1*(1-0.8) = 0.82.
	require.NoError(t, r.RecordOutcome("alice", true))
	score, err = r.PerformanceScore("alice")
	require.NoError(t, err)
	require.InDelta(t, 0.82, score, 1e-12)

	require.ErrorIs(t, r.RecordOutcome("ghost", true), ErrUnknownValidator)
}

func TestPerformanceScoreStaysBounded(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("alice", 100, nil)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.NoError(t, r.RecordOutcome("alice", false))
		score, err := r.PerformanceScore("alice")
		require.NoError(t, err)
		require.GreaterOrEqual(t, score, 0.0)
	}

	for i := 0; i < 1000; i++ {
		require.NoError(t, r.RecordOutcome("alice", true))
		score, err := r.PerformanceScore("alice")
		require.NoError(t, err)
		require.LessOrEqual(t, score, 1.0)
	}
}

func TestActiveValidatorsOrderingStable(t *testing.T) {
	r := newTestRegistry(t)
	for _, addr := range []string{"c", "a", "b"} {
		_, err := r.Register(addr, 10, nil)
		require.NoError(t, err)
	}
	require.NoError(t, r.Deactivate("a"))

	actives := r.ActiveValidators()
	require.Len(t, actives, 2)
	require.Equal(t, "c", actives[0].Address)
	require.Equal(t, "b", actives[1].Address)

	// Stable across calls for a fixed state.
	again := r.ActiveValidators()
	for i := range actives {
		require.Equal(t, actives[i].Address, again[i].Address)
	}
}

func TestReturnedValidatorsAreCopies(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("alice", 100, []string{"bob"})
	require.NoError(t, err)

	v, err := r.Validator("alice")
	require.NoError(t, err)
	v.PerformanceScore = 0
	v.QuorumSlice[0] = "mallory"

	fresh, err := r.Validator("alice")
	require.NoError(t, err)
	require.Equal(t, 1.0, fresh.PerformanceScore)
	require.Equal(t, []string{"bob"}, fresh.QuorumSlice)
}

func TestStakeLedgerSurface(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("alice", 100, nil)
	require.NoError(t, err)

	stake, err := r.Stake("alice")
	require.NoError(t, err)
	require.Equal(t, int64(100), stake)

	require.ErrorIs(t, r.SetStake("alice", -5), ErrInvalidStake)
	require.NoError(t, r.SetStake("alice", 250))

	stake, err = r.Stake("alice")
	require.NoError(t, err)
	require.Equal(t, int64(250), stake)

	_, err = r.Stake("ghost")
	require.ErrorIs(t, err, ErrUnknownValidator)
}

func TestSetQuorumSlice(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register("alice", 100, []string{"bob"})
	require.NoError(t, err)

	require.NoError(t, r.SetQuorumSlice("alice", []string{"bob", "carol"}))
	v, err := r.Validator("alice")
	require.NoError(t, err)
	require.True(t, v.InSlice("carol"))
	require.False(t, v.InSlice("alice"))

	require.ErrorIs(t, r.SetQuorumSlice("ghost", nil), ErrUnknownValidator)
}
