package privval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phichain/phiconsensus/types"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pv, err := GenerateMemPV("alice")
	require.NoError(t, err)
	require.Equal(t, "alice", pv.Address())

	headerHash := types.HashBytes([]byte("block"))
	sig, err := pv.SignVote("phi-test-1", 3, headerHash)
	require.NoError(t, err)

	kr := NewKeyRing()
	kr.Add("alice", pv.PubKey())

	msg := types.VoteSignBytes("phi-test-1", 3, headerHash)
	require.True(t, kr.Verify("alice", msg, sig))
	require.False(t, kr.Verify("bob", msg, sig))
	require.False(t, kr.Verify("alice", msg[1:], sig))
}

func TestSignVoteIdempotent(t *testing.T) {
	pv, err := GenerateMemPV("alice")
	require.NoError(t, err)

	headerHash := types.HashBytes([]byte("block"))
	sig1, err := pv.SignVote("phi-test-1", 3, headerHash)
	require.NoError(t, err)
	sig2, err := pv.SignVote("phi-test-1", 3, headerHash)
	require.NoError(t, err)
	require.True(t, sig1.Equal(sig2))
}

func TestDoubleSignRefused(t *testing.T) {
	pv, err := GenerateMemPV("alice")
	require.NoError(t, err)

	_, err = pv.SignVote("phi-test-1", 3, types.HashBytes([]byte("block-a")))
	require.NoError(t, err)

	_, err = pv.SignVote("phi-test-1", 3, types.HashBytes([]byte("block-b")))
	require.ErrorIs(t, err, ErrDoubleSign)
}

func TestHeightRegressionRefused(t *testing.T) {
	pv, err := GenerateMemPV("alice")
	require.NoError(t, err)

	_, err = pv.SignVote("phi-test-1", 5, types.HashBytes([]byte("block")))
	require.NoError(t, err)

	_, err = pv.SignVote("phi-test-1", 4, types.HashBytes([]byte("earlier")))
	require.ErrorIs(t, err, ErrHeightRegression)

	// Moving forward is fine.
	_, err = pv.SignVote("phi-test-1", 6, types.HashBytes([]byte("later")))
	require.NoError(t, err)
}

func TestKeyRingRemove(t *testing.T) {
	pv, err := GenerateMemPV("alice")
	require.NoError(t, err)

	kr := NewKeyRing()
	kr.Add("alice", pv.PubKey())
	kr.Remove("alice")

	headerHash := types.HashBytes([]byte("block"))
	sig, err := pv.SignVote("phi-test-1", 1, headerHash)
	require.NoError(t, err)
	require.False(t, kr.Verify("alice", types.VoteSignBytes("phi-test-1", 1, headerHash), sig))
}
