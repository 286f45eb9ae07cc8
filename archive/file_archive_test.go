package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phichain/phiconsensus/types"
)

func testRecord(height uint64, decision string) *Record {
	return &Record{
		Height:     height,
		Decision:   decision,
		Leader:     "alice",
		HeaderHash: types.HashBytes([]byte("header")).String(),
		Votes: []types.QuorumVote{
			{Height: height, Voter: "bob", Signature: []byte("sig-b")},
			{Height: height, Voter: "carol", Signature: []byte("sig-c")},
		},
		Time: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestFileArchiverRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	a, err := NewFileArchiver(path)
	require.NoError(t, err)
	a.Sync = true

	require.NoError(t, a.Archive(testRecord(1, DecisionFinalized)))
	require.NoError(t, a.Archive(testRecord(2, DecisionTimedOut)))
	require.NoError(t, a.Close())

	recs, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, uint64(1), recs[0].Height)
	require.Equal(t, DecisionFinalized, recs[0].Decision)
	require.Equal(t, DecisionTimedOut, recs[1].Decision)
	require.Len(t, recs[0].Votes, 2)
	require.Equal(t, "bob", recs[0].Votes[0].Voter)
}

func TestFileArchiverAppendsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	a, err := NewFileArchiver(path)
	require.NoError(t, err)
	require.NoError(t, a.Archive(testRecord(1, DecisionFinalized)))
	require.NoError(t, a.Close())

	a, err = NewFileArchiver(path)
	require.NoError(t, err)
	require.NoError(t, a.Archive(testRecord(2, DecisionFinalized)))
	require.NoError(t, a.Close())

	recs, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestFileArchiverClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	a, err := NewFileArchiver(path)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close()) // idempotent

	require.ErrorIs(t, a.Archive(testRecord(1, DecisionFinalized)), ErrClosed)
}

func TestReadAllDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	a, err := NewFileArchiver(path)
	require.NoError(t, err)
	require.NoError(t, a.Archive(testRecord(1, DecisionFinalized)))
	require.NoError(t, a.Close())

	// Flip a byte in the JSON payload; the checksum must catch it.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0600))

	recs, err := ReadAll(path)
	require.ErrorIs(t, err, ErrCorrupted)
	require.Empty(t, recs)
}

func TestReadAllStopsAtTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.log")

	a, err := NewFileArchiver(path)
	require.NoError(t, err)
	require.NoError(t, a.Archive(testRecord(1, DecisionFinalized)))
	require.NoError(t, a.Archive(testRecord(2, DecisionFinalized)))
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-5], 0600))

	recs, err := ReadAll(path)
	require.ErrorIs(t, err, ErrCorrupted)
	require.Len(t, recs, 1)
}

func TestNopArchiver(t *testing.T) {
	var a NopArchiver
	require.NoError(t, a.Archive(testRecord(1, DecisionFinalized)))
	require.NoError(t, a.Close())
}
