// Package archive persists finality decisions for external consumers.
//
// The consensus core holds votes only while a height is undecided; once a
// height finalizes or times out, the decision record (and its votes) is handed
// to an Archiver and released. FileArchiver appends crc32-framed JSON records
// to a single append-only file; NopArchiver discards everything.
package archive

import (
	"errors"
	"time"

	"github.com/phichain/phiconsensus/types"
)

// Errors
var (
	ErrClosed    = errors.New("archive is closed")
	ErrCorrupted = errors.New("archive is corrupted")
)

// Decision values recorded for a height.
const (
	DecisionFinalized = "finalized"
	DecisionTimedOut  = "timed_out"
)

// Record is one finality decision for one height.
type Record struct {
	Height     uint64             `json:"height"`
	Decision   string             `json:"decision"`
	Leader     string             `json:"leader"`
	HeaderHash string             `json:"header_hash"`
	Votes      []types.QuorumVote `json:"votes,omitempty"`
	Time       time.Time          `json:"time"`
}

// Archiver receives finality decisions as they are reached.
type Archiver interface {
	// Archive persists one decision record.
	Archive(rec *Record) error

	// Close flushes and releases resources.
	Close() error
}

// NopArchiver discards all records.
type NopArchiver struct{}

// Archive implements Archiver.
func (NopArchiver) Archive(*Record) error { return nil }

// Close implements Archiver.
func (NopArchiver) Close() error { return nil }
