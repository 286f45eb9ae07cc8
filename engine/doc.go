// Package engine implements the Φ-consensus core: Fibonacci-driven leader
// selection over φ-weighted validators, block proof validation, rank-based
// reward distribution and quorum-slice finality with timeouts.
//
// The engine is a passive core. It owns no networking, no mempool and no
// chain state; blocks and votes are fed in through method calls and decisions
// come back through return values, the archive.Archiver and the
// evidence.Pool. All exported methods are safe for concurrent use.
//
// Determinism is the load-bearing property: for a fixed registry state,
// SelectLeader, ValidateBlock and CalculateRewards produce identical results
// on every node. Anything nondeterministic (timeouts, archiving, metrics)
// only observes decisions, never influences them.
package engine
