// Package types defines the core data structures shared across the Φ-consensus
// engine.
//
// # Core Types
//
// Block: a proposed block as seen by the consensus core. The header bytes are
// opaque; the core binds them into the integrity hash and the vote sign bytes
// but never interprets them. Transaction handling belongs to the application.
//
// FibProof: the proposer's embedded mathematical proof — the claimed F(height)
// and the proposer's registration entry index.
//
// QuorumVote: a quorum-slice member's signed agreement to finalize a block at
// a height. Held only until the height is decided, then archived or dropped.
//
// Hash, Signature, PublicKey: thin wrappers over SHA-256 digests and Ed25519
// key material with size validation on untrusted input.
//
// # Serialization
//
// Sign bytes use canonical JSON of fixed-field structs: struct field order is
// stable, so the encoding is deterministic across nodes. No wire format for
// blocks or votes is defined here; transport layers choose their own.
//
// # Immutability
//
// Types expose Copy methods and constructors copy untrusted input. Anything
// handed back by the engine is an independent copy.
package types
