// Package privval provides vote signing for quorum-slice members.
//
// PrivValidator is the signing interface the surrounding node implements;
// MemPV is an in-memory Ed25519 signer with double-sign prevention, suitable
// for tests and local tooling. KeyRing is the matching verification side,
// satisfying the engine's signature-verification collaborator.
//
// Key generation and secure key storage are explicitly out of scope for the
// consensus core; nothing here persists key material.
package privval
