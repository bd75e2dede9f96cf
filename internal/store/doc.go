// Package store provides file-based persistence for the entity's long-term
// identity keys.
//
// Session keys and distribution keys are never written to disk; they live in
// the in-memory cache for the lifetime of the process. The identity file is a
// CBOR blob sealed with ChaCha20-Poly1305 under a scrypt-derived key. All
// methods are concurrency-safe via internal locking.
package store
