// Package authority implements a development key-distribution authority.
//
// It knows a fixed set of entities by their Ed25519 and X25519 public keys,
// issues session keys with increasing identifiers, serves previously issued
// keys by identifier, and keeps one distribution key per entity, replacing
// it whenever the entity presents an unknown or expired one. State lives in
// memory only.
package authority
