// Package keydist implements the messages exchanged between an entity and
// the key-distribution authority.
//
// # Flow
//
//   - The entity builds a Request naming itself, the key purpose, the number
//     of keys and a fresh nonce, and signs it with its Ed25519 identity key.
//   - The authority verifies the signature against the registered entity
//     key, issues the keys and signs a Response that echoes the nonce.
//   - When the entity holds no distribution key, or holds one the authority
//     no longer accepts, the response carries a fresh distribution key boxed
//     to the entity's X25519 key (ephemeral X25519 + HKDF-SHA256 + AEAD).
//   - Session keys travel sealed under the distribution key.
//
// Entities prove which distribution key they hold with its fingerprint, so
// the key itself never travels in a request.
package keydist
