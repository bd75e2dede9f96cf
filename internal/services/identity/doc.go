// Package identity manages creation, encryption and loading of the entity's
// long-term identity.
//
// It enforces passphrase policy, generates the X25519 key-agreement pair and
// the Ed25519 signing pair the authority knows the entity by, and persists
// them via the domain.IdentityStore.
package identity
