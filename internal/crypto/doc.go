// Package crypto exposes the minimal primitives used by the secure
// communication server and its authority.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - AEAD sealing selected by a domain.CryptoSpec (Seal, Open, NewAEAD,
//     GenerateKey, KeySize)
//   - Short key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Sealed messages are laid out as nonce || ciphertext with a random nonce.
// Key pair functions return fixed-size array types defined in
// internal/domain to avoid accidental reallocations.
package crypto
