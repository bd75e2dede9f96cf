package types

import (
	"bytes"
	"fmt"
	"time"
)

// Supported AEAD ciphers.
const (
	CipherAES128GCM         = "AES-128-GCM"
	CipherAES256GCM         = "AES-256-GCM"
	CipherXChaCha20Poly1305 = "XCHACHA20-POLY1305"
)

// CryptoSpec names the symmetric construction a key is used with.
type CryptoSpec struct {
	Cipher string `cbor:"cipher" json:"cipher" toml:"Cipher"`
}

// String returns the cipher name.
func (s CryptoSpec) String() string { return s.Cipher }

// SessionKey is a symmetric key shared between this entity and one or more
// clients. Once cached it must be treated as immutable.
type SessionKey struct {
	ID       KeyID         `cbor:"id"`
	Key      []byte        `cbor:"key"`
	Expiry   time.Time     `cbor:"expiry"`
	Lifetime time.Duration `cbor:"lifetime"`
	Spec     CryptoSpec    `cbor:"spec"`
}

// Clone returns a deep copy of k.
func (k SessionKey) Clone() SessionKey {
	k.Key = bytes.Clone(k.Key)
	return k
}

// ValidAt reports whether the key is still within its validity window at t.
// A zero Expiry never expires.
func (k SessionKey) ValidAt(t time.Time) bool {
	return k.Expiry.IsZero() || t.Before(k.Expiry)
}

// String omits the key bytes.
func (k SessionKey) String() string {
	return fmt.Sprintf("SessionKey{id:%d spec:%s expiry:%s}", k.ID, k.Spec, k.Expiry.Format(time.RFC3339))
}

// DistributionKey protects the transport of session keys between this entity
// and the authority.
type DistributionKey struct {
	Key    []byte     `cbor:"key"`
	Expiry time.Time  `cbor:"expiry"`
	Spec   CryptoSpec `cbor:"spec"`
}

// Clone returns a deep copy of k.
func (k DistributionKey) Clone() DistributionKey {
	k.Key = bytes.Clone(k.Key)
	return k
}

// ValidAt reports whether the key is still within its validity window at t.
func (k DistributionKey) ValidAt(t time.Time) bool {
	return k.Expiry.IsZero() || t.Before(k.Expiry)
}

// String omits the key bytes.
func (k DistributionKey) String() string {
	return fmt.Sprintf("DistributionKey{spec:%s expiry:%s}", k.Spec, k.Expiry.Format(time.RFC3339))
}
