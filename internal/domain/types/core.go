package types

import (
	"encoding/binary"
	"strconv"
)

// EntityName identifies a registered entity at the authority.
type EntityName string

// String returns the string form of the entity name.
func (n EntityName) String() string { return string(n) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// KeyIDSize is the wire size of a session key identifier.
const KeyIDSize = 8

// KeyID identifies a session key issued by the authority.
type KeyID uint64

// String returns the decimal form of the identifier.
func (id KeyID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Bytes returns the big-endian wire encoding of the identifier.
func (id KeyID) Bytes() []byte {
	b := make([]byte, KeyIDSize)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// KeyIDFromBytes decodes a big-endian identifier. It reports false when b is
// not exactly KeyIDSize bytes long.
func KeyIDFromBytes(b []byte) (KeyID, bool) {
	if len(b) != KeyIDSize {
		return 0, false
	}
	return KeyID(binary.BigEndian.Uint64(b)), true
}

// ConnID is the stable slot identifier the transport assigns to a
// connection. Identifiers are never reused within a process.
type ConnID uint64

// String returns the decimal form of the identifier.
func (id ConnID) String() string { return strconv.FormatUint(uint64(id), 10) }
