package types

// Identity holds the entity's long-term X25519 and Ed25519 keys.
type Identity struct {
	XPub   X25519Public   `cbor:"1,keyasint"`
	XPriv  X25519Private  `cbor:"2,keyasint"`
	EdPub  Ed25519Public  `cbor:"3,keyasint"`
	EdPriv Ed25519Private `cbor:"4,keyasint"`
}
