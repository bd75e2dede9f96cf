package wire

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
)

// NonceSize is the size of the handshake nonces.
const NonceSize = 16

// ErrNonceMismatch is returned when a handshake reply does not echo the
// client's nonce.
var ErrNonceMismatch = errors.New("wire: handshake nonce mismatch")

// Hello is the HANDSHAKE_1 payload.
type Hello struct {
	KeyID domain.KeyID `cbor:"1,keyasint"`
	Nonce []byte       `cbor:"2,keyasint"`
}

// HelloReply is the plaintext of the sealed HANDSHAKE_2 payload.
type HelloReply struct {
	ReplyNonce []byte `cbor:"1,keyasint"`
	Nonce      []byte `cbor:"2,keyasint"`
}

// SessionMessage is the plaintext of a SECURE_COMM_MSG payload.
type SessionMessage struct {
	Seq  uint64 `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// NewNonce returns a fresh handshake nonce.
func NewNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, err
	}
	return n, nil
}

// EncodeHello returns the HANDSHAKE_1 frame for keyID.
func EncodeHello(h Hello) ([]byte, error) {
	payload, err := Marshal(h)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(Handshake1, payload)
}

// DecodeHello parses a HANDSHAKE_1 payload.
func DecodeHello(payload []byte) (Hello, error) {
	var h Hello
	if err := Unmarshal(payload, &h); err != nil {
		return h, fmt.Errorf("wire: decode hello: %w", err)
	}
	if len(h.Nonce) != NonceSize {
		return h, fmt.Errorf("wire: hello nonce must be %d bytes", NonceSize)
	}
	return h, nil
}

// SealHelloReply returns the HANDSHAKE_2 frame sealed with key.
func SealHelloReply(key domain.SessionKey, r HelloReply) ([]byte, error) {
	return sealFrame(Handshake2, key, r)
}

// OpenHelloReply decrypts a HANDSHAKE_2 payload and checks that it echoes
// clientNonce.
func OpenHelloReply(key domain.SessionKey, payload, clientNonce []byte) (HelloReply, error) {
	var r HelloReply
	if err := open(key, payload, &r); err != nil {
		return r, err
	}
	if !bytes.Equal(r.ReplyNonce, clientNonce) {
		return r, ErrNonceMismatch
	}
	return r, nil
}

// SealSessionMessage returns a complete SECURE_COMM_MSG frame sealed with key.
// The result can be written to any connection bound to the same key.
func SealSessionMessage(key domain.SessionKey, m SessionMessage) ([]byte, error) {
	return sealFrame(SecureCommMsg, key, m)
}

// OpenSessionMessage decrypts a SECURE_COMM_MSG payload.
func OpenSessionMessage(key domain.SessionKey, payload []byte) (SessionMessage, error) {
	var m SessionMessage
	err := open(key, payload, &m)
	return m, err
}

func sealFrame(t MsgType, key domain.SessionKey, v any) ([]byte, error) {
	pt, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.Seal(key.Spec, key.Key, pt, key.ID.Bytes())
	if err != nil {
		return nil, fmt.Errorf("wire: seal %s: %w", t, err)
	}
	return EncodeFrame(t, sealed)
}

func open(key domain.SessionKey, payload []byte, v any) error {
	pt, err := crypto.Open(key.Spec, key.Key, payload, key.ID.Bytes())
	if err != nil {
		return fmt.Errorf("wire: open: %w", err)
	}
	return Unmarshal(pt, v)
}
