package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest encoded frame accepted from a peer.
const MaxFrameSize = 16 << 20

// MaxMessageSize is the largest application payload that always fits in a
// SECURE_COMM_MSG frame once sealed. The difference bounds the CBOR framing,
// the sequence number, and the AEAD nonce and tag.
const MaxMessageSize = MaxFrameSize - 256

const lengthPrefixSize = 4

// MsgType identifies the kind of frame.
type MsgType uint8

const (
	// Handshake1 is the client's connection request naming its key.
	Handshake1 MsgType = 1
	// Handshake2 is the server's sealed handshake reply.
	Handshake2 MsgType = 2
	// SecureCommMsg carries a sealed application message.
	SecureCommMsg MsgType = 3
)

func (t MsgType) String() string {
	switch t {
	case Handshake1:
		return "HANDSHAKE_1"
	case Handshake2:
		return "HANDSHAKE_2"
	case SecureCommMsg:
		return "SECURE_COMM_MSG"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

var (
	// ErrFrameTooLarge is returned for frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame too large")
	// ErrMessageTooLarge is returned for payloads above MaxMessageSize.
	ErrMessageTooLarge = errors.New("wire: message too large")
	// ErrUnexpectedType is returned when a frame of the wrong type arrives.
	ErrUnexpectedType = errors.New("wire: unexpected frame type")
)

// Frame is the unit written on a connection.
type Frame struct {
	Type    MsgType `cbor:"1,keyasint"`
	Payload []byte  `cbor:"2,keyasint"`
}

// EncodeFrame returns the length-prefixed encoding of a frame.
func EncodeFrame(t MsgType, payload []byte) ([]byte, error) {
	body, err := Marshal(Frame{Type: t, Payload: payload})
	if err != nil {
		return nil, err
	}
	if len(body) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	out := make([]byte, lengthPrefixSize, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

// WriteFrame encodes and writes a frame to w.
func WriteFrame(w io.Writer, t MsgType, payload []byte) error {
	b, err := EncodeFrame(t, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := Unmarshal(body, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	return f, nil
}

// Expect returns ErrUnexpectedType unless f has type t.
func (f Frame) Expect(t MsgType) error {
	if f.Type != t {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, f.Type, t)
	}
	return nil
}
