// Package wire implements the framing and message codec spoken between the
// secure communication server and its clients.
//
// A frame is a 4 byte big-endian length followed by a CBOR encoded Frame.
// Session messages and the server's handshake reply are sealed with the
// session key bound to the connection; the sealed form is nonce || ciphertext
// with the key identifier as associated data. Because nonces are random, one
// sealed frame can be written verbatim to every client holding the same key.
package wire
