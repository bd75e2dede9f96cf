package keydist

import (
	"errors"
	"fmt"
	"time"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

// ContentType is the media type of request and response bodies.
const ContentType = "application/cbor"

// SessionKeysPath is the HTTP path of the session key endpoint.
const SessionKeysPath = "/v1/session-keys"

const (
	requestLabel  = "iotauth-keydist-request-v1"
	responseLabel = "iotauth-keydist-response-v1"
)

// ErrBadSignature is returned when a message signature does not verify.
var ErrBadSignature = errors.New("keydist: bad signature")

// Request is the body of a session key request.
type Request struct {
	RequesterName domain.EntityName `cbor:"1,keyasint"`
	Purpose       domain.Purpose    `cbor:"2,keyasint"`
	NumKeys       int               `cbor:"3,keyasint"`
	Nonce         []byte            `cbor:"4,keyasint"`
	Timestamp     time.Time         `cbor:"5,keyasint"`

	// DistKeyFingerprint names the distribution key the requester holds,
	// empty when it holds none.
	DistKeyFingerprint string `cbor:"6,keyasint,omitempty"`
}

// Response is the body of the authority's answer.
type Response struct {
	ReplyNonce      []byte      `cbor:"1,keyasint"`
	DistributionKey *DistKeyBox `cbor:"2,keyasint,omitempty"`

	// SealedKeys is the CBOR list of session keys sealed under the
	// distribution key.
	SealedKeys []byte `cbor:"3,keyasint"`
}

// Signed wraps an encoded body and the Ed25519 signature over it.
type Signed struct {
	Body []byte `cbor:"1,keyasint"`
	Sig  []byte `cbor:"2,keyasint"`
}

// EncodeRequest signs r with priv and returns the wire encoding.
func EncodeRequest(priv domain.Ed25519Private, r Request) ([]byte, error) {
	return encodeSigned(priv, requestLabel, r)
}

// ParseRequest decodes a signed request without verifying it. The caller
// looks up the requester's key and calls VerifyRequest.
func ParseRequest(b []byte) (Signed, Request, error) {
	var (
		s Signed
		r Request
	)
	if err := wire.Unmarshal(b, &s); err != nil {
		return s, r, fmt.Errorf("keydist: decode request: %w", err)
	}
	if err := wire.Unmarshal(s.Body, &r); err != nil {
		return s, r, fmt.Errorf("keydist: decode request body: %w", err)
	}
	return s, r, nil
}

// VerifyRequest checks the requester signature on s.
func VerifyRequest(pub domain.Ed25519Public, s Signed) error {
	return verify(pub, requestLabel, s)
}

// EncodeResponse signs r with the authority key priv.
func EncodeResponse(priv domain.Ed25519Private, r Response) ([]byte, error) {
	return encodeSigned(priv, responseLabel, r)
}

// DecodeResponse verifies b against the authority key pub and decodes it.
func DecodeResponse(pub domain.Ed25519Public, b []byte) (Response, error) {
	var (
		s Signed
		r Response
	)
	if err := wire.Unmarshal(b, &s); err != nil {
		return r, fmt.Errorf("keydist: decode response: %w", err)
	}
	if err := verify(pub, responseLabel, s); err != nil {
		return r, err
	}
	if err := wire.Unmarshal(s.Body, &r); err != nil {
		return r, fmt.Errorf("keydist: decode response body: %w", err)
	}
	return r, nil
}

func encodeSigned(priv domain.Ed25519Private, label string, v any) ([]byte, error) {
	body, err := wire.Marshal(v)
	if err != nil {
		return nil, err
	}
	sig := crypto.SignEd25519(priv, signingInput(label, body))
	return wire.Marshal(Signed{Body: body, Sig: sig})
}

func verify(pub domain.Ed25519Public, label string, s Signed) error {
	if !crypto.VerifyEd25519(pub, signingInput(label, s.Body), s.Sig) {
		return ErrBadSignature
	}
	return nil
}

func signingInput(label string, body []byte) []byte {
	out := make([]byte, 0, len(label)+len(body))
	out = append(out, label...)
	return append(out, body...)
}
