package keydist

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/wire"
	"github.com/lsmon/iotauth/internal/util/memzero"
)

const (
	boxInfo     = "iotauth-keydist-box-v1"
	keysLabel   = "iotauth-keydist-keys-v1"
	fprintLabel = "iotauth-keydist-fingerprint-v1"
)

var boxSpec = domain.CryptoSpec{Cipher: domain.CipherXChaCha20Poly1305}

// ErrNoDistributionKey is returned when session keys arrive but no
// distribution key is available to open them.
var ErrNoDistributionKey = errors.New("keydist: no distribution key")

// DistKeyBox is a distribution key sealed to an entity's X25519 key.
type DistKeyBox struct {
	Ephemeral domain.X25519Public `cbor:"1,keyasint"`
	Sealed    []byte              `cbor:"2,keyasint"`
}

// SealDistributionKey boxes dk to recipient.
func SealDistributionKey(recipient domain.X25519Public, dk domain.DistributionKey) (*DistKeyBox, error) {
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(ephPriv[:])

	key, err := boxKey(ephPriv, recipient, ephPub, recipient)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	pt, err := wire.Marshal(dk)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(pt)

	sealed, err := crypto.Seal(boxSpec, key, pt, ephPub.Slice())
	if err != nil {
		return nil, err
	}
	return &DistKeyBox{Ephemeral: ephPub, Sealed: sealed}, nil
}

// OpenDistributionKey opens a box sealed to the key pair (priv, pub).
func OpenDistributionKey(priv domain.X25519Private, pub domain.X25519Public, box *DistKeyBox) (domain.DistributionKey, error) {
	var dk domain.DistributionKey
	key, err := boxKey(priv, box.Ephemeral, box.Ephemeral, pub)
	if err != nil {
		return dk, err
	}
	defer memzero.Zero(key)

	pt, err := crypto.Open(boxSpec, key, box.Sealed, box.Ephemeral.Slice())
	if err != nil {
		return dk, fmt.Errorf("keydist: open distribution key: %w", err)
	}
	defer memzero.Zero(pt)
	if err := wire.Unmarshal(pt, &dk); err != nil {
		return dk, err
	}
	if err := crypto.ValidateSpec(dk.Spec); err != nil {
		return dk, fmt.Errorf("keydist: distribution key: %w", err)
	}
	return dk, nil
}

// boxKey derives the box key from DH(priv, peer), binding both public keys.
func boxKey(priv domain.X25519Private, peer, ephPub, recipient domain.X25519Public) ([]byte, error) {
	shared, err := crypto.DH(priv, peer)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(shared[:])

	salt := make([]byte, 0, 64)
	salt = append(salt, ephPub[:]...)
	salt = append(salt, recipient[:]...)

	size, _ := crypto.KeySize(boxSpec)
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared[:], salt, []byte(boxInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// SealSessionKeys seals keys under dk, bound to the request nonce.
func SealSessionKeys(dk domain.DistributionKey, nonce []byte, keys []domain.SessionKey) ([]byte, error) {
	pt, err := wire.Marshal(keys)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(pt)
	return crypto.Seal(dk.Spec, dk.Key, pt, keysAD(nonce))
}

// OpenSessionKeys reverses SealSessionKeys.
func OpenSessionKeys(dk *domain.DistributionKey, nonce, sealed []byte) ([]domain.SessionKey, error) {
	if dk == nil {
		return nil, ErrNoDistributionKey
	}
	pt, err := crypto.Open(dk.Spec, dk.Key, sealed, keysAD(nonce))
	if err != nil {
		return nil, fmt.Errorf("keydist: open session keys: %w", err)
	}
	defer memzero.Zero(pt)
	var keys []domain.SessionKey
	if err := wire.Unmarshal(pt, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// Fingerprint identifies a distribution key without revealing it. It returns
// the empty string for nil.
func Fingerprint(dk *domain.DistributionKey) string {
	if dk == nil {
		return ""
	}
	b := make([]byte, 0, len(fprintLabel)+len(dk.Key))
	b = append(b, fprintLabel...)
	b = append(b, dk.Key...)
	return crypto.Fingerprint(b)
}

func keysAD(nonce []byte) []byte {
	ad := make([]byte, 0, len(keysLabel)+len(nonce))
	ad = append(ad, keysLabel...)
	return append(ad, nonce...)
}
