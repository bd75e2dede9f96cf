package store

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/lsmon/iotauth/internal/util/memzero"
)

const (
	// keystoreFormatVersion is the current version of the sealed blob format.
	keystoreFormatVersion = 1

	saltSize = 16
)

// keystoreLabel is mixed into the associated data so a blob sealed for this
// keystore cannot be replayed into another format using the same passphrase.
var keystoreLabel = []byte("iotauth-keystore-v1")

var (
	// errWrongPassphrase is returned when the passphrase is incorrect or the
	// ciphertext has been modified or corrupted.
	errWrongPassphrase = errors.New("wrong passphrase or corrupted identity")
)

// blob is the on-disk CBOR structure holding the ciphertext and the scrypt
// parameters it was sealed with.
type blob struct {
	V      int    `cbor:"1,keyasint"`
	Salt   []byte `cbor:"2,keyasint"`
	N      int    `cbor:"3,keyasint"`
	R      int    `cbor:"4,keyasint"`
	P      int    `cbor:"5,keyasint"`
	Cipher []byte `cbor:"6,keyasint"`
}

func (b blob) associatedData() []byte {
	ad := make([]byte, 0, len(keystoreLabel)+len(b.Salt))
	ad = append(ad, keystoreLabel...)
	return append(ad, b.Salt...)
}

// encrypt derives a key from passphrase and seals raw into a blob.
func encrypt(passphrase string, raw []byte, N, r, p int) ([]byte, error) {
	bl := blob{V: keystoreFormatVersion, Salt: make([]byte, saltSize), N: N, R: r, P: p}
	if _, err := rand.Read(bl.Salt); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), bl.Salt, N, r, p, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	// Zero nonce: the per-blob salt yields a fresh key every time.
	var nonce [chacha20poly1305.NonceSize]byte
	bl.Cipher = aead.Seal(nil, nonce[:], raw, bl.associatedData())
	return cbor.Marshal(bl)
}

// decrypt opens a blob using a key derived from passphrase.
func decrypt(passphrase string, b []byte) ([]byte, error) {
	var bl blob
	if err := cbor.Unmarshal(b, &bl); err != nil {
		return nil, fmt.Errorf("decode keystore: %w", err)
	}
	if bl.V > keystoreFormatVersion {
		return nil, fmt.Errorf("unsupported keystore version %d", bl.V)
	}
	if len(bl.Salt) != saltSize {
		return nil, errWrongPassphrase
	}

	key, err := scrypt.Key([]byte(passphrase), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, bl.associatedData())
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }
