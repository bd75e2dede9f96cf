package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/lsmon/iotauth/internal/domain"
)

var (
	// ErrUnknownCipher is returned for a crypto spec naming an unsupported cipher.
	ErrUnknownCipher = errors.New("unknown cipher")
	// ErrShortCiphertext is returned when a sealed message cannot even hold a nonce.
	ErrShortCiphertext = errors.New("ciphertext too short")
)

// KeySize returns the key length in bytes required by spec.
func KeySize(spec domain.CryptoSpec) (int, error) {
	switch spec.Cipher {
	case domain.CipherAES128GCM:
		return 16, nil
	case domain.CipherAES256GCM:
		return 32, nil
	case domain.CipherXChaCha20Poly1305:
		return chacha20poly1305.KeySize, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownCipher, spec.Cipher)
	}
}

// ValidateSpec checks that spec names a supported cipher.
func ValidateSpec(spec domain.CryptoSpec) error {
	_, err := KeySize(spec)
	return err
}

// NewAEAD returns the AEAD described by spec keyed with key.
func NewAEAD(spec domain.CryptoSpec, key []byte) (cipher.AEAD, error) {
	size, err := KeySize(spec)
	if err != nil {
		return nil, err
	}
	if len(key) != size {
		return nil, fmt.Errorf("%s: want %d byte key, got %d", spec.Cipher, size, len(key))
	}
	if spec.Cipher == domain.CipherXChaCha20Poly1305 {
		return chacha20poly1305.NewX(key)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKey returns fresh random key material sized for spec.
func GenerateKey(spec domain.CryptoSpec) ([]byte, error) {
	size, err := KeySize(spec)
	if err != nil {
		return nil, err
	}
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext under key with a random nonce and returns
// nonce || ciphertext. Random nonces make a sealed message independent of any
// per-connection state, so one output can be delivered to many receivers.
func Seal(spec domain.CryptoSpec, key, plaintext, ad []byte) ([]byte, error) {
	aead, err := NewAEAD(spec, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out, plaintext, ad), nil
}

// Open reverses Seal.
func Open(spec domain.CryptoSpec, key, sealed, ad []byte) ([]byte, error) {
	aead, err := NewAEAD(spec, key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrShortCiphertext
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, ad)
}
