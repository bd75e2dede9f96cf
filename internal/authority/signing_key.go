package authority

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
)

const signingKeyFile = "authority.key"

// ErrKeyExists is returned by CreateSigningKey when a key is already present.
var ErrKeyExists = errors.New("authority: signing key already exists")

// SigningKeyPath returns the location of the signing key under dataDir.
func SigningKeyPath(dataDir string) string {
	return filepath.Join(dataDir, signingKeyFile)
}

// CreateSigningKey generates the authority signing key in dataDir.
func CreateSigningKey(dataDir string) (domain.Ed25519Public, error) {
	var pub domain.Ed25519Public
	path := SigningKeyPath(dataDir)
	if _, err := os.Stat(path); err == nil {
		return pub, ErrKeyExists
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return pub, err
	}
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return pub, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv[:])+"\n"), 0o600); err != nil {
		return pub, err
	}
	return pub, nil
}

// LoadSigningKey reads the authority signing key from dataDir.
func LoadSigningKey(dataDir string) (domain.Ed25519Private, error) {
	var priv domain.Ed25519Private
	b, err := os.ReadFile(SigningKeyPath(dataDir))
	if err != nil {
		return priv, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return priv, fmt.Errorf("authority: signing key: %w", err)
	}
	if len(raw) != len(priv) {
		return priv, fmt.Errorf("authority: signing key: want %d bytes, got %d", len(priv), len(raw))
	}
	copy(priv[:], raw)
	return priv, nil
}
