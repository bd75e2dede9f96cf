package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
)

const (
	defaultAuthorityAddress     = "127.0.0.1:21900"
	defaultSessionKeyLifetime   = 60 * 60      // 1 hour.
	defaultDistributionLifetime = 24 * 60 * 60 // 1 day.
)

// AuthorityServer is the development authority listener.
type AuthorityServer struct {
	// Address is the HTTP listen address.
	Address string

	// DataDir holds the authority signing key.
	DataDir string
}

func (sCfg *AuthorityServer) validate() error {
	if sCfg.Address == "" {
		sCfg.Address = defaultAuthorityAddress
	}
	if _, _, err := net.SplitHostPort(sCfg.Address); err != nil {
		return fmt.Errorf("config: Authority: Address '%v' is invalid: %v", sCfg.Address, err)
	}
	if sCfg.DataDir == "" {
		return errors.New("config: Authority: DataDir is not set")
	}
	return nil
}

// AuthorityKeys controls the keys the authority issues.
type AuthorityKeys struct {
	// SessionKeyLifetime is the validity of issued session keys in seconds.
	SessionKeyLifetime int

	// DistributionKeyLifetime is the validity of issued distribution keys
	// in seconds.
	DistributionKeyLifetime int

	Crypto
}

func (kCfg *AuthorityKeys) validate() error {
	if kCfg.SessionKeyLifetime <= 0 {
		kCfg.SessionKeyLifetime = defaultSessionKeyLifetime
	}
	if kCfg.DistributionKeyLifetime <= 0 {
		kCfg.DistributionKeyLifetime = defaultDistributionLifetime
	}
	return kCfg.Crypto.validate()
}

// SessionLifetime returns SessionKeyLifetime as a duration.
func (kCfg *AuthorityKeys) SessionLifetime() time.Duration {
	return time.Duration(kCfg.SessionKeyLifetime) * time.Second
}

// DistributionLifetime returns DistributionKeyLifetime as a duration.
func (kCfg *AuthorityKeys) DistributionLifetime() time.Duration {
	return time.Duration(kCfg.DistributionKeyLifetime) * time.Second
}

// AuthorityEntity is an entity registered at the authority.
type AuthorityEntity struct {
	Name string

	// SigningKey is the entity's hex encoded Ed25519 public key.
	SigningKey string

	// AgreementKey is the entity's hex encoded X25519 public key.
	AgreementKey string

	// PermanentDistKey is an optional hex encoded pre-shared distribution
	// key.
	PermanentDistKey string
}

func (eCfg *AuthorityEntity) validate() error {
	if eCfg.Name == "" {
		return errors.New("config: Entity: Name is not set")
	}
	if _, err := decodeEd25519Public(eCfg.SigningKey); err != nil {
		return fmt.Errorf("config: Entity %v: SigningKey: %v", eCfg.Name, err)
	}
	if _, err := decodeX25519Public(eCfg.AgreementKey); err != nil {
		return fmt.Errorf("config: Entity %v: AgreementKey: %v", eCfg.Name, err)
	}
	return nil
}

// DistributionKey returns the pre-shared distribution key, or nil.
func (eCfg *AuthorityEntity) DistributionKey(spec domain.CryptoSpec) (*domain.DistributionKey, error) {
	if eCfg.PermanentDistKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(eCfg.PermanentDistKey)
	if err != nil {
		return nil, fmt.Errorf("config: Entity %v: PermanentDistKey: %v", eCfg.Name, err)
	}
	size, err := crypto.KeySize(spec)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, fmt.Errorf("config: Entity %v: PermanentDistKey: want %d bytes for %s, got %d", eCfg.Name, size, spec, len(raw))
	}
	return &domain.DistributionKey{Key: raw, Spec: spec}, nil
}

// Keys returns the decoded entity public keys.
func (eCfg *AuthorityEntity) Keys() (domain.Ed25519Public, domain.X25519Public) {
	ed, _ := decodeEd25519Public(eCfg.SigningKey)
	x, _ := decodeX25519Public(eCfg.AgreementKey)
	return ed, x
}

// AuthorityConfig is the top level development authority configuration.
type AuthorityConfig struct {
	Authority *AuthorityServer
	Keys      *AuthorityKeys
	Entity    []*AuthorityEntity
	Logging   *Logging
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration.
func (cfg *AuthorityConfig) FixupAndValidate() error {
	if cfg.Authority == nil {
		return errors.New("config: No Authority block was present")
	}
	if cfg.Keys == nil {
		cfg.Keys = &AuthorityKeys{}
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if err := cfg.Authority.validate(); err != nil {
		return err
	}
	if err := cfg.Keys.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, e := range cfg.Entity {
		if err := e.validate(); err != nil {
			return err
		}
		if seen[e.Name] {
			return fmt.Errorf("config: Entity %v is listed more than once", e.Name)
		}
		seen[e.Name] = true
		if _, err := e.DistributionKey(cfg.Keys.Distribution()); err != nil {
			return err
		}
	}
	return nil
}

// LoadAuthority parses and validates b as an authority config file body.
func LoadAuthority(b []byte) (*AuthorityConfig, error) {
	if b == nil {
		return nil, errors.New("No nil buffer as config file")
	}

	cfg := new(AuthorityConfig)
	if _, err := toml.Decode(string(b), cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAuthorityFile loads, parses and validates the authority config file f.
func LoadAuthorityFile(f string) (*AuthorityConfig, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return LoadAuthority(b)
}

func decodeX25519Public(s string) (domain.X25519Public, error) {
	var k domain.X25519Public
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("want %d bytes, got %d", len(k), len(raw))
	}
	copy(k[:], raw)
	return k, nil
}
