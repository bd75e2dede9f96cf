// Package config implements the configuration for the secure communication
// server and the development authority.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
)

const (
	defaultLogLevel         = "NOTICE"
	defaultAddress          = "127.0.0.1:21100"
	defaultAuthHost         = "127.0.0.1"
	defaultAuthPort         = 21900
	defaultAuthTimeout      = 10 * 1000 // 10 sec.
	defaultHandshakeTimeout = 5 * 1000  // 5 sec.
	defaultWriteTimeout     = 5 * 1000  // 5 sec.
	defaultDistProtocol     = "TCP"
	defaultCachedKeysGroup  = 101
	defaultPubTopic         = "Ptopic"
)

var defaultLogging = Logging{
	Disable: false,
	File:    "",
	Level:   defaultLogLevel,
}

var defaultCrypto = Crypto{
	SessionCryptoSpec:      domain.CipherAES128GCM,
	DistributionCryptoSpec: domain.CipherAES128GCM,
}

// Entity is the identity of this process at the authority.
type Entity struct {
	// Name is the entity name registered at the authority.
	Name string

	// IdentityDir is the directory holding the encrypted identity keys.
	IdentityDir string

	// CachedKeysGroup is the group number used when prefetching keys for
	// future clients.
	CachedKeysGroup int

	// PubTopic is the default topic for publish key prefetches.
	PubTopic string

	// UsePermanentDistKey seeds the cache with PermanentDistKey on start.
	UsePermanentDistKey bool

	// PermanentDistKey is the hex encoded pre-shared distribution key.
	PermanentDistKey string

	// DistProtocol is the protocol used to reach the authority. Only TCP
	// is supported.
	DistProtocol string
}

func (eCfg *Entity) validate() error {
	if eCfg.Name == "" {
		return errors.New("config: Entity: Name is not set")
	}
	if eCfg.IdentityDir == "" {
		return errors.New("config: Entity: IdentityDir is not set")
	}
	if eCfg.CachedKeysGroup == 0 {
		eCfg.CachedKeysGroup = defaultCachedKeysGroup
	}
	if eCfg.PubTopic == "" {
		eCfg.PubTopic = defaultPubTopic
	}
	switch strings.ToUpper(eCfg.DistProtocol) {
	case "":
		eCfg.DistProtocol = defaultDistProtocol
	case defaultDistProtocol:
		eCfg.DistProtocol = defaultDistProtocol
	default:
		return fmt.Errorf("config: Entity: DistProtocol '%v' is not supported", eCfg.DistProtocol)
	}
	if eCfg.UsePermanentDistKey {
		if _, err := hex.DecodeString(eCfg.PermanentDistKey); err != nil || eCfg.PermanentDistKey == "" {
			return fmt.Errorf("config: Entity: PermanentDistKey is invalid")
		}
	}
	return nil
}

// Auth is the authority endpoint.
type Auth struct {
	// Host is the authority host name or address.
	Host string

	// Port is the authority TCP port.
	Port int

	// PublicKey is the hex encoded Ed25519 key the authority signs with.
	PublicKey string

	// Timeout is the request timeout in milliseconds.
	Timeout int
}

func (aCfg *Auth) validate() error {
	if aCfg.Host == "" {
		aCfg.Host = defaultAuthHost
	}
	if aCfg.Port == 0 {
		aCfg.Port = defaultAuthPort
	}
	if aCfg.Port < 0 || aCfg.Port > 65535 {
		return fmt.Errorf("config: Auth: Port %d is invalid", aCfg.Port)
	}
	if aCfg.Timeout <= 0 {
		aCfg.Timeout = defaultAuthTimeout
	}
	if _, err := decodeEd25519Public(aCfg.PublicKey); err != nil {
		return fmt.Errorf("config: Auth: PublicKey: %v", err)
	}
	return nil
}

// URL returns the base URL of the authority.
func (aCfg *Auth) URL() string {
	return "http://" + net.JoinHostPort(aCfg.Host, strconv.Itoa(aCfg.Port))
}

// SigningKey returns the decoded authority public key.
func (aCfg *Auth) SigningKey() domain.Ed25519Public {
	k, _ := decodeEd25519Public(aCfg.PublicKey)
	return k
}

// RequestTimeout returns Timeout as a duration.
func (aCfg *Auth) RequestTimeout() time.Duration {
	return time.Duration(aCfg.Timeout) * time.Millisecond
}

// Server is the listener configuration.
type Server struct {
	// Address is the TCP address clients connect to.
	Address string

	// HandshakeTimeout bounds the time a client may take to complete the
	// handshake, in milliseconds. It also bounds how long a client waits
	// for a key fetched from the authority.
	HandshakeTimeout int

	// WriteTimeout is the per-frame write deadline in milliseconds.
	WriteTimeout int
}

func (sCfg *Server) validate() error {
	if sCfg.Address == "" {
		sCfg.Address = defaultAddress
	}
	if _, _, err := net.SplitHostPort(sCfg.Address); err != nil {
		return fmt.Errorf("config: Server: Address '%v' is invalid: %v", sCfg.Address, err)
	}
	if sCfg.HandshakeTimeout <= 0 {
		sCfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if sCfg.WriteTimeout <= 0 {
		sCfg.WriteTimeout = defaultWriteTimeout
	}
	return nil
}

// Crypto names the ciphers used for session and distribution keys.
type Crypto struct {
	SessionCryptoSpec      string
	DistributionCryptoSpec string
}

func (cCfg *Crypto) validate() error {
	if cCfg.SessionCryptoSpec == "" {
		cCfg.SessionCryptoSpec = defaultCrypto.SessionCryptoSpec
	}
	if cCfg.DistributionCryptoSpec == "" {
		cCfg.DistributionCryptoSpec = defaultCrypto.DistributionCryptoSpec
	}
	cCfg.SessionCryptoSpec = strings.ToUpper(cCfg.SessionCryptoSpec)
	cCfg.DistributionCryptoSpec = strings.ToUpper(cCfg.DistributionCryptoSpec)
	if err := crypto.ValidateSpec(cCfg.Session()); err != nil {
		return fmt.Errorf("config: Crypto: SessionCryptoSpec: %v", err)
	}
	if err := crypto.ValidateSpec(cCfg.Distribution()); err != nil {
		return fmt.Errorf("config: Crypto: DistributionCryptoSpec: %v", err)
	}
	return nil
}

// Session returns the session key crypto spec.
func (cCfg *Crypto) Session() domain.CryptoSpec {
	return domain.CryptoSpec{Cipher: cCfg.SessionCryptoSpec}
}

// Distribution returns the distribution key crypto spec.
func (cCfg *Crypto) Distribution() domain.CryptoSpec {
	return domain.CryptoSpec{Cipher: cCfg.DistributionCryptoSpec}
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stdout will be used.
	File string

	// Level specifies the log level.
	Level string
}

func (lCfg *Logging) validate() error {
	lvl := strings.ToUpper(lCfg.Level)
	switch lvl {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	case "":
		lvl = defaultLogLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	lCfg.Level = lvl // Force uppercase.
	return nil
}

// Metrics is the Prometheus endpoint configuration.
type Metrics struct {
	// Address serves /metrics when set.
	Address string
}

// Config is the top level secure communication server configuration.
type Config struct {
	Entity  *Entity
	Auth    *Auth
	Server  *Server
	Crypto  *Crypto
	Logging *Logging
	Metrics *Metrics
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration. Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Entity == nil {
		return errors.New("config: No Entity block was present")
	}
	if cfg.Auth == nil {
		return errors.New("config: No Auth block was present")
	}
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Crypto == nil {
		c := defaultCrypto
		cfg.Crypto = &c
	}
	if cfg.Logging == nil {
		l := defaultLogging
		cfg.Logging = &l
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}

	if err := cfg.Entity.validate(); err != nil {
		return err
	}
	if err := cfg.Auth.validate(); err != nil {
		return err
	}
	if err := cfg.Server.validate(); err != nil {
		return err
	}
	if err := cfg.Crypto.validate(); err != nil {
		return err
	}
	if err := cfg.Logging.validate(); err != nil {
		return err
	}
	if cfg.Entity.UsePermanentDistKey {
		if _, err := cfg.PermanentDistributionKey(); err != nil {
			return err
		}
	}
	return nil
}

// PermanentDistributionKey returns the configured pre-shared distribution
// key, or nil when none is in use.
func (cfg *Config) PermanentDistributionKey() (*domain.DistributionKey, error) {
	if !cfg.Entity.UsePermanentDistKey {
		return nil, nil
	}
	raw, err := hex.DecodeString(cfg.Entity.PermanentDistKey)
	if err != nil {
		return nil, fmt.Errorf("config: Entity: PermanentDistKey: %v", err)
	}
	spec := cfg.Crypto.Distribution()
	size, err := crypto.KeySize(spec)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, fmt.Errorf("config: Entity: PermanentDistKey: want %d bytes for %s, got %d", size, spec, len(raw))
	}
	return &domain.DistributionKey{Key: raw, Spec: spec}, nil
}

// HandshakeDeadline returns Server.HandshakeTimeout as a duration.
func (sCfg *Server) HandshakeDeadline() time.Duration {
	return time.Duration(sCfg.HandshakeTimeout) * time.Millisecond
}

// WriteDeadline returns Server.WriteTimeout as a duration.
func (sCfg *Server) WriteDeadline() time.Duration {
	return time.Duration(sCfg.WriteTimeout) * time.Millisecond
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("No nil buffer as config file")
	}

	cfg := new(Config)
	if _, err := toml.Decode(string(b), cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

func decodeEd25519Public(s string) (domain.Ed25519Public, error) {
	var k domain.Ed25519Public
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
