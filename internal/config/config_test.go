package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/domain"
)

const authorityKeyHex = "3b6a27bcceb6a42d62a3a8d02a6f0d73653215771de243a63ac048a18b59da29"

func TestConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Load([]byte(`
[Entity]
  Name = "net1.server"
  IdentityDir = "/tmp/iotauth"

[Auth]
  PublicKey = "` + authorityKeyHex + `"
`))
	require.NoError(err)

	require.Equal("TCP", cfg.Entity.DistProtocol)
	require.Equal(defaultCachedKeysGroup, cfg.Entity.CachedKeysGroup)
	require.Equal("Ptopic", cfg.Entity.PubTopic)
	require.Equal("http://127.0.0.1:21900", cfg.Auth.URL())
	require.Equal(10*time.Second, cfg.Auth.RequestTimeout())
	require.Equal(defaultAddress, cfg.Server.Address)
	require.Equal(5*time.Second, cfg.Server.HandshakeDeadline())
	require.Equal(domain.CryptoSpec{Cipher: domain.CipherAES128GCM}, cfg.Crypto.Session())
	require.Equal("NOTICE", cfg.Logging.Level)
	require.Empty(cfg.Metrics.Address)

	dk, err := cfg.PermanentDistributionKey()
	require.NoError(err)
	require.Nil(dk)
}

func TestConfigPermanentDistKey(t *testing.T) {
	require := require.New(t)

	body := `
[Entity]
  Name = "net1.server"
  IdentityDir = "/tmp/iotauth"
  UsePermanentDistKey = true
  PermanentDistKey = "000102030405060708090a0b0c0d0e0f"

[Auth]
  PublicKey = "` + authorityKeyHex + `"

[Crypto]
  DistributionCryptoSpec = "aes-128-gcm"

[Logging]
  Level = "debug"
`
	cfg, err := Load([]byte(body))
	require.NoError(err)
	require.Equal("DEBUG", cfg.Logging.Level)

	dk, err := cfg.PermanentDistributionKey()
	require.NoError(err)
	require.NotNil(dk)
	require.Len(dk.Key, 16)
	require.Equal(domain.CipherAES128GCM, dk.Spec.Cipher)

	// A 16 byte key does not fit AES-256-GCM.
	_, err = Load([]byte(strings.Replace(body, "aes-128-gcm", "AES-256-GCM", 1)))
	require.Error(err)
}

func TestConfigRejects(t *testing.T) {
	for name, body := range map[string]string{
		"no entity": `
[Auth]
  PublicKey = "` + authorityKeyHex + `"`,
		"bad level": `
[Entity]
  Name = "a"
  IdentityDir = "/tmp"
[Auth]
  PublicKey = "` + authorityKeyHex + `"
[Logging]
  Level = "LOUD"`,
		"bad cipher": `
[Entity]
  Name = "a"
  IdentityDir = "/tmp"
[Auth]
  PublicKey = "` + authorityKeyHex + `"
[Crypto]
  SessionCryptoSpec = "DES"`,
		"bad protocol": `
[Entity]
  Name = "a"
  IdentityDir = "/tmp"
  DistProtocol = "UDP"
[Auth]
  PublicKey = "` + authorityKeyHex + `"`,
		"bad authority key": `
[Entity]
  Name = "a"
  IdentityDir = "/tmp"
[Auth]
  PublicKey = "abcd"`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(body))
			require.Error(t, err)
		})
	}

	_, err := Load(nil)
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "securecomm.toml")
	require.NoError(t, os.WriteFile(f, []byte(`
[Entity]
  Name = "net1.server"
  IdentityDir = "/tmp/iotauth"
[Auth]
  Host = "auth.example"
  Port = 8080
  PublicKey = "`+authorityKeyHex+`"
[Server]
  Address = "0.0.0.0:9000"
[Metrics]
  Address = "127.0.0.1:9100"
`), 0600))

	cfg, err := LoadFile(f)
	require.NoError(t, err)
	require.Equal(t, "http://auth.example:8080", cfg.Auth.URL())
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Address)
	require.Equal(t, "127.0.0.1:9100", cfg.Metrics.Address)
}

func TestAuthorityConfig(t *testing.T) {
	require := require.New(t)

	cfg, err := LoadAuthority([]byte(`
[Authority]
  DataDir = "/tmp/authd"

[Keys]
  SessionKeyLifetime = 120
  SessionCryptoSpec = "XCHACHA20-POLY1305"

[[Entity]]
  Name = "net1.server"
  SigningKey = "` + authorityKeyHex + `"
  AgreementKey = "` + authorityKeyHex + `"
`))
	require.NoError(err)
	require.Equal(defaultAuthorityAddress, cfg.Authority.Address)
	require.Equal(2*time.Minute, cfg.Keys.SessionLifetime())
	require.Equal(24*time.Hour, cfg.Keys.DistributionLifetime())
	require.Equal(domain.CipherXChaCha20Poly1305, cfg.Keys.Session().Cipher)
	require.Len(cfg.Entity, 1)

	_, err = LoadAuthority([]byte(`
[Authority]
  DataDir = "/tmp/authd"
[[Entity]]
  Name = "dup"
  SigningKey = "` + authorityKeyHex + `"
  AgreementKey = "` + authorityKeyHex + `"
[[Entity]]
  Name = "dup"
  SigningKey = "` + authorityKeyHex + `"
  AgreementKey = "` + authorityKeyHex + `"
`))
	require.Error(err)
}
