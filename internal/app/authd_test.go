package app_test

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/app"
	"github.com/lsmon/iotauth/internal/authority"
	"github.com/lsmon/iotauth/internal/config"
	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/log"
)

func TestNewAuthorityFromConfig(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	_, edPub, err := crypto.GenerateEd25519()
	require.NoError(err)
	_, xPub, err := crypto.GenerateX25519()
	require.NoError(err)

	cfg, err := config.LoadAuthority([]byte(`
[Authority]
  DataDir = "` + filepath.ToSlash(dir) + `"
[[Entity]]
  Name = "net1.client"
  SigningKey = "` + hex.EncodeToString(edPub[:]) + `"
  AgreementKey = "` + hex.EncodeToString(xPub[:]) + `"
`))
	require.NoError(err)

	_, err = app.NewAuthority(cfg, log.Discard())
	require.Error(err, "no signing key yet")

	pub, err := authority.CreateSigningKey(dir)
	require.NoError(err)

	a, err := app.NewAuthority(cfg, log.Discard())
	require.NoError(err)
	require.Equal(pub, a.PublicKey())
}
