package app_test

import (
	"context"
	"encoding/hex"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/app"
	"github.com/lsmon/iotauth/internal/authority"
	"github.com/lsmon/iotauth/internal/config"
	"github.com/lsmon/iotauth/internal/crypto"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/log"
	"github.com/lsmon/iotauth/internal/server"
	"github.com/lsmon/iotauth/internal/transport"
)

const passphrase = "Correct-Horse-9-Battery"

func TestAppServesClients(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	authPriv, authPub, err := crypto.GenerateEd25519()
	require.NoError(err)

	cfg, err := config.Load([]byte(`
[Entity]
  Name = "net1.server"
  IdentityDir = "` + filepath.ToSlash(filepath.Join(dir, "id")) + `"
[Auth]
  PublicKey = "` + hex.EncodeToString(authPub[:]) + `"
[Server]
  Address = "127.0.0.1:0"
[Logging]
  Disable = true
`))
	require.NoError(err)

	w, err := app.NewWire(cfg)
	require.NoError(err)
	_, _, err = w.Identity.GenerateIdentity(passphrase)
	require.NoError(err)
	id, err := w.Identity.LoadIdentity(passphrase)
	require.NoError(err)

	auth, err := authority.New(authority.Config{
		SigningKey:           authPriv,
		Entities:             []authority.Entity{{Name: "net1.server", SigningKey: id.EdPub, AgreementKey: id.XPub}},
		SessionSpec:          cfg.Crypto.Session(),
		DistributionSpec:     cfg.Crypto.Distribution(),
		SessionLifetime:      time.Hour,
		DistributionLifetime: time.Hour,
		Log:                  log.Discard().GetLogger("authority"),
	})
	require.NoError(err)
	hs := httptest.NewServer(auth.Handler())
	defer hs.Close()
	cfg.Auth.Host, cfg.Auth.Port = splitHostPort(t, hs.Listener.Addr().String())

	_, err = app.New(w, "Wrong-Passphrase-1")
	require.Error(err)

	a, err := app.New(w, passphrase)
	require.NoError(err)
	require.NoError(a.Start())
	defer a.Halt()

	// The server's own keys double as client keys in this test.
	resp, err := w.AuthClient(id).RequestSessionKeys(context.Background(), domain.SessionKeyRequest{
		RequesterName: "net1.server",
		Purpose:       domain.PurposeGroup("Clients"),
		NumKeys:       1,
	})
	require.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := transport.Dial(ctx, a.Listener.Addr().String(), resp.Keys[0])
	require.NoError(err)
	defer c.Close()

	require.Eventually(func() bool {
		out, err := a.Server.ShowSockets()
		return err == nil && out != "connected clients (0):\n"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(a.Server.ProvideInput(server.PortToSend, domain.Broadcast([]byte("hello"))))
	require.NoError(c.SetReadDeadline(time.Now().Add(5 * time.Second)))
	m, err := c.Receive()
	require.NoError(err)
	require.Equal([]byte("hello"), m.Data)
}
