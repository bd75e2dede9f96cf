package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/server"
	"github.com/lsmon/iotauth/internal/transport"
)

// App is a running secure communication server.
type App struct {
	*Wire

	Server   *server.Server
	Listener *transport.Listener

	log        *logging.Logger
	metricsSrv *http.Server
}

// New unlocks the identity with passphrase and assembles the server.
func New(w *Wire, passphrase string) (*App, error) {
	id, err := w.Identity.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	distKey, err := w.Config.PermanentDistributionKey()
	if err != nil {
		return nil, err
	}

	srv := server.New(server.Config{
		EntityName:       domain.EntityName(w.Config.Entity.Name),
		CachedKeysGroup:  w.Config.Entity.CachedKeysGroup,
		PubTopic:         w.Config.Entity.PubTopic,
		PermanentDistKey: distKey,
		Log:              w.Log.GetLogger("server"),
		Metrics:          w.Metrics,
	}, w.AuthClient(id))

	ln := transport.NewListener(transport.Config{
		Address:          w.Config.Server.Address,
		HandshakeTimeout: w.Config.Server.HandshakeDeadline(),
		WriteTimeout:     w.Config.Server.WriteDeadline(),
		Log:              w.Log.GetLogger("transport"),
	}, srv)

	return &App{
		Wire:     w,
		Server:   srv,
		Listener: ln,
		log:      w.Log.GetLogger("app"),
	}, nil
}

// Start initializes the server, then starts the listener and the metrics
// endpoint.
func (a *App) Start() error {
	if err := a.Server.Initialize(); err != nil {
		return err
	}
	if err := a.Listener.Start(); err != nil {
		a.Server.Halt()
		return err
	}
	if addr := a.Config.Metrics.Address; addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			a.Listener.Halt()
			a.Server.Halt()
			return err
		}
		a.metricsSrv = &http.Server{Handler: a.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metricsSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Errorf("metrics: %v", err)
			}
		}()
		a.log.Noticef("metrics on http://%s/metrics", l.Addr())
	}
	return nil
}

// Halt stops accepting clients, then stops the server.
func (a *App) Halt() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.metricsSrv.Shutdown(ctx)
	}
	a.Listener.Halt()
	a.Server.Halt()
}
