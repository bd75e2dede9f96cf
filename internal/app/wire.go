package app

import (
	"github.com/lsmon/iotauth/internal/authclient"
	"github.com/lsmon/iotauth/internal/config"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/instrument"
	"github.com/lsmon/iotauth/internal/log"
	"github.com/lsmon/iotauth/internal/services/identity"
	"github.com/lsmon/iotauth/internal/store"
)

// Wire bundles the dependencies shared by every command.
type Wire struct {
	Config   *config.Config
	Log      *log.Backend
	Identity domain.IdentityService
	Metrics  *instrument.Metrics
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg *config.Config) (*Wire, error) {
	backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	return &Wire{
		Config:   cfg,
		Log:      backend,
		Identity: identity.New(store.NewIdentityFileStore(cfg.Entity.IdentityDir)),
		Metrics:  instrument.New(),
	}, nil
}

// AuthClient returns an authority client acting as id.
func (w *Wire) AuthClient(id domain.Identity) *authclient.Client {
	return authclient.New(authclient.Config{
		BaseURL:      w.Config.Auth.URL(),
		AuthorityKey: w.Config.Auth.SigningKey(),
		Identity:     id,
		Timeout:      w.Config.Auth.RequestTimeout(),
		Log:          w.Log.GetLogger("authclient"),
	})
}
