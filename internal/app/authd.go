package app

import (
	"github.com/lsmon/iotauth/internal/authority"
	"github.com/lsmon/iotauth/internal/config"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/log"
)

// NewAuthority builds the development authority described by cfg, signing
// with the key stored in its data directory.
func NewAuthority(cfg *config.AuthorityConfig, backend *log.Backend) (*authority.Authority, error) {
	signingKey, err := authority.LoadSigningKey(cfg.Authority.DataDir)
	if err != nil {
		return nil, err
	}

	entities := make([]authority.Entity, 0, len(cfg.Entity))
	for _, e := range cfg.Entity {
		dk, err := e.DistributionKey(cfg.Keys.Distribution())
		if err != nil {
			return nil, err
		}
		signing, agreement := e.Keys()
		entities = append(entities, authority.Entity{
			Name:            domain.EntityName(e.Name),
			SigningKey:      signing,
			AgreementKey:    agreement,
			DistributionKey: dk,
		})
	}

	return authority.New(authority.Config{
		SigningKey:           signingKey,
		Entities:             entities,
		SessionSpec:          cfg.Keys.Session(),
		DistributionSpec:     cfg.Keys.Distribution(),
		SessionLifetime:      cfg.Keys.SessionLifetime(),
		DistributionLifetime: cfg.Keys.DistributionLifetime(),
		Log:                  backend.GetLogger("authority"),
	})
}
