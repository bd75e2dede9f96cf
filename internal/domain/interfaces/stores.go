package interfaces

import domaintypes "github.com/lsmon/iotauth/internal/domain/types"

// IdentityStore persists the entity's long-term keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
}
