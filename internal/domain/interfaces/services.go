package interfaces

import domaintypes "github.com/lsmon/iotauth/internal/domain/types"

// IdentityService creates, retrieves, and inspects the entity identity.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.Identity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}
