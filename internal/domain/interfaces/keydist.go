package interfaces

import (
	"context"

	domaintypes "github.com/lsmon/iotauth/internal/domain/types"
)

// KeyDistributionClient is how we talk to the authority.
type KeyDistributionClient interface {
	RequestSessionKeys(
		ctx context.Context,
		req domaintypes.SessionKeyRequest,
	) (domaintypes.SessionKeyResponse, error)
}
