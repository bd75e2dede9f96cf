package domain

import (
	interfaces "github.com/lsmon/iotauth/internal/domain/interfaces"
	types "github.com/lsmon/iotauth/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	EntityName         = types.EntityName
	Fingerprint        = types.Fingerprint
	KeyID              = types.KeyID
	ConnID             = types.ConnID
	CryptoSpec         = types.CryptoSpec
	SessionKey         = types.SessionKey
	DistributionKey    = types.DistributionKey
	Purpose            = types.Purpose
	OutboundMessage    = types.OutboundMessage
	Received           = types.Received
	SessionKeyRequest  = types.SessionKeyRequest
	SessionKeyResponse = types.SessionKeyResponse
	Identity           = types.Identity
	X25519Public       = types.X25519Public
	X25519Private      = types.X25519Private
	Ed25519Public      = types.Ed25519Public
	Ed25519Private     = types.Ed25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	SecureConn            = interfaces.SecureConn
	HandshakeHandle       = interfaces.HandshakeHandle
	HandshakeRequest      = interfaces.HandshakeRequest
	TransportHandler      = interfaces.TransportHandler
	KeyDistributionClient = interfaces.KeyDistributionClient
	IdentityStore         = interfaces.IdentityStore
	IdentityService       = interfaces.IdentityService
)

// Re-exported constructors and constants.
const (
	KeyIDSize               = types.KeyIDSize
	CipherAES128GCM         = types.CipherAES128GCM
	CipherAES256GCM         = types.CipherAES256GCM
	CipherXChaCha20Poly1305 = types.CipherXChaCha20Poly1305
)

var (
	KeyIDFromBytes    = types.KeyIDFromBytes
	PurposeKeyID      = types.PurposeKeyID
	PurposeCachedKeys = types.PurposeCachedKeys
	PurposePubTopic   = types.PurposePubTopic
	PurposeGroup      = types.PurposeGroup
	Broadcast         = types.Broadcast
	Unicast           = types.Unicast
)
