package interfaces

import (
	"net"

	domaintypes "github.com/lsmon/iotauth/internal/domain/types"
)

// SecureConn is an established client connection bound to one session key.
// The bound key never changes for the lifetime of the connection.
type SecureConn interface {
	ID() domaintypes.ConnID
	SessionKey() domaintypes.SessionKey
	RemoteAddr() net.Addr

	// Send seals data with the connection's own key and writes it.
	Send(data []byte) error
	// SendRaw writes an already sealed frame verbatim.
	SendRaw(frame []byte) error
	// IsKeyStillValid reports whether the bound key is inside its validity
	// window.
	IsKeyStillValid() bool
	Close() error
}

// HandshakeHandle is the transport's half of a connection that is waiting for
// its session key.
type HandshakeHandle interface {
	// Complete binds key to the connection, sends the handshake confirmation
	// and returns the established connection.
	Complete(key domaintypes.SessionKey) (SecureConn, error)
	RemoteAddr() net.Addr
}

// HandshakeRequest is a client's connection-setup request.
type HandshakeRequest struct {
	KeyID   domaintypes.KeyID
	Payload []byte
	Handle  HandshakeHandle
}

// TransportHandler receives the transport's lifecycle callbacks.
type TransportHandler interface {
	OnConnectionRequest(req HandshakeRequest)
	OnConnectionClosed(id domaintypes.ConnID)
	OnConnectionError(id domaintypes.ConnID, err error)
	OnDataReceived(id domaintypes.ConnID, data []byte)
	OnListening(addr net.Addr)
	OnListenError(err error)
}
