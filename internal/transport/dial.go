package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

// ClientConn is the client side of a secure communication connection.
type ClientConn struct {
	nc  net.Conn
	key domain.SessionKey

	mu  sync.Mutex
	seq uint64
}

// Dial connects to addr and completes the handshake with key. The context
// bounds the whole handshake.
func Dial(ctx context.Context, addr string, key domain.SessionKey) (*ClientConn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		nc.SetDeadline(deadline)
	}

	nonce, err := wire.NewNonce()
	if err != nil {
		nc.Close()
		return nil, err
	}
	hello, err := wire.EncodeHello(wire.Hello{KeyID: key.ID, Nonce: nonce})
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := nc.Write(hello); err != nil {
		nc.Close()
		return nil, err
	}

	f, err := wire.ReadFrame(nc)
	if err == nil {
		err = f.Expect(wire.Handshake2)
	}
	if err == nil {
		_, err = wire.OpenHelloReply(key, f.Payload, nonce)
	}
	if err != nil {
		nc.Close()
		return nil, err
	}
	nc.SetDeadline(time.Time{})
	return &ClientConn{nc: nc, key: key.Clone()}, nil
}

// Receive reads the next session message.
func (c *ClientConn) Receive() (wire.SessionMessage, error) {
	f, err := wire.ReadFrame(c.nc)
	if err != nil {
		return wire.SessionMessage{}, err
	}
	if err := f.Expect(wire.SecureCommMsg); err != nil {
		return wire.SessionMessage{}, err
	}
	return wire.OpenSessionMessage(c.key, f.Payload)
}

// Send seals and writes data.
func (c *ClientConn) Send(data []byte) error {
	if len(data) > wire.MaxMessageSize {
		return wire.ErrMessageTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	frame, err := wire.SealSessionMessage(c.key, wire.SessionMessage{Seq: c.seq, Data: data})
	if err != nil {
		return err
	}
	if _, err := c.nc.Write(frame); err != nil {
		return err
	}
	c.seq++
	return nil
}

// SetReadDeadline sets the deadline for Receive.
func (c *ClientConn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

func (c *ClientConn) Close() error { return c.nc.Close() }
