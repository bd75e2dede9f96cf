package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

var (
	// ErrHandshakeAbandoned is returned by Complete after the client gave up
	// or the handshake deadline passed.
	ErrHandshakeAbandoned = errors.New("transport: handshake abandoned")
	// ErrClosed is returned by writes on a closed connection.
	ErrClosed = errors.New("transport: connection closed")
)

// pendingConn is an accepted client that has not yet been bound to a key. It
// is the domain.HandshakeHandle given to the handler.
type pendingConn struct {
	l  *Listener
	id domain.ConnID
	nc net.Conn

	mu        sync.Mutex
	hello     wire.Hello
	conn      *Conn
	abandoned bool
	done      chan struct{}
}

var _ domain.HandshakeHandle = (*pendingConn)(nil)

func newPendingConn(l *Listener, id domain.ConnID, nc net.Conn) *pendingConn {
	return &pendingConn{l: l, id: id, nc: nc, done: make(chan struct{})}
}

func (pc *pendingConn) RemoteAddr() net.Addr { return pc.nc.RemoteAddr() }

// Complete binds key, writes HANDSHAKE_2 and returns the established Conn.
func (pc *pendingConn) Complete(key domain.SessionKey) (domain.SecureConn, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.abandoned {
		return nil, fmt.Errorf("%w: %s", ErrHandshakeAbandoned, pc.nc.RemoteAddr())
	}
	if pc.conn != nil {
		return pc.conn, nil
	}

	serverNonce, err := wire.NewNonce()
	if err != nil {
		return nil, err
	}
	frame, err := wire.SealHelloReply(key, wire.HelloReply{ReplyNonce: pc.hello.Nonce, Nonce: serverNonce})
	if err != nil {
		return nil, err
	}
	c := &Conn{
		id:           pc.id,
		key:          key.Clone(),
		nc:           pc.nc,
		writeTimeout: pc.l.cfg.WriteTimeout,
		now:          pc.l.cfg.Now,
	}
	if err := c.write(frame); err != nil {
		pc.abandoned = true
		pc.nc.Close()
		return nil, err
	}
	pc.conn = c
	close(pc.done)
	return c, nil
}

func (pc *pendingConn) abandon() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.conn != nil {
		return false
	}
	pc.abandoned = true
	return true
}

func (pc *pendingConn) run() {
	l := pc.l
	hello, payload, err := l.readHello(pc.nc)
	if err != nil {
		l.log.Debugf("%s: handshake: %v", pc.nc.RemoteAddr(), err)
		pc.nc.Close()
		return
	}
	pc.mu.Lock()
	pc.hello = hello
	pc.mu.Unlock()

	l.log.Debugf("%s requests key %d", pc.nc.RemoteAddr(), hello.KeyID)
	l.handler.OnConnectionRequest(domain.HandshakeRequest{
		KeyID:   hello.KeyID,
		Payload: payload,
		Handle:  pc,
	})

	timer := time.NewTimer(l.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case <-pc.done:
	case <-timer.C:
		if pc.abandon() {
			l.log.Infof("%s: handshake for key %d timed out", pc.nc.RemoteAddr(), hello.KeyID)
			pc.nc.Close()
			return
		}
	case <-l.HaltCh():
		if pc.abandon() {
			pc.nc.Close()
			return
		}
	}

	pc.conn.readLoop(l)
}

// Conn is an established client connection bound to one session key.
type Conn struct {
	id           domain.ConnID
	key          domain.SessionKey
	nc           net.Conn
	writeTimeout time.Duration
	now          func() time.Time

	mu     sync.Mutex
	seq    uint64
	closed bool
}

var _ domain.SecureConn = (*Conn)(nil)

func (c *Conn) ID() domain.ConnID { return c.id }

func (c *Conn) SessionKey() domain.SessionKey { return c.key.Clone() }

func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// IsKeyStillValid reports whether the bound key has not yet expired.
func (c *Conn) IsKeyStillValid() bool { return c.key.ValidAt(c.now()) }

// Send seals data with the connection key under the connection's own
// sequence number.
func (c *Conn) Send(data []byte) error {
	if len(data) > wire.MaxMessageSize {
		return wire.ErrMessageTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	frame, err := wire.SealSessionMessage(c.key, wire.SessionMessage{Seq: c.seq, Data: data})
	if err != nil {
		return err
	}
	if err := c.writeLocked(frame); err != nil {
		return err
	}
	c.seq++
	return nil
}

// SendRaw writes a frame that is already sealed.
func (c *Conn) SendRaw(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(frame)
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}

func (c *Conn) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(frame)
}

func (c *Conn) writeLocked(frame []byte) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.nc.SetWriteDeadline(c.now().Add(c.writeTimeout)); err != nil {
		return err
	}
	_, err := c.nc.Write(frame)
	return err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) readLoop(l *Listener) {
	if err := c.nc.SetReadDeadline(time.Time{}); err != nil {
		l.handler.OnConnectionError(c.id, err)
		return
	}
	for {
		f, err := wire.ReadFrame(c.nc)
		if err != nil {
			switch {
			case c.isClosed():
				l.log.Debugf("conn %d: closed locally", c.id)
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				l.handler.OnConnectionClosed(c.id)
			default:
				l.handler.OnConnectionError(c.id, err)
			}
			c.Close()
			return
		}
		if err := f.Expect(wire.SecureCommMsg); err != nil {
			l.handler.OnConnectionError(c.id, err)
			c.Close()
			return
		}
		m, err := wire.OpenSessionMessage(c.key, f.Payload)
		if err != nil {
			l.handler.OnConnectionError(c.id, err)
			c.Close()
			return
		}
		l.handler.OnDataReceived(c.id, m.Data)
	}
}
