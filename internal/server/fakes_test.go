package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/log"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeConn struct {
	id    domain.ConnID
	key   domain.SessionKey
	valid bool

	mu      sync.Mutex
	sends   [][]byte
	raws    [][]byte
	sendErr error
	rawErr  error
	closed  bool
}

func newFakeConn(id domain.ConnID, key domain.SessionKey) *fakeConn {
	return &fakeConn{id: id, key: key, valid: true}
}

func (c *fakeConn) ID() domain.ConnID { return c.id }

func (c *fakeConn) SessionKey() domain.SessionKey { return c.key }

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + int(c.id)}
}

func (c *fakeConn) IsKeyStillValid() bool { return c.valid }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sends = append(c.sends, data)
	return nil
}

func (c *fakeConn) SendRaw(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rawErr != nil {
		return c.rawErr
	}
	c.raws = append(c.raws, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() (sends, raws [][]byte, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sends...), append([][]byte(nil), c.raws...), c.closed
}

type fakeHandle struct {
	conn *fakeConn
	err  error

	mu        sync.Mutex
	completed []domain.SessionKey
}

func (h *fakeHandle) Complete(key domain.SessionKey) (domain.SecureConn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, key)
	if h.err != nil {
		return nil, h.err
	}
	h.conn.key = key
	return h.conn, nil
}

func (h *fakeHandle) RemoteAddr() net.Addr { return h.conn.RemoteAddr() }

func (h *fakeHandle) completions() []domain.SessionKey {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.SessionKey(nil), h.completed...)
}

type fakeClient struct {
	mu       sync.Mutex
	requests []domain.SessionKeyRequest
	respond  func(domain.SessionKeyRequest) (domain.SessionKeyResponse, error)
}

func (c *fakeClient) RequestSessionKeys(_ context.Context, req domain.SessionKeyRequest) (domain.SessionKeyResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	respond := c.respond
	c.mu.Unlock()
	if respond == nil {
		return domain.SessionKeyResponse{}, errors.New("no responder")
	}
	return respond(req)
}

func (c *fakeClient) sent() []domain.SessionKeyRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SessionKeyRequest(nil), c.requests...)
}

// respondWith returns the given keys for every request.
func respondWith(keys ...domain.SessionKey) func(domain.SessionKeyRequest) (domain.SessionKeyResponse, error) {
	return func(domain.SessionKeyRequest) (domain.SessionKeyResponse, error) {
		return domain.SessionKeyResponse{Keys: keys}, nil
	}
}

func testKey(id domain.KeyID) domain.SessionKey {
	b := byte(id)
	return domain.SessionKey{
		ID:     id,
		Key:    []byte{b, b, b, b, b, b, b, b, b, b, b, b, b, b, b, b},
		Expiry: time.Now().Add(time.Hour),
		Spec:   domain.CryptoSpec{Cipher: domain.CipherAES128GCM},
	}
}

// countingSealer records every seal and returns a frame naming the key and
// sequence number.
type countingSealer struct {
	mu    sync.Mutex
	calls []wire.SessionMessage
	err   error
}

func (s *countingSealer) seal(key domain.SessionKey, m wire.SessionMessage) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.calls = append(s.calls, m)
	return wire.SealSessionMessage(key, m)
}

func (s *countingSealer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// newSyncServer returns a server whose coordinator calls the client inline
// and handles the response inline, for driving components without the loop.
func newSyncServer(client domain.KeyDistributionClient, sealer *countingSealer) *Server {
	s := New(Config{
		EntityName:      "net1.server",
		CachedKeysGroup: 101,
		PubTopic:        "Ptopic",
		Log:             log.Discard().GetLogger("server"),
		Seal:            sealer.seal,
	}, client)
	s.coord.spawn = func(fn func()) { fn() }
	s.coord.deliver = func(fn func()) { fn() }
	return s
}
