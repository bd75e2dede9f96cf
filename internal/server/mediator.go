package server

import (
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/cache"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/instrument"
)

// HandshakeMediator resolves the key a connecting client names. A cached,
// unexpired key completes the handshake at once; anything else is fetched
// from the authority, once per key id while a request for it is in flight.
type HandshakeMediator struct {
	cache   *cache.SessionKeyCache
	coord   *KeyRequestCoordinator
	now     func() time.Time
	log     *logging.Logger
	metrics *instrument.Metrics

	// establish completes the handshake of h with key.
	establish func(h domain.HandshakeHandle, key domain.SessionKey)
	onError   func(error)
}

// HandleRequest processes a client's connection request.
func (m *HandshakeMediator) HandleRequest(req domain.HandshakeRequest) {
	key, ok := m.cache.Lookup(req.KeyID)
	if ok && key.ValidAt(m.now()) {
		m.log.Debugf("%s: found key %d in cache", req.Handle.RemoteAddr(), req.KeyID)
		m.metrics.Handshake(instrument.HandshakeCached)
		m.establish(req.Handle, key)
		return
	}
	if ok {
		m.log.Debugf("%s: cached key %d has expired", req.Handle.RemoteAddr(), req.KeyID)
	}

	m.log.Infof("%s: key %d not cached, asking the authority", req.Handle.RemoteAddr(), req.KeyID)
	m.metrics.Handshake(instrument.HandshakeEscalated)
	pending := PendingHandshake{
		RequestedKeyID: req.KeyID,
		Payload:        req.Payload,
		Handle:         req.Handle,
		Created:        m.now(),
	}
	handle := req.Handle
	_, err := m.coord.RequestKeys(domain.PurposeKeyID(req.KeyID), 1, HandshakeCompletion{
		Pending:  pending,
		Complete: func(k domain.SessionKey) { m.establish(handle, k) },
	})
	if err != nil {
		m.onError(fmt.Errorf("key %d for %s: %w", req.KeyID, req.Handle.RemoteAddr(), err))
	}
}
