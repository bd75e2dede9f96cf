package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/cache"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/instrument"
)

var (
	// ErrKeyIDMismatch is reported when the authority answers a handshake
	// escalation with a key other than the one the client asked for.
	ErrKeyIDMismatch = errors.New("server: session key id mismatch")
	// ErrInvalidKeyCount is returned for a request of fewer than one key.
	ErrInvalidKeyCount = errors.New("server: number of keys must be at least 1")
)

// Correlation says what to do with the keys returned for one request. It is
// either GeneralPool or HandshakeCompletion.
type Correlation interface {
	correlation()
}

// GeneralPool appends the returned keys to the session key cache.
type GeneralPool struct{}

// HandshakeCompletion completes a waiting handshake with the returned key.
type HandshakeCompletion struct {
	Pending  PendingHandshake
	Complete func(domain.SessionKey)
}

func (GeneralPool) correlation() {}

func (HandshakeCompletion) correlation() {}

// PendingHandshake is a client handshake waiting for its key to arrive from
// the authority.
type PendingHandshake struct {
	RequestedKeyID domain.KeyID
	Payload        []byte
	Handle         domain.HandshakeHandle
	RequestID      uint64
	Created        time.Time
}

// KeyRequestCoordinator sends session key requests to the authority and
// matches each response to the correlation recorded when it was sent.
//
// Requests run through spawn, off the event loop; responses come back
// through deliver, onto the loop. Every other method must be called on the
// loop.
type KeyRequestCoordinator struct {
	ctx     context.Context
	client  domain.KeyDistributionClient
	cache   *cache.SessionKeyCache
	name    domain.EntityName
	group   int
	topic   string
	log     *logging.Logger
	metrics *instrument.Metrics

	spawn   func(func())
	deliver func(func())
	onError func(error)

	pending map[uint64]Correlation
	nextID  uint64

	// inflight maps a key id to the handshake request fetching it, and
	// joined holds the further handshakes waiting on that request.
	inflight map[domain.KeyID]uint64
	joined   map[uint64][]HandshakeCompletion
}

// RequestKeys asks the authority for count keys for purpose. The returned id
// identifies the request in the correlation table. A HandshakeCompletion for
// a key id that is already being fetched joins that request instead of
// sending another one.
func (c *KeyRequestCoordinator) RequestKeys(purpose domain.Purpose, count int, corr Correlation) (uint64, error) {
	if count < 1 {
		return 0, ErrInvalidKeyCount
	}
	if hc, ok := corr.(HandshakeCompletion); ok {
		if id, ok := c.inflight[hc.Pending.RequestedKeyID]; ok {
			hc.Pending.RequestID = id
			c.joined[id] = append(c.joined[id], hc)
			c.log.Infof("request %d: handshake joined, key %d already requested", id, hc.Pending.RequestedKeyID)
			return id, nil
		}
	}
	c.nextID++
	id := c.nextID
	if hc, ok := corr.(HandshakeCompletion); ok {
		hc.Pending.RequestID = id
		corr = hc
		c.inflight[hc.Pending.RequestedKeyID] = id
	}
	c.pending[id] = corr

	req := domain.SessionKeyRequest{
		RequesterName: c.name,
		Purpose:       purpose,
		NumKeys:       count,
	}
	if dk, ok := c.cache.DistributionKey(); ok {
		req.DistributionKey = &dk
	}

	mode := "pool"
	if _, ok := corr.(HandshakeCompletion); ok {
		mode = "handshake"
	}
	c.metrics.KeyRequest(mode)
	c.log.Infof("request %d: %d keys for %s", id, count, purpose)

	c.spawn(func() {
		resp, err := c.client.RequestSessionKeys(c.ctx, req)
		c.deliver(func() { c.handleResponse(id, resp, err) })
	})
	return id, nil
}

// PrefetchForFutureClients fills the pool with keys that clients of the
// configured group will present.
func (c *KeyRequestCoordinator) PrefetchForFutureClients(n int) (uint64, error) {
	return c.RequestKeys(domain.PurposeCachedKeys(c.group), n, GeneralPool{})
}

// PrefetchForPublish fills the pool with keys for publishing on topic. An
// empty topic uses the configured one.
func (c *KeyRequestCoordinator) PrefetchForPublish(n int, topic string) (uint64, error) {
	if topic == "" {
		topic = c.topic
	}
	return c.RequestKeys(domain.PurposePubTopic(topic), n, GeneralPool{})
}

// Pending returns the number of requests awaiting a response.
func (c *KeyRequestCoordinator) Pending() int { return len(c.pending) }

func (c *KeyRequestCoordinator) handleResponse(id uint64, resp domain.SessionKeyResponse, err error) {
	corr, ok := c.pending[id]
	if !ok {
		c.log.Warningf("request %d: response for unknown request dropped", id)
		return
	}
	delete(c.pending, id)
	var joined []HandshakeCompletion
	if hc, ok := corr.(HandshakeCompletion); ok {
		joined = c.joined[id]
		delete(c.joined, id)
		delete(c.inflight, hc.Pending.RequestedKeyID)
	}

	if err != nil {
		c.metrics.KeyRequestFailed()
		c.onError(fmt.Errorf("session key request %d: %w", id, err))
		return
	}

	if resp.DistributionKey != nil {
		c.cache.SetDistributionKey(resp.DistributionKey)
		c.metrics.DistributionKeyRotated()
		c.log.Noticef("request %d: updated %s", id, resp.DistributionKey)
	}
	c.log.Infof("request %d: received %d keys", id, len(resp.Keys))

	switch corr := corr.(type) {
	case GeneralPool:
		added := c.cache.Store(resp.Keys...)
		if added != len(resp.Keys) {
			c.log.Warningf("request %d: %d of %d keys already cached", id, len(resp.Keys)-added, len(resp.Keys))
		}
	case HandshakeCompletion:
		want := corr.Pending.RequestedKeyID
		if len(resp.Keys) == 0 || resp.Keys[0].ID != want {
			got := "no key"
			if len(resp.Keys) > 0 {
				got = "key " + resp.Keys[0].ID.String()
			}
			c.metrics.KeyRequestFailed()
			c.onError(fmt.Errorf("%w: requested key %d, received %s", ErrKeyIDMismatch, want, got))
			return
		}
		c.log.Debugf("request %d: key %d is as expected", id, want)
		corr.Complete(resp.Keys[0])
		for _, hc := range joined {
			hc.Complete(resp.Keys[0])
		}
	default:
		panic(fmt.Sprintf("server: unhandled correlation %T", corr))
	}
}
