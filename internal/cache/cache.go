// Package cache holds the session keys and the distribution key of the
// secure communication server.
package cache

import (
	"github.com/lsmon/iotauth/internal/domain"
)

// SessionKeyCache is the in-memory general pool of session keys plus the
// single current distribution key.
//
// It is not safe for concurrent use. The server's event loop owns it.
type SessionKeyCache struct {
	keys  []domain.SessionKey
	index map[domain.KeyID]int

	distKey *domain.DistributionKey
}

// New returns an empty cache.
func New() *SessionKeyCache {
	return &SessionKeyCache{index: make(map[domain.KeyID]int)}
}

// Store appends keys to the general pool in order and returns how many were
// added. A key whose identifier is already cached is ignored.
func (c *SessionKeyCache) Store(keys ...domain.SessionKey) int {
	added := 0
	for _, k := range keys {
		if _, ok := c.index[k.ID]; ok {
			continue
		}
		c.index[k.ID] = len(c.keys)
		c.keys = append(c.keys, k.Clone())
		added++
	}
	return added
}

// Lookup returns the key with identifier id. Expiry is not checked.
func (c *SessionKeyCache) Lookup(id domain.KeyID) (domain.SessionKey, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.SessionKey{}, false
	}
	return c.keys[i].Clone(), true
}

// First returns the oldest key in the pool. Broadcasts share a ciphertext
// among the connections bound to it.
func (c *SessionKeyCache) First() (domain.SessionKey, bool) {
	if len(c.keys) == 0 {
		return domain.SessionKey{}, false
	}
	return c.keys[0].Clone(), true
}

// Keys returns a snapshot of the pool in insertion order.
func (c *SessionKeyCache) Keys() []domain.SessionKey {
	out := make([]domain.SessionKey, len(c.keys))
	for i, k := range c.keys {
		out[i] = k.Clone()
	}
	return out
}

// Len returns the number of pooled keys.
func (c *SessionKeyCache) Len() int { return len(c.keys) }

// DistributionKey returns the current distribution key.
func (c *SessionKeyCache) DistributionKey() (domain.DistributionKey, bool) {
	if c.distKey == nil {
		return domain.DistributionKey{}, false
	}
	return c.distKey.Clone(), true
}

// SetDistributionKey replaces the distribution key. nil clears it.
func (c *SessionKeyCache) SetDistributionKey(k *domain.DistributionKey) {
	if k == nil {
		c.distKey = nil
		return
	}
	dk := k.Clone()
	c.distKey = &dk
}
