package server

import (
	"slices"

	"github.com/lsmon/iotauth/internal/domain"
)

// ConnectionRegistry maps connection ids to established connections. Ids
// come from the transport and are never reused, so a vacated id stays
// vacant.
//
// It is not safe for concurrent use.
type ConnectionRegistry struct {
	conns map[domain.ConnID]domain.SecureConn
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[domain.ConnID]domain.SecureConn)}
}

// Register occupies the slot of conn.ID().
func (r *ConnectionRegistry) Register(conn domain.SecureConn) {
	r.conns[conn.ID()] = conn
}

// Unregister vacates id and returns what occupied it.
func (r *ConnectionRegistry) Unregister(id domain.ConnID) (domain.SecureConn, bool) {
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	return conn, ok
}

// Get returns the connection in slot id.
func (r *ConnectionRegistry) Get(id domain.ConnID) (domain.SecureConn, bool) {
	conn, ok := r.conns[id]
	return conn, ok
}

// Len returns the number of occupied slots.
func (r *ConnectionRegistry) Len() int { return len(r.conns) }

// IDs returns the occupied slot ids in ascending order.
func (r *ConnectionRegistry) IDs() []domain.ConnID {
	ids := make([]domain.ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ForEach calls f for each occupied slot in ascending id order. Slots that f
// vacates are not visited afterwards.
func (r *ConnectionRegistry) ForEach(f func(domain.SecureConn)) {
	for _, id := range r.IDs() {
		if conn, ok := r.conns[id]; ok {
			f(conn)
		}
	}
}
