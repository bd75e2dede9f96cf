package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/lsmon/iotauth/internal/domain"
)

// ShowKeys describes the distribution key and the pooled session keys.
func (s *Server) ShowKeys() (string, error) {
	var out string
	err := s.call(func() { out = s.describeKeys() })
	return out, err
}

// ShowSockets describes the registered connections.
func (s *Server) ShowSockets() (string, error) {
	var out string
	err := s.call(func() { out = s.describeSockets() })
	return out, err
}

func (s *Server) describeKeys() string {
	var b strings.Builder
	if dk, ok := s.cache.DistributionKey(); ok {
		fmt.Fprintf(&b, "distribution key: %s\n", dk)
	} else {
		b.WriteString("distribution key: none\n")
	}
	now := s.cfg.Now()
	keys := s.cache.Keys()
	fmt.Fprintf(&b, "session keys (%d):\n", len(keys))
	for i, k := range keys {
		state := "valid"
		if !k.ValidAt(now) {
			state = "expired"
		}
		shared := ""
		if i == 0 {
			shared = " shared"
		}
		fmt.Fprintf(&b, "  id:%d spec:%s expiry:%s %s%s\n", k.ID, k.Spec, k.Expiry.Format(time.RFC3339), state, shared)
	}
	return b.String()
}

func (s *Server) describeSockets() string {
	var b strings.Builder
	fmt.Fprintf(&b, "connected clients (%d):\n", s.registry.Len())
	s.registry.ForEach(func(conn domain.SecureConn) {
		state := "valid"
		if !conn.IsKeyStillValid() {
			state = "expired"
		}
		fmt.Fprintf(&b, "  socket #%d %s key:%d %s\n", conn.ID(), conn.RemoteAddr(), conn.SessionKey().ID, state)
	})
	return b.String()
}
