package server

import (
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/cache"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/instrument"
	"github.com/lsmon/iotauth/internal/protocol/wire"
)

// FrameSealer seals a session message into a complete frame.
type FrameSealer func(key domain.SessionKey, m wire.SessionMessage) ([]byte, error)

// DispatchEngine delivers outbound messages to registered connections.
type DispatchEngine struct {
	registry *ConnectionRegistry
	cache    *cache.SessionKeyCache
	seal     FrameSealer
	log      *logging.Logger
	metrics  *instrument.Metrics

	// evict removes a connection whose write failed.
	evict func(conn domain.SecureConn, err error)
	// onError reports failures that do not involve a single connection.
	onError func(error)

	publishSeqNum uint64
}

// PublishSeqNum returns the sequence number the next shared-key broadcast
// will carry.
func (d *DispatchEngine) PublishSeqNum() uint64 { return d.publishSeqNum }

// Reset zeroes the publish sequence number.
func (d *DispatchEngine) Reset() { d.publishSeqNum = 0 }

// Send delivers msg to its target, or to every connection when it has none.
// A payload too large for one frame is rejected before any delivery.
func (d *DispatchEngine) Send(msg domain.OutboundMessage) error {
	if len(msg.Data) > wire.MaxMessageSize {
		d.metrics.Dropped("oversize")
		return fmt.Errorf("%w: %d bytes, at most %d", wire.ErrMessageTooLarge, len(msg.Data), wire.MaxMessageSize)
	}
	if msg.Target != nil {
		d.unicast(*msg.Target, msg.Data)
		return nil
	}
	d.broadcast(msg.Data)
	return nil
}

func (d *DispatchEngine) unicast(id domain.ConnID, data []byte) {
	conn, ok := d.registry.Get(id)
	if !ok {
		d.log.Debugf("socket #%d does not exist, message dropped", id)
		d.metrics.Dropped("absent")
		return
	}
	if !conn.IsKeyStillValid() {
		d.log.Debugf("socket #%d: session key expired, message dropped", id)
		d.metrics.Dropped("expired")
		return
	}
	d.sendIndividual(conn, data)
}

// broadcast sends data to every connection. Connections bound to the first
// pooled key all receive one frame sealed once with that key; the rest get
// individually sealed copies.
func (d *DispatchEngine) broadcast(data []byte) {
	d.metrics.Broadcast()

	shared, hasShared := d.cache.First()
	var (
		frame   []byte
		sealErr error
	)
	d.registry.ForEach(func(conn domain.SecureConn) {
		if !conn.IsKeyStillValid() {
			d.log.Debugf("socket #%d: session key expired, skipped", conn.ID())
			d.metrics.Dropped("expired")
			return
		}
		if !hasShared || conn.SessionKey().ID != shared.ID {
			d.sendIndividual(conn, data)
			return
		}

		if frame == nil && sealErr == nil {
			frame, sealErr = d.seal(shared, wire.SessionMessage{Seq: d.publishSeqNum, Data: data})
			if sealErr != nil {
				d.onError(fmt.Errorf("seal broadcast with key %d: %w", shared.ID, sealErr))
			} else {
				d.publishSeqNum++
				d.metrics.SharedKeySeal()
			}
		}
		if sealErr != nil {
			d.metrics.Dropped("seal")
			return
		}
		if err := conn.SendRaw(frame); err != nil {
			d.evict(conn, err)
			return
		}
		d.metrics.RawSend()
	})
}

func (d *DispatchEngine) sendIndividual(conn domain.SecureConn, data []byte) {
	err := conn.Send(data)
	switch {
	case errors.Is(err, wire.ErrFrameTooLarge), errors.Is(err, wire.ErrMessageTooLarge):
		// Nothing was written, the connection is intact.
		d.metrics.Dropped("oversize")
		d.onError(fmt.Errorf("socket #%d: message not sent: %w", conn.ID(), err))
		return
	case err != nil:
		d.evict(conn, err)
		return
	}
	d.metrics.IndividualSend()
}
