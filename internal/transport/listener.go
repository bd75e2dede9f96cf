package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/protocol/wire"
	"github.com/lsmon/iotauth/internal/worker"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

// Config configures a Listener.
type Config struct {
	Address string

	// HandshakeTimeout bounds the wait for HANDSHAKE_1 and for the handler
	// to complete the handshake.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	Log *logging.Logger

	// Now defaults to time.Now. Conns use it to check key validity.
	Now func() time.Time
}

// Listener accepts secure communication clients.
type Listener struct {
	worker.Worker

	cfg     Config
	log     *logging.Logger
	handler domain.TransportHandler

	ln     net.Listener
	nextID atomic.Uint64

	mu    sync.Mutex
	conns map[*pendingConn]struct{}
}

// NewListener returns a listener reporting to handler. Call Start to begin
// accepting.
func NewListener(cfg Config, handler domain.TransportHandler) *Listener {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &Listener{
		cfg:     cfg,
		log:     cfg.Log,
		handler: handler,
		conns:   make(map[*pendingConn]struct{}),
	}
	if l.log == nil {
		l.log = logging.MustGetLogger("transport")
	}
	return l
}

// Start binds the listen address and starts accepting. Bind failures are
// returned and also reported to OnListenError.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		l.handler.OnListenError(err)
		return err
	}
	l.ln = ln
	l.log.Noticef("listening on %s", ln.Addr())
	l.handler.OnListening(ln.Addr())

	l.Go(l.acceptWorker)
	l.Go(func() {
		<-l.HaltCh()
		l.ln.Close()
		l.closeAll()
	})
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) acceptWorker() {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.HaltCh():
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.log.Warningf("accept: %v", err)
				continue
			}
			l.log.Errorf("accept: %v", err)
			l.handler.OnListenError(err)
			return
		}

		id := domain.ConnID(l.nextID.Add(1))
		pc := newPendingConn(l, id, nc)
		if !l.track(pc) {
			nc.Close()
			return
		}
		l.Go(func() {
			defer l.untrack(pc)
			pc.run()
		})
	}
}

func (l *Listener) track(pc *pendingConn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.HaltCh():
		return false
	default:
	}
	l.conns[pc] = struct{}{}
	return true
}

func (l *Listener) untrack(pc *pendingConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, pc)
}

func (l *Listener) closeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for pc := range l.conns {
		pc.nc.Close()
	}
}

// readHello reads and decodes the client's HANDSHAKE_1.
func (l *Listener) readHello(nc net.Conn) (wire.Hello, []byte, error) {
	if err := nc.SetReadDeadline(l.cfg.Now().Add(l.cfg.HandshakeTimeout)); err != nil {
		return wire.Hello{}, nil, err
	}
	f, err := wire.ReadFrame(nc)
	if err != nil {
		return wire.Hello{}, nil, err
	}
	if err := f.Expect(wire.Handshake1); err != nil {
		return wire.Hello{}, nil, err
	}
	h, err := wire.DecodeHello(f.Payload)
	return h, f.Payload, err
}
