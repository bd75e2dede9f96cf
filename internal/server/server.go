package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/lsmon/iotauth/internal/cache"
	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/instrument"
	"github.com/lsmon/iotauth/internal/protocol/wire"
	"github.com/lsmon/iotauth/internal/worker"
)

// PortToSend is the input port carrying domain.OutboundMessage values.
const PortToSend = "toSend"

const eventQueueSize = 64

var (
	// ErrHalted is returned by management calls after Halt.
	ErrHalted = errors.New("server: halted")
	// ErrNotInitialized is returned by management calls before Initialize.
	ErrNotInitialized = errors.New("server: not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("server: already initialized")
	// ErrUnknownPort is returned by ProvideInput for ports other than toSend.
	ErrUnknownPort = errors.New("server: unknown input port")
)

// Config configures a Server.
type Config struct {
	EntityName domain.EntityName

	// CachedKeysGroup and PubTopic are the purposes used by the prefetch
	// operations.
	CachedKeysGroup int
	PubTopic        string

	// PermanentDistKey, when set, is installed as the distribution key on
	// Initialize.
	PermanentDistKey *domain.DistributionKey

	Log     *logging.Logger
	Metrics *instrument.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
	// Seal defaults to wire.SealSessionMessage.
	Seal FrameSealer
}

// Server is the secure communication server. It implements
// domain.TransportHandler.
type Server struct {
	worker.Worker

	cfg     Config
	log     *logging.Logger
	metrics *instrument.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	eventCh chan func()

	startMu sync.Mutex
	started bool

	cache    *cache.SessionKeyCache
	registry *ConnectionRegistry
	coord    *KeyRequestCoordinator
	mediator *HandshakeMediator
	dispatch *DispatchEngine
	events   *EventSink
}

var _ domain.TransportHandler = (*Server)(nil)

// New returns a server that obtains keys through client. Call Initialize to
// start it.
func New(cfg Config, client domain.KeyDistributionClient) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Seal == nil {
		cfg.Seal = wire.SealSessionMessage
	}
	s := &Server{
		cfg:      cfg,
		log:      cfg.Log,
		metrics:  cfg.Metrics,
		eventCh:  make(chan func(), eventQueueSize),
		cache:    cache.New(),
		registry: NewConnectionRegistry(),
		events:   NewEventSink(),
	}
	if s.log == nil {
		s.log = logging.MustGetLogger("server")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.coord = &KeyRequestCoordinator{
		ctx:     s.ctx,
		client:  client,
		cache:   s.cache,
		name:    cfg.EntityName,
		group:   cfg.CachedKeysGroup,
		topic:   cfg.PubTopic,
		log:     s.log,
		metrics: s.metrics,
		spawn:   s.Go,
		deliver: func(fn func()) { s.post(fn) },
		onError: s.reportError,
		pending: make(map[uint64]Correlation),

		inflight: make(map[domain.KeyID]uint64),
		joined:   make(map[uint64][]HandshakeCompletion),
	}
	s.mediator = &HandshakeMediator{
		cache:     s.cache,
		coord:     s.coord,
		now:       cfg.Now,
		log:       s.log,
		metrics:   s.metrics,
		establish: s.establish,
		onError:   s.reportError,
	}
	s.dispatch = &DispatchEngine{
		registry: s.registry,
		cache:    s.cache,
		seal:     cfg.Seal,
		log:      s.log,
		metrics:  s.metrics,
		evict:    s.evict,
		onError:  s.reportError,
	}
	return s
}

// Initialize resets the distribution key, the outputs and the publish
// sequence number, then starts the event loop.
func (s *Server) Initialize() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return ErrAlreadyInitialized
	}
	select {
	case <-s.HaltCh():
		return ErrHalted
	default:
	}

	s.cache.SetDistributionKey(s.cfg.PermanentDistKey)
	s.events.Reset()
	s.dispatch.Reset()
	s.log.Noticef("initializing secure communication server for %s", s.cfg.EntityName)

	s.started = true
	s.Go(s.worker)
	return nil
}

// Halt stops the event loop, waits for outstanding work and closes every
// registered connection.
func (s *Server) Halt() {
	s.cancel()
	s.Worker.Halt()
	s.registry.ForEach(func(conn domain.SecureConn) {
		s.registry.Unregister(conn.ID())
		conn.Close()
	})
	s.metrics.SetConnections(0)
}

// EntityName returns the name this server requests keys under.
func (s *Server) EntityName() domain.EntityName { return s.cfg.EntityName }

// ProvideInput feeds value to an input port. The toSend port takes a
// domain.OutboundMessage. The call returns once the message was dispatched,
// or with wire.ErrMessageTooLarge if it was rejected.
func (s *Server) ProvideInput(port string, value any) error {
	if port != PortToSend {
		return fmt.Errorf("%w: %q", ErrUnknownPort, port)
	}
	msg, ok := value.(domain.OutboundMessage)
	if !ok {
		return fmt.Errorf("server: %s expects domain.OutboundMessage, got %T", PortToSend, value)
	}
	var sendErr error
	if err := s.call(func() { sendErr = s.dispatch.Send(msg) }); err != nil {
		return err
	}
	return sendErr
}

// LatestOutput returns the last value emitted on the named output.
func (s *Server) LatestOutput(name string) (any, bool) { return s.events.Latest(name) }

// SetOutputHandler registers h to receive every value emitted on name.
// Handlers run on the event loop and must not call back into the Server.
func (s *Server) SetOutputHandler(name string, h OutputHandler) {
	s.events.SetHandler(name, h)
}

// PrefetchKeysForFutureClients requests n keys for the configured client
// group into the general pool.
func (s *Server) PrefetchKeysForFutureClients(n int) error {
	var err error
	if cerr := s.call(func() { _, err = s.coord.PrefetchForFutureClients(n) }); cerr != nil {
		return cerr
	}
	return err
}

// PrefetchKeysForPublish requests n keys for publishing on topic into the
// general pool. An empty topic uses the configured one.
func (s *Server) PrefetchKeysForPublish(n int, topic string) error {
	var err error
	if cerr := s.call(func() { _, err = s.coord.PrefetchForPublish(n, topic) }); cerr != nil {
		return cerr
	}
	return err
}

// PublishSeqNum returns the sequence number of the next shared-key
// broadcast.
func (s *Server) PublishSeqNum() (uint64, error) {
	var n uint64
	err := s.call(func() { n = s.dispatch.PublishSeqNum() })
	return n, err
}

// OnConnectionRequest implements domain.TransportHandler.
func (s *Server) OnConnectionRequest(req domain.HandshakeRequest) {
	s.post(func() { s.mediator.HandleRequest(req) })
}

// OnConnectionClosed implements domain.TransportHandler.
func (s *Server) OnConnectionClosed(id domain.ConnID) {
	s.post(func() {
		if _, ok := s.registry.Unregister(id); !ok {
			return
		}
		s.metrics.SetConnections(s.registry.Len())
		s.events.Emit(OutputConnection, fmt.Sprintf("secure connection with the client closed: socket #%d closed", id))
	})
}

// OnConnectionError implements domain.TransportHandler.
func (s *Server) OnConnectionError(id domain.ConnID, err error) {
	s.post(func() {
		if conn, ok := s.registry.Unregister(id); ok {
			conn.Close()
			s.metrics.SetConnections(s.registry.Len())
		}
		s.log.Warningf("socket #%d: %v", id, err)
		s.events.Emit(OutputError, fmt.Sprintf("Error in secure server socket #%d details: %v", id, err))
	})
}

// OnDataReceived implements domain.TransportHandler.
func (s *Server) OnDataReceived(id domain.ConnID, data []byte) {
	s.post(func() {
		s.log.Debugf("socket #%d: received %d bytes", id, len(data))
		s.events.Emit(OutputReceived, domain.Received{ConnID: id, Data: data})
	})
}

// OnListening implements domain.TransportHandler.
func (s *Server) OnListening(addr net.Addr) {
	s.post(func() {
		s.events.Emit(OutputListening, addr.String())
	})
}

// OnListenError implements domain.TransportHandler.
func (s *Server) OnListenError(err error) {
	s.post(func() {
		s.log.Errorf("listener: %v", err)
		s.events.Emit(OutputError, fmt.Sprintf("Error in server - details: %v", err))
	})
}

func (s *Server) worker() {
	for {
		select {
		case <-s.HaltCh():
			s.log.Debugf("terminating gracefully")
			return
		case fn := <-s.eventCh:
			fn()
		}
	}
}

// post queues fn on the event loop. It reports false once halted.
func (s *Server) post(fn func()) bool {
	select {
	case s.eventCh <- fn:
		return true
	case <-s.HaltCh():
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (s *Server) call(fn func()) error {
	s.startMu.Lock()
	started := s.started
	s.startMu.Unlock()
	if !started {
		return ErrNotInitialized
	}

	done := make(chan struct{})
	if !s.post(func() { fn(); close(done) }) {
		return ErrHalted
	}
	select {
	case <-done:
		return nil
	case <-s.HaltCh():
		return ErrHalted
	}
}

// establish completes a handshake and registers the resulting connection.
func (s *Server) establish(h domain.HandshakeHandle, key domain.SessionKey) {
	conn, err := h.Complete(key)
	if err != nil {
		s.metrics.Handshake(instrument.HandshakeAbandoned)
		s.reportError(fmt.Errorf("handshake with %s using key %d: %w", h.RemoteAddr(), key.ID, err))
		return
	}
	s.onConnectionEstablished(conn)
}

func (s *Server) onConnectionEstablished(conn domain.SecureConn) {
	s.registry.Register(conn)
	s.metrics.Handshake(instrument.HandshakeCompleted)
	s.metrics.SetConnections(s.registry.Len())
	s.log.Infof("socket #%d: %s established with key %d", conn.ID(), conn.RemoteAddr(), conn.SessionKey().ID)
	s.events.Emit(OutputConnection, fmt.Sprintf("secure connection with the client established: socket #%d from %s with key %d",
		conn.ID(), conn.RemoteAddr(), conn.SessionKey().ID))
}

// evict drops a connection after a failed write.
func (s *Server) evict(conn domain.SecureConn, err error) {
	s.registry.Unregister(conn.ID())
	conn.Close()
	s.metrics.Eviction()
	s.metrics.SetConnections(s.registry.Len())
	s.log.Warningf("socket #%d: send failed, removed: %v", conn.ID(), err)
	s.events.Emit(OutputError, fmt.Sprintf("Error in secure server socket #%d details: send failed, client removed: %v", conn.ID(), err))
}

func (s *Server) reportError(err error) {
	s.log.Errorf("%v", err)
	s.events.Emit(OutputError, err.Error())
}
