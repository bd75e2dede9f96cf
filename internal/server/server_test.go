package server

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/domain"
	"github.com/lsmon/iotauth/internal/instrument"
	"github.com/lsmon/iotauth/internal/log"
)

type outputs struct {
	mu     sync.Mutex
	values map[string][]any
}

func collect(s *Server, names ...string) *outputs {
	o := &outputs{values: make(map[string][]any)}
	for _, name := range names {
		name := name
		s.SetOutputHandler(name, func(v any) {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.values[name] = append(o.values[name], v)
		})
	}
	return o
}

func (o *outputs) get(name string) []any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]any(nil), o.values[name]...)
}

func newLoopServer(t *testing.T, client domain.KeyDistributionClient, cfg Config) *Server {
	t.Helper()
	cfg.EntityName = "net1.server"
	cfg.CachedKeysGroup = 101
	cfg.PubTopic = "Ptopic"
	cfg.Log = log.Discard().GetLogger("server")
	s := New(cfg, client)
	t.Cleanup(s.Halt)
	return s
}

func TestManagementBeforeInitialize(t *testing.T) {
	s := newLoopServer(t, &fakeClient{}, Config{})
	require.ErrorIs(t, s.ProvideInput(PortToSend, domain.Broadcast([]byte("x"))), ErrNotInitialized)
	_, err := s.ShowKeys()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitialize(t *testing.T) {
	require := require.New(t)
	dk := &domain.DistributionKey{Key: []byte("permanent-dist-k"), Spec: domain.CryptoSpec{Cipher: domain.CipherAES128GCM}}
	client := &fakeClient{respond: respondWith(testKey(1))}
	s := newLoopServer(t, client, Config{PermanentDistKey: dk, Metrics: instrument.New()})

	s.events.Emit(OutputError, "stale")
	require.NoError(s.Initialize())
	require.ErrorIs(s.Initialize(), ErrAlreadyInitialized)

	_, ok := s.LatestOutput(OutputError)
	require.False(ok, "outputs cleared")

	keys, err := s.ShowKeys()
	require.NoError(err)
	require.Contains(keys, "distribution key: DistributionKey{spec:AES-128-GCM")

	seq, err := s.PublishSeqNum()
	require.NoError(err)
	require.Zero(seq)

	// The permanent key is presented to the authority.
	require.NoError(s.PrefetchKeysForFutureClients(1))
	require.Eventually(func() bool { return len(client.sent()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(dk.Key, client.sent()[0].DistributionKey.Key)
}

func TestProvideInput(t *testing.T) {
	require := require.New(t)
	s := newLoopServer(t, &fakeClient{}, Config{})
	require.NoError(s.Initialize())

	require.ErrorIs(s.ProvideInput("fromSomewhere", nil), ErrUnknownPort)
	require.Error(s.ProvideInput(PortToSend, []byte("raw bytes")))

	conn := newFakeConn(1, testKey(4))
	require.NoError(s.call(func() { s.registry.Register(conn) }))
	require.NoError(s.ProvideInput(PortToSend, domain.Unicast(1, []byte("hi"))))

	sends, _, _ := conn.snapshot()
	require.Equal([][]byte{[]byte("hi")}, sends)
}

func TestPrefetchThroughLoop(t *testing.T) {
	require := require.New(t)
	client := &fakeClient{respond: respondWith(testKey(1), testKey(2))}
	s := newLoopServer(t, client, Config{})
	require.NoError(s.Initialize())

	require.ErrorIs(s.PrefetchKeysForPublish(0, ""), ErrInvalidKeyCount)
	require.NoError(s.PrefetchKeysForPublish(2, "alerts"))
	require.Eventually(func() bool {
		out, err := s.ShowKeys()
		return err == nil && strings.Contains(out, "session keys (2)")
	}, time.Second, 5*time.Millisecond)
	require.Equal(domain.PurposePubTopic("alerts"), client.sent()[0].Purpose)
}

func TestTransportCallbacks(t *testing.T) {
	require := require.New(t)
	client := &fakeClient{respond: respondWith(testKey(7))}
	s := newLoopServer(t, client, Config{})
	out := collect(s, OutputConnection, OutputError, OutputListening, OutputReceived)
	require.NoError(s.Initialize())

	s.OnListening(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 21100})
	req, h := handshake(1, 7)
	s.OnConnectionRequest(req)

	require.Eventually(func() bool { return len(out.get(OutputConnection)) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal([]any{"127.0.0.1:21100"}, out.get(OutputListening))
	require.Len(h.completions(), 1)

	sockets, err := s.ShowSockets()
	require.NoError(err)
	require.Contains(sockets, "socket #1")
	require.Contains(sockets, "key:7")

	s.OnDataReceived(1, []byte("ping"))
	require.Eventually(func() bool { return len(out.get(OutputReceived)) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(domain.Received{ConnID: 1, Data: []byte("ping")}, out.get(OutputReceived)[0])

	s.OnConnectionClosed(1)
	require.Eventually(func() bool { return len(out.get(OutputConnection)) == 2 }, time.Second, 5*time.Millisecond)
	require.Contains(out.get(OutputConnection)[1], "socket #1 closed")

	// Closing an unknown slot is a no-op.
	s.OnConnectionClosed(99)

	req, h = handshake(2, 7)
	s.OnConnectionRequest(req)
	require.Eventually(func() bool { return len(out.get(OutputConnection)) == 3 }, time.Second, 5*time.Millisecond)
	s.OnConnectionError(2, errBrokenPipe)
	require.Eventually(func() bool { return len(out.get(OutputError)) == 1 }, time.Second, 5*time.Millisecond)
	_, _, closed := h.conn.snapshot()
	require.True(closed)

	s.OnListenError(errBrokenPipe)
	require.Eventually(func() bool { return len(out.get(OutputError)) == 2 }, time.Second, 5*time.Millisecond)
	require.Contains(out.get(OutputError)[1], "Error in server")

	sockets, err = s.ShowSockets()
	require.NoError(err)
	require.Contains(sockets, "connected clients (0)")
}

func TestHaltClosesConnections(t *testing.T) {
	s := newLoopServer(t, &fakeClient{}, Config{})
	require.NoError(t, s.Initialize())

	conn := newFakeConn(1, testKey(1))
	require.NoError(t, s.call(func() { s.registry.Register(conn) }))

	s.Halt()
	_, _, closed := conn.snapshot()
	require.True(t, closed)
	require.ErrorIs(t, s.ProvideInput(PortToSend, domain.Broadcast(nil)), ErrHalted)
	require.ErrorIs(t, s.Initialize(), ErrAlreadyInitialized)

	// Callbacks after Halt do not block.
	s.OnDataReceived(1, []byte("late"))
}
