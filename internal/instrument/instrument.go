// Package instrument holds the Prometheus metrics of the secure
// communication server.
package instrument

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iotauth"

// Handshake outcomes.
const (
	HandshakeCached    = "cached"
	HandshakeEscalated = "escalated"
	HandshakeCompleted = "completed"
	HandshakeAbandoned = "abandoned"
	HandshakeFailed    = "failed"
)

// Metrics is the set of server metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry prometheus.Gatherer

	connections        prometheus.Gauge
	handshakes         *prometheus.CounterVec
	keyRequests        *prometheus.CounterVec
	keyRequestFailures prometheus.Counter
	distKeyRotations   prometheus.Counter
	broadcasts         prometheus.Counter
	sharedKeySeals     prometheus.Counter
	individualSends    prometheus.Counter
	rawSends           prometheus.Counter
	evictions          prometheus.Counter
	dropped            *prometheus.CounterVec
}

// New registers the metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers the metrics with reg and serves them from g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: g,
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of registered client connections",
		}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Client handshakes by outcome",
		}, []string{"outcome"}),
		keyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_requests_total",
			Help:      "Session key requests sent to the authority",
		}, []string{"mode"}),
		keyRequestFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_request_failures_total",
			Help:      "Session key requests that failed or were rejected",
		}),
		distKeyRotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distribution_key_rotations_total",
			Help:      "Distribution keys received from the authority",
		}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast messages dispatched",
		}),
		sharedKeySeals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_key_seals_total",
			Help:      "Shared-key ciphertexts constructed for broadcast",
		}),
		individualSends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "individual_sends_total",
			Help:      "Individually keyed sends",
		}),
		rawSends: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_sends_total",
			Help:      "Pre-sealed shared-key frames written",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Connections evicted after a failed send",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped before delivery",
		}, []string{"reason"}),
	}
}

// Handler returns a router serving /metrics.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

func (m *Metrics) Handshake(outcome string) {
	if m != nil {
		m.handshakes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) KeyRequest(mode string) {
	if m != nil {
		m.keyRequests.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) KeyRequestFailed() {
	if m != nil {
		m.keyRequestFailures.Inc()
	}
}

func (m *Metrics) DistributionKeyRotated() {
	if m != nil {
		m.distKeyRotations.Inc()
	}
}

func (m *Metrics) Broadcast() {
	if m != nil {
		m.broadcasts.Inc()
	}
}

func (m *Metrics) SharedKeySeal() {
	if m != nil {
		m.sharedKeySeals.Inc()
	}
}

func (m *Metrics) IndividualSend() {
	if m != nil {
		m.individualSends.Inc()
	}
}

func (m *Metrics) RawSend() {
	if m != nil {
		m.rawSends.Inc()
	}
}

func (m *Metrics) Eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}
