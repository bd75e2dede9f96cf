package instrument_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsmon/iotauth/internal/instrument"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *instrument.Metrics
	m.Broadcast()
	m.Handshake(instrument.HandshakeCached)
	m.SetConnections(3)
}

func TestHandlerServesMetrics(t *testing.T) {
	m := instrument.New()
	m.Broadcast()
	m.SharedKeySeal()
	m.Handshake(instrument.HandshakeEscalated)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "iotauth_broadcasts_total 1")
	require.Contains(t, string(body), `iotauth_handshakes_total{outcome="escalated"} 1`)
}
