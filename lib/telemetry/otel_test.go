package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	host, insecure, err := parseEndpoint("https://example.com:4318")
	require.NoError(t, err)
	require.Equal(t, "example.com:4318", host)
	require.False(t, insecure)

	host, insecure, err = parseEndpoint("http://localhost:4318")
	require.NoError(t, err)
	require.Equal(t, "localhost:4318", host)
	require.True(t, insecure)
}

func TestInitNoEndpointUsesNoop(t *testing.T) {
	mp, shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, mp)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitInvalidEndpoint(t *testing.T) {
	_, _, err := Init(context.Background(), Config{OTLPEndpoint: "://bad"})
	require.Error(t, err)
}

func TestInitWithEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mp, shutdown, err := Init(context.Background(), Config{OTLPEndpoint: srv.URL, ServiceName: "workflow-engine"})
	require.NoError(t, err)
	require.NotNil(t, mp)
	require.NoError(t, shutdown(context.Background()))
}

func TestNewMetricsRegistersCountersOnNoopProvider(t *testing.T) {
	mp, _, err := Init(context.Background(), Config{})
	require.NoError(t, err)

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, m)

	require.NotPanics(t, func() {
		m.AddNodeExecuted(context.Background())
		m.AddNodeFailure(context.Background())
		m.AddChunksRouted(context.Background(), 3)
	})
}

func TestNilMetricsAddMethodsAreNoops(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.AddNodeExecuted(context.Background())
		m.AddNodeFailure(context.Background())
		m.AddChunksRouted(context.Background(), 1)
	})
}
