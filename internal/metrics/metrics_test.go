package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.WithLabelValues(labels...).(prometheus.Metric).Write(m))
	return m.GetCounter().GetValue()
}

func TestNewWithRegistryRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.EpochsTotal.WithLabelValues("px", "ok").Inc()
	require.Equal(t, float64(1), counterValue(t, m.EpochsTotal, "px", "ok"))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewWithRegistryPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewWithRegistry(reg)
	require.Panics(t, func() { NewWithRegistry(reg) })
}

func TestActiveIngestersGaugeTracksSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.ActiveIngesters.Set(3)

	out := &dto.Metric{}
	require.NoError(t, m.ActiveIngesters.Write(out))
	require.Equal(t, float64(3), out.GetGauge().GetValue())
}

func TestHandlerServesMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
}
