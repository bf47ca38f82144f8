// Package metrics exposes chomp's Prometheus collectors, grounded on
// infrastructure/metrics/metrics.go's CounterVec/HistogramVec/Gauge shape
// in the teacher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector chomp registers.
type Metrics struct {
	EpochsTotal        *prometheus.CounterVec
	EpochDuration      *prometheus.HistogramVec
	FieldsMissingTotal *prometheus.CounterVec
	ClaimsTotal        *prometheus.CounterVec
	ClaimRetries       *prometheus.CounterVec
	StorageWritesTotal *prometheus.CounterVec
	StorageWriteTime   *prometheus.HistogramVec
	RPCPoolHealthy     *prometheus.GaugeVec
	QueryRequestsTotal *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	ActiveIngesters    prometheus.Gauge
}

// New builds and registers every collector against the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry builds and registers every collector against registerer,
// letting tests use a scratch registry instead of the process-global one.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		EpochsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chomp_epochs_total", Help: "Completed ingestion epochs"},
			[]string{"ingester", "status"},
		),
		EpochDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chomp_epoch_duration_seconds",
				Help:    "Epoch fetch+transform+persist duration",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"ingester"},
		),
		FieldsMissingTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chomp_fields_missing_total", Help: "Fields left null after fetch+transform"},
			[]string{"ingester", "field"},
		),
		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chomp_claims_total", Help: "Claim attempts by outcome"},
			[]string{"ingester", "outcome"},
		),
		ClaimRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chomp_claim_retries_total", Help: "Claim retry cycles run"},
			[]string{"outcome"},
		),
		StorageWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chomp_storage_writes_total", Help: "Storage adapter writes"},
			[]string{"adapter", "table", "status"},
		),
		StorageWriteTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chomp_storage_write_duration_seconds",
				Help:    "Storage adapter write latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"adapter", "table"},
		),
		RPCPoolHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "chomp_rpc_pool_healthy_endpoints", Help: "Healthy RPC endpoints per chain"},
			[]string{"chain"},
		),
		QueryRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chomp_query_requests_total", Help: "Query API requests"},
			[]string{"route", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chomp_query_duration_seconds",
				Help:    "Query API request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ActiveIngesters: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "chomp_active_ingesters", Help: "Ingesters currently claimed by this instance"},
		),
	}

	registerer.MustRegister(
		m.EpochsTotal, m.EpochDuration, m.FieldsMissingTotal,
		m.ClaimsTotal, m.ClaimRetries, m.StorageWritesTotal, m.StorageWriteTime,
		m.RPCPoolHealthy, m.QueryRequestsTotal, m.QueryDuration, m.ActiveIngesters,
	)
	return m
}

// Handler returns the /metrics HTTP handler to mount alongside the Query
// API or a standalone exporter listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
