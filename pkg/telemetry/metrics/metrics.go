// Package metrics exposes Prometheus metrics for the guarded proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentinel-hq/aegis/pkg/config"
)

// Metrics holds all Prometheus collectors for the proxy.
//
// Metric families:
//   - aegis_requests_total{dialect, outcome}: guarded requests by terminal state
//   - aegis_request_duration_seconds{dialect}: end-to-end request latency
//   - aegis_cache_hits_total / aegis_cache_misses_total: verdict cache traffic
//   - aegis_cache_entries{backend}: current verdict cache size
//   - aegis_admission_active{model} / aegis_admission_queued{model}: queue state
//   - aegis_admission_rejected_total{model}: wait-line rejections
//   - aegis_scan_duration_seconds{analyzer, direction}: per-analyzer latency
//   - aegis_scan_blocks_total{analyzer, direction}: blocks by failing analyzer
//   - aegis_stream_aborts_total{dialect}: mid-stream aborts on block
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	AdmissionActive   *prometheus.GaugeVec
	AdmissionQueued   *prometheus.GaugeVec
	AdmissionRejected *prometheus.CounterVec

	ScanDuration *prometheus.HistogramVec
	ScanBlocks   *prometheus.CounterVec

	StreamAborts *prometheus.CounterVec
}

// New creates and registers all proxy metrics on a fresh registry.
func New(cfg *config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry:  registry,
		namespace: ns,

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "requests_total",
				Help:      "Total guarded requests by dialect and terminal outcome",
			},
			[]string{"dialect", "outcome"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "request_duration_seconds",
				Help:      "End-to-end guarded request latency",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"dialect"},
		),

		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cache_hits_total",
				Help:      "Total verdict cache hits",
			},
		),

		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "cache_misses_total",
				Help:      "Total verdict cache misses",
			},
		),

		AdmissionActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "admission_active",
				Help:      "Requests currently holding an admission slot",
			},
			[]string{"model"},
		),

		AdmissionQueued: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "admission_queued",
				Help:      "Requests currently waiting for an admission slot",
			},
			[]string{"model"},
		),

		AdmissionRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "admission_rejected_total",
				Help:      "Requests rejected because the wait-line was full",
			},
			[]string{"model"},
		),

		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "scan_duration_seconds",
				Help:      "Per-analyzer scan latency",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"analyzer", "direction"},
		),

		ScanBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "scan_blocks_total",
				Help:      "Blocks by failing analyzer and direction",
			},
			[]string{"analyzer", "direction"},
		),

		StreamAborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "stream_aborts_total",
				Help:      "Streams aborted mid-flight after a window scan block",
			},
			[]string{"dialect"},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AdmissionActive,
		m.AdmissionQueued,
		m.AdmissionRejected,
		m.ScanDuration,
		m.ScanBlocks,
		m.StreamAborts,
	)

	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterCacheSize exposes the cache_entries gauge backed by the given
// stats callback. Reading the live stats on every scrape keeps the backend
// label accurate across cache failover.
func (m *Metrics) RegisterCacheSize(stats func() (backend string, size int64)) {
	m.registry.MustRegister(&cacheSizeCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(m.namespace, "", "cache_entries"),
			"Current number of entries in the verdict cache",
			[]string{"backend"}, nil,
		),
		stats: stats,
	})
}

type cacheSizeCollector struct {
	desc  *prometheus.Desc
	stats func() (backend string, size int64)
}

func (c *cacheSizeCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *cacheSizeCollector) Collect(ch chan<- prometheus.Metric) {
	backend, size := c.stats()
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(size), backend)
}
