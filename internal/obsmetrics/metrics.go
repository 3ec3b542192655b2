// Package obsmetrics registers and exposes the process-wide Prometheus
// collectors recorded by writers and repositories. A Collector owns its own
// prometheus.Registry rather than the global default registry, so tests can
// instantiate isolated instances without cross-test collector collisions.
package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric family recorded across the storage layer.
type Collector struct {
	registry *prometheus.Registry

	WriteDuration      *prometheus.HistogramVec
	QueryDuration      *prometheus.HistogramVec
	BatchSize          *prometheus.HistogramVec
	ConnAcquireLatency prometheus.Histogram

	WritesTotal      *prometheus.CounterVec
	ItemsWrittenTotal *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	RetriesTotal     *prometheus.CounterVec
	FlushesTotal     *prometheus.CounterVec

	PoolConnections *prometheus.GaugeVec
	BufferSize      *prometheus.GaugeVec
}

// New registers every collector against a fresh registry and returns the
// bundle.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,

		WriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "write_duration_seconds",
			Help:      "Duration of a writer flush operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"writer_type"}),

		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Duration of a repository query.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"repository", "operation"}),

		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "batch_size",
			Help:      "Number of items in a flushed batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		}, []string{"writer_type"}),

		ConnAcquireLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "conn_acquire_duration_seconds",
			Help:      "Duration of acquiring a connection from the pool.",
			Buckets:   prometheus.DefBuckets,
		}),

		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "writes_total",
			Help:      "Total write operations, by writer type, operation, and outcome.",
		}, []string{"writer_type", "operation", "status"}),

		ItemsWrittenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "items_written_total",
			Help:      "Total items persisted, by writer type and item type.",
		}, []string{"writer_type", "item_type"}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total errors, by error type and operation.",
		}, []string{"error_type", "operation"}),

		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "retries_total",
			Help:      "Total retry attempts across writers.",
		}, []string{"writer_type"}),

		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "flushes_total",
			Help:      "Total buffer flushes, by writer type and outcome.",
		}, []string{"writer_type", "status"}),

		PoolConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "pool_connections",
			Help:      "Current pool connection count, by state.",
		}, []string{"state"}),

		BufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "llmobs",
			Subsystem: "storage",
			Name:      "buffer_size",
			Help:      "Current in-memory buffer occupancy, by writer type and buffer type.",
		}, []string{"writer_type", "buffer_type"}),
	}

	reg.MustRegister(
		c.WriteDuration, c.QueryDuration, c.BatchSize, c.ConnAcquireLatency,
		c.WritesTotal, c.ItemsWrittenTotal, c.ErrorsTotal, c.RetriesTotal, c.FlushesTotal,
		c.PoolConnections, c.BufferSize,
	)

	return c
}

// Handler serves the text exposition format for this Collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
