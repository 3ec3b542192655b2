package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/bulkcopy"
	"github.com/iota-uz/llm-observatory-storage/internal/config"
	"github.com/iota-uz/llm-observatory-storage/internal/model"
	"github.com/iota-uz/llm-observatory-storage/internal/obsmetrics"
	"github.com/iota-uz/llm-observatory-storage/pkg/repo"
)

type metricBuffer struct {
	metrics    []*model.Metric
	dataPoints []*model.MetricDataPoint
}

// MetricWriter buffers metric definitions and their observed data points.
type MetricWriter struct {
	pool    *pgxpool.Pool
	rawConn func(ctx context.Context) (*pgx.Conn, error)
	cfg     Config
	retry   config.RetryConfig
	metrics *obsmetrics.Collector
	logger  *logrus.Logger

	mu  sync.Mutex
	buf metricBuffer

	stats statsBox
}

// NewMetricWriter constructs a MetricWriter. rawConn is the dedicated-
// connection factory a flush uses to reach the bulk-copy path; a nil
// rawConn disables bulk-copy and every flush uses batch-insert.
func NewMetricWriter(pool *pgxpool.Pool, rawConn func(ctx context.Context) (*pgx.Conn, error), cfg Config, retry config.RetryConfig, metrics *obsmetrics.Collector, logger *logrus.Logger) *MetricWriter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MetricWriter{pool: pool, rawConn: rawConn, cfg: cfg, retry: retry, metrics: metrics, logger: logger}
}

// openRawConn opens a dedicated connection for the bulk-copy path, falling
// back to batch-insert when no factory is configured, the batch is below
// threshold, or the connection attempt itself fails.
func (w *MetricWriter) openRawConn(ctx context.Context, n int) (*pgx.Conn, bool) {
	if w.rawConn == nil || n < w.cfg.BulkCopyThreshold {
		return nil, false
	}
	conn, err := w.rawConn(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("writer: opening raw connection for bulk-copy failed, falling back to batch-insert")
		return nil, false
	}
	return conn, true
}

func (w *MetricWriter) WriteMetric(ctx context.Context, m *model.Metric) error {
	w.mu.Lock()
	w.buf.metrics = append(w.buf.metrics, m)
	full := len(w.buf.metrics) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

func (w *MetricWriter) WriteDataPoint(ctx context.Context, p *model.MetricDataPoint) error {
	w.mu.Lock()
	w.buf.dataPoints = append(w.buf.dataPoints, p)
	full := len(w.buf.dataPoints) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

func (w *MetricWriter) WriteDataPoints(ctx context.Context, ps []*model.MetricDataPoint) error {
	w.mu.Lock()
	w.buf.dataPoints = append(w.buf.dataPoints, ps...)
	full := len(w.buf.dataPoints) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

// Flush takes and inserts the buffered metrics, then data points — metric
// definitions must precede their data points since the latter reference the
// former by internal id.
func (w *MetricWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	metrics := w.buf.metrics
	points := w.buf.dataPoints
	w.buf = metricBuffer{}
	w.mu.Unlock()

	if len(metrics) > 0 {
		start := time.Now()
		err := withRetry(ctx, w.retry, &w.stats, w.logger, func(ctx context.Context) error {
			return w.writeMetrics(ctx, metrics)
		})
		w.record("metrics", len(metrics), time.Since(start), err)
		if err != nil {
			return fmt.Errorf("writer: flushing metrics: %w", err)
		}
		w.stats.mu.Lock()
		w.stats.s.MetricsWritten += uint64(len(metrics))
		w.stats.mu.Unlock()
	}

	if len(points) > 0 {
		start := time.Now()
		err := withRetry(ctx, w.retry, &w.stats, w.logger, func(ctx context.Context) error {
			return w.writeDataPoints(ctx, points)
		})
		w.record("data_points", len(points), time.Since(start), err)
		if err != nil {
			return fmt.Errorf("writer: flushing data points: %w", err)
		}
		w.stats.mu.Lock()
		w.stats.s.DataPointsWritten += uint64(len(points))
		w.stats.mu.Unlock()
	}

	return nil
}

func (w *MetricWriter) record(itemType string, n int, elapsed time.Duration, err error) {
	if w.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	w.metrics.WriteDuration.WithLabelValues("metric").Observe(elapsed.Seconds())
	w.metrics.BatchSize.WithLabelValues("metric").Observe(float64(n))
	w.metrics.FlushesTotal.WithLabelValues("metric", status).Inc()
	if err == nil {
		w.metrics.ItemsWrittenTotal.WithLabelValues("metric", itemType).Add(float64(n))
	}
}

// writeMetrics prefers the bulk-copy path (C4) once the batch meets
// cfg.BulkCopyThreshold, falling back to batch-insert otherwise.
func (w *MetricWriter) writeMetrics(ctx context.Context, metrics []*model.Metric) error {
	if conn, ok := w.openRawConn(ctx, len(metrics)); ok {
		defer conn.Close(ctx)
		if _, err := bulkcopy.WriteMetrics(ctx, conn, w.logger, metrics); err != nil {
			return apperror.FromDB(err)
		}
		return nil
	}
	return w.insertMetrics(ctx, metrics)
}

// writeDataPoints prefers the bulk-copy path once the batch meets
// cfg.BulkCopyThreshold, falling back to batch-insert otherwise.
func (w *MetricWriter) writeDataPoints(ctx context.Context, points []*model.MetricDataPoint) error {
	if conn, ok := w.openRawConn(ctx, len(points)); ok {
		defer conn.Close(ctx)
		if _, err := bulkcopy.WriteDataPoints(ctx, conn, w.logger, points); err != nil {
			return apperror.FromDB(err)
		}
		return nil
	}
	return w.insertDataPoints(ctx, points)
}

func (w *MetricWriter) insertMetrics(ctx context.Context, metrics []*model.Metric) error {
	rows := make([][]interface{}, len(metrics))
	for i, m := range metrics {
		rows[i] = []interface{}{
			m.ID, m.Name, m.Description, m.Unit, m.MetricType, m.ServiceName, m.Attributes,
			m.ResourceAttributes, m.CreatedAt, m.UpdatedAt,
		}
	}
	query, args := repo.BatchInsertQueryN(`INSERT INTO metrics (id, name, description, unit,
		metric_type, service_name, attributes, resource_attributes, created_at, updated_at) VALUES`, rows)
	query += ` ON CONFLICT (id) DO NOTHING`
	_, err := w.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

func (w *MetricWriter) insertDataPoints(ctx context.Context, points []*model.MetricDataPoint) error {
	rows := make([][]interface{}, len(points))
	for i, p := range points {
		rows[i] = []interface{}{
			p.ID, p.MetricID, p.Timestamp, p.Value, p.Count, p.Sum, p.Min, p.Max, p.Buckets,
			p.Quantiles, p.Exemplars, p.Attributes, p.CreatedAt,
		}
	}
	query, args := repo.BatchInsertQueryN(`INSERT INTO metric_data_points (id, metric_id, timestamp,
		value, count, sum, min, max, buckets, quantiles, exemplars, attributes, created_at) VALUES`, rows)
	query += ` ON CONFLICT (id) DO NOTHING`
	_, err := w.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

func (w *MetricWriter) Stats() Stats { return w.stats.snapshot() }

func (w *MetricWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			empty := len(w.buf.metrics) == 0 && len(w.buf.dataPoints) == 0
			w.mu.Unlock()
			if !empty {
				flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := w.Flush(flushCtx); err != nil {
					w.logger.WithError(err).Error("writer: final flush on shutdown failed")
				}
				cancel()
			}
			return
		case <-ticker.C:
			w.mu.Lock()
			empty := len(w.buf.metrics) == 0 && len(w.buf.dataPoints) == 0
			w.mu.Unlock()
			if empty {
				continue
			}
			if err := w.Flush(ctx); err != nil {
				w.logger.WithError(err).Error("writer: scheduled flush failed")
			}
		}
	}
}
