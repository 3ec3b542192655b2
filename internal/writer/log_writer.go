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

// LogWriter buffers log records.
type LogWriter struct {
	pool    *pgxpool.Pool
	rawConn func(ctx context.Context) (*pgx.Conn, error)
	cfg     Config
	retry   config.RetryConfig
	metrics *obsmetrics.Collector
	logger  *logrus.Logger

	mu  sync.Mutex
	buf []*model.LogRecord

	stats statsBox
}

// NewLogWriter constructs a LogWriter. rawConn is the dedicated-connection
// factory a flush uses to reach the bulk-copy path; a nil rawConn disables
// bulk-copy and every flush uses batch-insert.
func NewLogWriter(pool *pgxpool.Pool, rawConn func(ctx context.Context) (*pgx.Conn, error), cfg Config, retry config.RetryConfig, metrics *obsmetrics.Collector, logger *logrus.Logger) *LogWriter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogWriter{pool: pool, rawConn: rawConn, cfg: cfg, retry: retry, metrics: metrics, logger: logger}
}

// openRawConn opens a dedicated connection for the bulk-copy path, falling
// back to batch-insert when no factory is configured, the batch is below
// threshold, or the connection attempt itself fails.
func (w *LogWriter) openRawConn(ctx context.Context, n int) (*pgx.Conn, bool) {
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

func (w *LogWriter) WriteLog(ctx context.Context, l *model.LogRecord) error {
	w.mu.Lock()
	w.buf = append(w.buf, l)
	full := len(w.buf) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

func (w *LogWriter) WriteLogs(ctx context.Context, ls []*model.LogRecord) error {
	w.mu.Lock()
	w.buf = append(w.buf, ls...)
	full := len(w.buf) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

func (w *LogWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	logs := w.buf
	w.buf = nil
	w.mu.Unlock()

	if len(logs) == 0 {
		return nil
	}

	start := time.Now()
	err := withRetry(ctx, w.retry, &w.stats, w.logger, func(ctx context.Context) error {
		return w.writeLogs(ctx, logs)
	})
	if w.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		w.metrics.WriteDuration.WithLabelValues("log").Observe(time.Since(start).Seconds())
		w.metrics.BatchSize.WithLabelValues("log").Observe(float64(len(logs)))
		w.metrics.FlushesTotal.WithLabelValues("log", status).Inc()
		if err == nil {
			w.metrics.ItemsWrittenTotal.WithLabelValues("log", "logs").Add(float64(len(logs)))
		}
	}
	if err != nil {
		return fmt.Errorf("writer: flushing logs: %w", err)
	}
	w.stats.mu.Lock()
	w.stats.s.LogsWritten += uint64(len(logs))
	w.stats.mu.Unlock()
	return nil
}

// writeLogs prefers the bulk-copy path (C4) once the batch meets
// cfg.BulkCopyThreshold, falling back to batch-insert otherwise.
func (w *LogWriter) writeLogs(ctx context.Context, logs []*model.LogRecord) error {
	if conn, ok := w.openRawConn(ctx, len(logs)); ok {
		defer conn.Close(ctx)
		if _, err := bulkcopy.WriteLogs(ctx, conn, w.logger, logs); err != nil {
			return apperror.FromDB(err)
		}
		return nil
	}
	return w.insertLogs(ctx, logs)
}

func (w *LogWriter) insertLogs(ctx context.Context, logs []*model.LogRecord) error {
	rows := make([][]interface{}, len(logs))
	for i, l := range logs {
		rows[i] = []interface{}{
			l.ID, l.Timestamp, l.ObservedTimestamp, l.SeverityNumber, l.SeverityText, l.Body,
			l.ServiceName, l.TraceID, l.SpanID, l.TraceFlags, l.Attributes, l.ResourceAttributes,
			l.ScopeName, l.ScopeVersion, l.ScopeAttributes, l.CreatedAt,
		}
	}
	query, args := repo.BatchInsertQueryN(`INSERT INTO logs (id, timestamp, observed_timestamp,
		severity_number, severity_text, body, service_name, trace_id, span_id, trace_flags,
		attributes, resource_attributes, scope_name, scope_version, scope_attributes, created_at) VALUES`, rows)
	query += ` ON CONFLICT (id) DO NOTHING`
	_, err := w.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

func (w *LogWriter) Stats() Stats { return w.stats.snapshot() }

func (w *LogWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			empty := len(w.buf) == 0
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
			empty := len(w.buf) == 0
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
