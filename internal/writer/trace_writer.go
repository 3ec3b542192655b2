// Package writer implements the buffered, batch-flushing entity writers:
// bounded in-memory buffers per entity type, size-triggered and
// interval-triggered flush, retry on transient failures, and upsert-on-
// conflict semantics so producer retries are idempotent.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/bulkcopy"
	"github.com/iota-uz/llm-observatory-storage/internal/config"
	"github.com/iota-uz/llm-observatory-storage/internal/model"
	"github.com/iota-uz/llm-observatory-storage/internal/obsmetrics"
	"github.com/iota-uz/llm-observatory-storage/pkg/repo"
)

// execer is satisfied by *pgxpool.Pool, pgx.Tx, and *pgx.Conn, letting the
// span-count update run against whichever the caller is already holding.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type traceBuffer struct {
	traces []*model.Trace
	spans  []*model.Span
	events []*model.Event
}

// TraceWriter buffers traces, spans, and events, flushing them in batches
// with upsert-on-conflict semantics keyed on their external ids.
type TraceWriter struct {
	pool    *pgxpool.Pool
	rawConn func(ctx context.Context) (*pgx.Conn, error)
	cfg     Config
	retry   config.RetryConfig
	metrics *obsmetrics.Collector
	logger  *logrus.Logger

	mu  sync.Mutex
	buf traceBuffer

	stats statsBox
}

// NewTraceWriter constructs a TraceWriter. metrics may be nil to disable
// instrumentation. rawConn is the dedicated-connection factory (typically
// (*dbpool.Manager).RawConn) a flush uses to reach the bulk-copy path; a nil
// rawConn disables bulk-copy and every flush uses batch-insert.
func NewTraceWriter(pool *pgxpool.Pool, rawConn func(ctx context.Context) (*pgx.Conn, error), cfg Config, retry config.RetryConfig, metrics *obsmetrics.Collector, logger *logrus.Logger) *TraceWriter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TraceWriter{pool: pool, rawConn: rawConn, cfg: cfg, retry: retry, metrics: metrics, logger: logger}
}

// WriteTrace buffers a single trace, auto-flushing if the batch size is
// reached.
func (w *TraceWriter) WriteTrace(ctx context.Context, t *model.Trace) error {
	w.mu.Lock()
	w.buf.traces = append(w.buf.traces, t)
	full := len(w.buf.traces) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

// WriteTraces buffers multiple traces, auto-flushing if the batch size is
// reached.
func (w *TraceWriter) WriteTraces(ctx context.Context, ts []*model.Trace) error {
	w.mu.Lock()
	w.buf.traces = append(w.buf.traces, ts...)
	full := len(w.buf.traces) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

// WriteSpan buffers a single span, auto-flushing if the batch size is
// reached.
func (w *TraceWriter) WriteSpan(ctx context.Context, s *model.Span) error {
	w.mu.Lock()
	w.buf.spans = append(w.buf.spans, s)
	full := len(w.buf.spans) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

// WriteSpans buffers multiple spans, auto-flushing if the batch size is
// reached.
func (w *TraceWriter) WriteSpans(ctx context.Context, ss []*model.Span) error {
	w.mu.Lock()
	w.buf.spans = append(w.buf.spans, ss...)
	full := len(w.buf.spans) >= w.cfg.BatchSize
	w.mu.Unlock()
	if full {
		return w.Flush(ctx)
	}
	return nil
}

// WriteEvent buffers a single event. Events do not trigger an auto-flush on
// their own; they ride along with the next trace/span flush.
func (w *TraceWriter) WriteEvent(_ context.Context, e *model.Event) error {
	w.mu.Lock()
	w.buf.events = append(w.buf.events, e)
	w.mu.Unlock()
	return nil
}

// WriteSpanFromExternal resolves the internal trace id for a span that only
// carries the external trace-id string, creating the trace if necessary,
// then enqueues the span. This is the span-to-trace resolution described as
// the subtlest concurrency point in the writer layer: EnsureTrace converges
// concurrent callers on the same internal id via insert-on-conflict-
// returning.
func (w *TraceWriter) WriteSpanFromExternal(ctx context.Context, externalTraceID, defaultServiceName string, s *model.Span) error {
	trace, err := w.EnsureTrace(ctx, externalTraceID, defaultServiceName, s.StartTime)
	if err != nil {
		return err
	}
	s.TraceID = trace.ID
	return w.WriteSpan(ctx, s)
}

// EnsureTrace looks up a Trace by its external id, creating it with
// insert-on-conflict-do-update-returning when absent so concurrent callers
// converge on the same internal id.
func (w *TraceWriter) EnsureTrace(ctx context.Context, externalTraceID, serviceName string, startTime time.Time) (*model.Trace, error) {
	var existing model.Trace
	row := w.pool.QueryRow(ctx, `SELECT id, trace_id, service_name, start_time, end_time, duration_us,
		status, status_message, root_span_name, attributes, resource_attributes, span_count,
		created_at, updated_at FROM traces WHERE trace_id = $1 LIMIT 1`, externalTraceID)
	err := row.Scan(
		&existing.ID, &existing.TraceID, &existing.ServiceName, &existing.StartTime, &existing.EndTime,
		&existing.DurationUs, &existing.Status, &existing.StatusMessage, &existing.RootSpanName,
		&existing.Attributes, &existing.ResourceAttributes, &existing.SpanCount,
		&existing.CreatedAt, &existing.UpdatedAt,
	)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.FromDB(err)
	}

	t := model.NewTrace(externalTraceID, serviceName, startTime)

	var inserted model.Trace
	row = w.pool.QueryRow(ctx, `INSERT INTO traces (id, trace_id, service_name, start_time, end_time,
		duration_us, status, status_message, root_span_name, attributes, resource_attributes, span_count,
		created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (trace_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id, trace_id, service_name, start_time, end_time, duration_us, status, status_message,
		root_span_name, attributes, resource_attributes, span_count, created_at, updated_at`,
		t.ID, t.TraceID, t.ServiceName, t.StartTime, t.EndTime, t.DurationUs, t.Status, t.StatusMessage,
		t.RootSpanName, t.Attributes, t.ResourceAttributes, t.SpanCount, t.CreatedAt, t.UpdatedAt,
	)
	err = row.Scan(
		&inserted.ID, &inserted.TraceID, &inserted.ServiceName, &inserted.StartTime, &inserted.EndTime,
		&inserted.DurationUs, &inserted.Status, &inserted.StatusMessage, &inserted.RootSpanName,
		&inserted.Attributes, &inserted.ResourceAttributes, &inserted.SpanCount,
		&inserted.CreatedAt, &inserted.UpdatedAt,
	)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &inserted, nil
}

// Flush atomically takes every buffer's contents, releases the lock, and
// inserts each non-empty slice with retry-on-transient-failure. Taken
// entities lost to a non-retryable or retry-exhausted failure are not
// re-buffered; producers needing durability must retry upstream.
func (w *TraceWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	traces := w.buf.traces
	spans := w.buf.spans
	events := w.buf.events
	w.buf = traceBuffer{}
	w.mu.Unlock()

	if len(traces) > 0 {
		start := time.Now()
		err := withRetry(ctx, w.retry, &w.stats, w.logger, func(ctx context.Context) error {
			return w.writeTraces(ctx, traces)
		})
		w.recordFlush("trace", "traces", len(traces), time.Since(start), err)
		if err != nil {
			return fmt.Errorf("writer: flushing traces: %w", err)
		}
		w.stats.mu.Lock()
		w.stats.s.TracesWritten += uint64(len(traces))
		w.stats.mu.Unlock()
	}

	if len(spans) > 0 {
		start := time.Now()
		err := withRetry(ctx, w.retry, &w.stats, w.logger, func(ctx context.Context) error {
			return w.writeSpans(ctx, spans)
		})
		w.recordFlush("trace", "spans", len(spans), time.Since(start), err)
		if err != nil {
			return fmt.Errorf("writer: flushing spans: %w", err)
		}
		w.stats.mu.Lock()
		w.stats.s.SpansWritten += uint64(len(spans))
		w.stats.mu.Unlock()
	}

	if len(events) > 0 {
		start := time.Now()
		err := withRetry(ctx, w.retry, &w.stats, w.logger, func(ctx context.Context) error {
			return w.writeEvents(ctx, events)
		})
		w.recordFlush("trace", "events", len(events), time.Since(start), err)
		if err != nil {
			return fmt.Errorf("writer: flushing events: %w", err)
		}
		w.stats.mu.Lock()
		w.stats.s.EventsWritten += uint64(len(events))
		w.stats.mu.Unlock()
	}

	return nil
}

// openRawConn opens a dedicated connection for the bulk-copy path. It
// returns false, so callers fall back to batch-insert, when no factory is
// configured, the batch is below threshold, or the connection attempt
// fails; only the failed attempt is logged.
func (w *TraceWriter) openRawConn(ctx context.Context, n int) (*pgx.Conn, bool) {
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

// writeTraces prefers the bulk-copy path (C4) over a dedicated raw
// connection once the batch meets cfg.BulkCopyThreshold, falling back to
// parameterized batch-insert otherwise.
func (w *TraceWriter) writeTraces(ctx context.Context, traces []*model.Trace) error {
	if conn, ok := w.openRawConn(ctx, len(traces)); ok {
		defer conn.Close(ctx)
		if _, err := bulkcopy.WriteTraces(ctx, conn, w.logger, traces); err != nil {
			return apperror.FromDB(err)
		}
		return nil
	}
	return w.insertTraces(ctx, traces)
}

// writeSpans dispatches to bulk-copy or batch-insert, in both cases folding
// the writer-side span_count increment into the same transaction as the
// span write so a retried flush cannot double-count.
func (w *TraceWriter) writeSpans(ctx context.Context, spans []*model.Span) error {
	if conn, ok := w.openRawConn(ctx, len(spans)); ok {
		defer conn.Close(ctx)
		return w.bulkCopySpans(ctx, conn, spans)
	}
	return w.insertSpansTx(ctx, spans)
}

// writeEvents prefers the bulk-copy path once the batch meets
// cfg.BulkCopyThreshold, falling back to batch-insert otherwise. Events
// carry no derived counters, so no transactional follow-up is needed.
func (w *TraceWriter) writeEvents(ctx context.Context, events []*model.Event) error {
	if conn, ok := w.openRawConn(ctx, len(events)); ok {
		defer conn.Close(ctx)
		if _, err := bulkcopy.WriteEvents(ctx, conn, w.logger, events); err != nil {
			return apperror.FromDB(err)
		}
		return nil
	}
	return w.insertEvents(ctx, events)
}

// bulkCopySpans streams spans via COPY and folds the span_count increment
// into the same connection's transaction using plain SQL, since conn is a
// bare *pgx.Conn rather than a pgx.Tx.
func (w *TraceWriter) bulkCopySpans(ctx context.Context, conn *pgx.Conn, spans []*model.Span) error {
	if _, err := conn.Exec(ctx, "BEGIN"); err != nil {
		return apperror.FromDB(err)
	}
	if _, err := bulkcopy.WriteSpans(ctx, conn, w.logger, spans); err != nil {
		_, _ = conn.Exec(ctx, "ROLLBACK")
		return apperror.FromDB(err)
	}
	if err := updateSpanCounts(ctx, conn, spans); err != nil {
		_, _ = conn.Exec(ctx, "ROLLBACK")
		return err
	}
	if _, err := conn.Exec(ctx, "COMMIT"); err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

// insertSpansTx batch-inserts spans and increments span_count within a
// single transaction.
func (w *TraceWriter) insertSpansTx(ctx context.Context, spans []*model.Span) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return apperror.FromDB(err)
	}
	defer tx.Rollback(ctx)
	if err := w.insertSpans(ctx, tx, spans); err != nil {
		return err
	}
	if err := updateSpanCounts(ctx, tx, spans); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

// updateSpanCounts increments each affected trace's span_count by the
// number of spans in this write, per the writer-side atomic increment
// resolution: span ingestion is the sole writer of span_count, so it stays
// consistent with what a reader sees immediately after a flush. trace_id
// values are passed as text and cast server-side to sidestep uuid array
// encoding. q is typically a *pgxpool.Pool, a pgx.Tx, or a *pgx.Conn, so the
// increment can ride along with whichever connection already holds the
// span write's transaction.
func updateSpanCounts(ctx context.Context, q execer, spans []*model.Span) error {
	if len(spans) == 0 {
		return nil
	}
	ids := make([]string, len(spans))
	for i, s := range spans {
		ids[i] = s.TraceID.String()
	}
	_, err := q.Exec(ctx, `UPDATE traces t SET span_count = t.span_count + c.cnt, updated_at = now()
		FROM (SELECT trace_id::uuid AS trace_id, count(*) AS cnt FROM unnest($1::text[]) AS trace_id
			GROUP BY trace_id) c
		WHERE t.id = c.trace_id`, ids)
	if err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

func (w *TraceWriter) recordFlush(writerType, itemType string, n int, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if w.metrics == nil {
		return
	}
	w.metrics.WriteDuration.WithLabelValues(writerType).Observe(elapsed.Seconds())
	w.metrics.BatchSize.WithLabelValues(writerType).Observe(float64(n))
	w.metrics.FlushesTotal.WithLabelValues(writerType, status).Inc()
	if err == nil {
		w.metrics.ItemsWrittenTotal.WithLabelValues(writerType, itemType).Add(float64(n))
	} else {
		category := string(apperror.CategoryInternal)
		if appErr := apperror.As(err); appErr != nil {
			category = string(appErr.Code.Category())
		}
		w.metrics.ErrorsTotal.WithLabelValues(category, "flush").Inc()
	}
}

func (w *TraceWriter) insertTraces(ctx context.Context, traces []*model.Trace) error {
	rows := make([][]interface{}, len(traces))
	for i, t := range traces {
		rows[i] = []interface{}{
			t.ID, t.TraceID, t.ServiceName, t.StartTime, t.EndTime, t.DurationUs, t.Status,
			t.StatusMessage, t.RootSpanName, t.Attributes, t.ResourceAttributes, t.SpanCount,
			t.CreatedAt, t.UpdatedAt,
		}
	}
	query, args := repo.BatchInsertQueryN(`INSERT INTO traces (id, trace_id, service_name, start_time,
		end_time, duration_us, status, status_message, root_span_name, attributes, resource_attributes,
		span_count, created_at, updated_at) VALUES`, rows)
	// span_count is deliberately absent from this SET clause: once a trace
	// exists, updateSpanCounts is its sole writer, so a trace-level update
	// here must not stomp the running count with this batch's (usually
	// stale or zero) in-memory value.
	query += ` ON CONFLICT (trace_id) DO UPDATE SET end_time = EXCLUDED.end_time,
		duration_us = EXCLUDED.duration_us, status = EXCLUDED.status,
		status_message = EXCLUDED.status_message,
		updated_at = EXCLUDED.updated_at`
	_, err := w.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

// insertSpans batch-inserts spans through q, which may be w.pool directly
// or a transaction the caller wants the span_count increment to share.
func (w *TraceWriter) insertSpans(ctx context.Context, q execer, spans []*model.Span) error {
	rows := make([][]interface{}, len(spans))
	for i, s := range spans {
		rows[i] = []interface{}{
			s.ID, s.TraceID, s.SpanID, s.ParentSpanID, s.Name, s.Kind, s.ServiceName, s.StartTime,
			s.EndTime, s.DurationUs, s.Status, s.StatusMessage, s.Attributes, s.Events, s.Links,
			s.CreatedAt,
		}
	}
	query, args := repo.BatchInsertQueryN(`INSERT INTO trace_spans (id, trace_id, span_id,
		parent_span_id, name, kind, service_name, start_time, end_time, duration_us, status,
		status_message, attributes, events, links, created_at) VALUES`, rows)
	query += ` ON CONFLICT (span_id) DO UPDATE SET end_time = EXCLUDED.end_time,
		duration_us = EXCLUDED.duration_us, status = EXCLUDED.status,
		status_message = EXCLUDED.status_message, attributes = EXCLUDED.attributes,
		events = EXCLUDED.events`
	_, err := q.Exec(ctx, query, args...)
	if err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

func (w *TraceWriter) insertEvents(ctx context.Context, events []*model.Event) error {
	rows := make([][]interface{}, len(events))
	for i, e := range events {
		rows[i] = []interface{}{e.ID, e.SpanID, e.Name, e.Timestamp, e.Attributes, e.CreatedAt}
	}
	query, args := repo.BatchInsertQueryN(
		`INSERT INTO trace_events (id, span_id, name, timestamp, attributes, created_at) VALUES`, rows)
	_, err := w.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperror.FromDB(err)
	}
	return nil
}

// Stats returns a point-in-time snapshot of cumulative write statistics.
func (w *TraceWriter) Stats() Stats { return w.stats.snapshot() }

// Run starts the background auto-flush scheduler: it wakes every
// cfg.FlushInterval and flushes if any buffer is non-empty, performing one
// final flush when ctx is cancelled before returning.
func (w *TraceWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			empty := len(w.buf.traces) == 0 && len(w.buf.spans) == 0 && len(w.buf.events) == 0
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
			empty := len(w.buf.traces) == 0 && len(w.buf.spans) == 0 && len(w.buf.events) == 0
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
