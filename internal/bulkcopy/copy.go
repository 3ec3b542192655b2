// Package bulkcopy implements the binary bulk-ingest writer (C4): given a
// dedicated raw connection and a slice of entities, it streams them into
// the target table using Postgres's native COPY protocol via
// pgx.Conn.CopyFrom, the Go analogue of the reference implementation's
// BinaryCopyInWriter.
package bulkcopy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/llm-observatory-storage/internal/model"
)

var (
	traceColumns = []string{
		"id", "trace_id", "service_name", "start_time", "end_time", "duration_us",
		"status", "status_message", "root_span_name", "attributes",
		"resource_attributes", "span_count", "created_at", "updated_at",
	}
	spanColumns = []string{
		"id", "trace_id", "span_id", "parent_span_id", "name", "kind",
		"service_name", "start_time", "end_time", "duration_us", "status",
		"status_message", "attributes", "events", "links", "created_at",
	}
	eventColumns = []string{
		"id", "span_id", "name", "timestamp", "attributes", "created_at",
	}
	metricColumns = []string{
		"id", "name", "description", "unit", "metric_type", "service_name",
		"attributes", "resource_attributes", "created_at", "updated_at",
	}
	dataPointColumns = []string{
		"id", "metric_id", "timestamp", "value", "count", "sum", "min", "max",
		"buckets", "quantiles", "exemplars", "attributes", "created_at",
	}
	logColumns = []string{
		"id", "timestamp", "observed_timestamp", "severity_number", "severity_text",
		"body", "service_name", "trace_id", "span_id", "trace_flags", "attributes",
		"resource_attributes", "scope_name", "scope_version", "scope_attributes", "created_at",
	}
)

func jsonOf(v any) ([]byte, error) {
	return json.Marshal(v)
}

func logWrite(logger *logrus.Logger, kind string, n int, elapsed time.Duration) {
	if n == 0 {
		return
	}
	rate := float64(n) / elapsed.Seconds()
	logger.WithFields(logrus.Fields{
		"kind":     kind,
		"rows":     n,
		"elapsed":  elapsed,
		"rows_sec": rate,
	}).Infof("Wrote %d %s using COPY in %s (%.0f %s/sec)", n, kind, elapsed, rate, kind)
}

// WriteTraces streams traces into the traces table via COPY. Empty input
// returns 0 without opening a copy stream.
func WriteTraces(ctx context.Context, conn *pgx.Conn, logger *logrus.Logger, traces []*model.Trace) (int64, error) {
	if len(traces) == 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := conn.CopyFrom(ctx, pgx.Identifier{"traces"}, traceColumns, pgx.CopyFromSlice(len(traces), func(i int) ([]any, error) {
		t := traces[i]
		attrs, err := jsonOf(t.Attributes)
		if err != nil {
			return nil, err
		}
		res, err := jsonOf(t.ResourceAttributes)
		if err != nil {
			return nil, err
		}
		return []any{
			t.ID, t.TraceID, t.ServiceName, t.StartTime, t.EndTime, t.DurationUs,
			string(t.Status), t.StatusMessage, t.RootSpanName, attrs, res,
			t.SpanCount, t.CreatedAt, t.UpdatedAt,
		}, nil
	}))
	if err != nil {
		return n, err
	}
	logWrite(logger, "traces", int(n), time.Since(start))
	return n, nil
}

// WriteSpans streams spans into the trace_spans table via COPY.
func WriteSpans(ctx context.Context, conn *pgx.Conn, logger *logrus.Logger, spans []*model.Span) (int64, error) {
	if len(spans) == 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := conn.CopyFrom(ctx, pgx.Identifier{"trace_spans"}, spanColumns, pgx.CopyFromSlice(len(spans), func(i int) ([]any, error) {
		s := spans[i]
		attrs, err := jsonOf(s.Attributes)
		if err != nil {
			return nil, err
		}
		events, err := jsonOf(s.Events)
		if err != nil {
			return nil, err
		}
		links, err := jsonOf(s.Links)
		if err != nil {
			return nil, err
		}
		return []any{
			s.ID, s.TraceID, s.SpanID, s.ParentSpanID, s.Name, string(s.Kind),
			s.ServiceName, s.StartTime, s.EndTime, s.DurationUs, string(s.Status),
			s.StatusMessage, attrs, events, links, s.CreatedAt,
		}, nil
	}))
	if err != nil {
		return n, err
	}
	logWrite(logger, "spans", int(n), time.Since(start))
	return n, nil
}

// WriteEvents streams events into the trace_events table via COPY.
func WriteEvents(ctx context.Context, conn *pgx.Conn, logger *logrus.Logger, events []*model.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := conn.CopyFrom(ctx, pgx.Identifier{"trace_events"}, eventColumns, pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
		e := events[i]
		attrs, err := jsonOf(e.Attributes)
		if err != nil {
			return nil, err
		}
		return []any{e.ID, e.SpanID, e.Name, e.Timestamp, attrs, e.CreatedAt}, nil
	}))
	if err != nil {
		return n, err
	}
	logWrite(logger, "events", int(n), time.Since(start))
	return n, nil
}

// WriteMetrics streams metric definitions into the metrics table via COPY.
func WriteMetrics(ctx context.Context, conn *pgx.Conn, logger *logrus.Logger, metrics []*model.Metric) (int64, error) {
	if len(metrics) == 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := conn.CopyFrom(ctx, pgx.Identifier{"metrics"}, metricColumns, pgx.CopyFromSlice(len(metrics), func(i int) ([]any, error) {
		m := metrics[i]
		attrs, err := jsonOf(m.Attributes)
		if err != nil {
			return nil, err
		}
		res, err := jsonOf(m.ResourceAttributes)
		if err != nil {
			return nil, err
		}
		return []any{
			m.ID, m.Name, m.Description, m.Unit, string(m.MetricType), m.ServiceName,
			attrs, res, m.CreatedAt, m.UpdatedAt,
		}, nil
	}))
	if err != nil {
		return n, err
	}
	logWrite(logger, "metrics", int(n), time.Since(start))
	return n, nil
}

// WriteDataPoints streams metric data points into the metric_data_points
// table via COPY.
func WriteDataPoints(ctx context.Context, conn *pgx.Conn, logger *logrus.Logger, points []*model.MetricDataPoint) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := conn.CopyFrom(ctx, pgx.Identifier{"metric_data_points"}, dataPointColumns, pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
		p := points[i]
		buckets, err := jsonOf(p.Buckets)
		if err != nil {
			return nil, err
		}
		quantiles, err := jsonOf(p.Quantiles)
		if err != nil {
			return nil, err
		}
		exemplars, err := jsonOf(p.Exemplars)
		if err != nil {
			return nil, err
		}
		attrs, err := jsonOf(p.Attributes)
		if err != nil {
			return nil, err
		}
		return []any{
			p.ID, p.MetricID, p.Timestamp, p.Value, p.Count, p.Sum, p.Min, p.Max,
			buckets, quantiles, exemplars, attrs, p.CreatedAt,
		}, nil
	}))
	if err != nil {
		return n, err
	}
	logWrite(logger, "data_points", int(n), time.Since(start))
	return n, nil
}

// WriteLogs streams log records into the logs table via COPY.
func WriteLogs(ctx context.Context, conn *pgx.Conn, logger *logrus.Logger, logs []*model.LogRecord) (int64, error) {
	if len(logs) == 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := conn.CopyFrom(ctx, pgx.Identifier{"logs"}, logColumns, pgx.CopyFromSlice(len(logs), func(i int) ([]any, error) {
		l := logs[i]
		attrs, err := jsonOf(l.Attributes)
		if err != nil {
			return nil, err
		}
		res, err := jsonOf(l.ResourceAttributes)
		if err != nil {
			return nil, err
		}
		scope, err := jsonOf(l.ScopeAttributes)
		if err != nil {
			return nil, err
		}
		return []any{
			l.ID, l.Timestamp, l.ObservedTimestamp, l.SeverityNumber, l.SeverityText,
			l.Body, l.ServiceName, l.TraceID, l.SpanID, l.TraceFlags, attrs, res,
			l.ScopeName, l.ScopeVersion, scope, l.CreatedAt,
		}, nil
	}))
	if err != nil {
		return n, err
	}
	logWrite(logger, "logs", int(n), time.Since(start))
	return n, nil
}
