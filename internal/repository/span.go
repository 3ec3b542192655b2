package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/model"
)

const spanColumns = `id, trace_id, span_id, parent_span_id, name, kind, service_name,
	start_time, end_time, duration_us, status, status_message, attributes, events, links, created_at`

// SpanRepository is the read/delete surface over the spans and events
// tables.
type SpanRepository struct {
	pool *pgxpool.Pool
}

// NewSpanRepository constructs a SpanRepository borrowing connections from
// pool.
func NewSpanRepository(pool *pgxpool.Pool) *SpanRepository {
	return &SpanRepository{pool: pool}
}

func scanSpan(row pgx.Row) (*model.Span, error) {
	var s model.Span
	err := row.Scan(
		&s.ID, &s.TraceID, &s.SpanID, &s.ParentSpanID, &s.Name, &s.Kind, &s.ServiceName,
		&s.StartTime, &s.EndTime, &s.DurationUs, &s.Status, &s.StatusMessage,
		&s.Attributes, &s.Events, &s.Links, &s.CreatedAt,
	)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &s, nil
}

// GetByExternalID returns the span with external span id span_id, or a
// not-found error.
func (r *SpanRepository) GetByExternalID(ctx context.Context, spanID string) (*model.Span, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+spanColumns+" FROM trace_spans WHERE span_id = $1", spanID)
	return scanSpan(row)
}

// ListByTraceInternalID returns every span belonging to traceID ordered by
// start_time ascending.
func (r *SpanRepository) ListByTraceInternalID(ctx context.Context, traceID uuid.UUID) ([]*model.Span, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+spanColumns+" FROM trace_spans WHERE trace_id = $1 ORDER BY start_time ASC", traceID)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	defer rows.Close()

	var spans []*model.Span
	for rows.Next() {
		s, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}
		spans = append(spans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(err)
	}
	return spans, nil
}

// ListEventsBySpanID returns every event attached to the span with internal
// id spanID, ordered by timestamp ascending.
func (r *SpanRepository) ListEventsBySpanID(ctx context.Context, spanID uuid.UUID) ([]*model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, span_id, name, timestamp, attributes, created_at
		 FROM trace_events WHERE span_id = $1 ORDER BY timestamp ASC`, spanID)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.SpanID, &e.Name, &e.Timestamp, &e.Attributes, &e.CreatedAt); err != nil {
			return nil, apperror.FromDB(err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(err)
	}
	return events, nil
}

// DeleteBefore removes span rows with start_time before cutoff, returning
// the affected row count.
func (r *SpanRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM trace_spans WHERE start_time < $1", cutoff)
	if err != nil {
		return 0, apperror.FromDB(err)
	}
	return tag.RowsAffected(), nil
}
