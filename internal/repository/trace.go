package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/filter"
	"github.com/iota-uz/llm-observatory-storage/internal/model"
	"github.com/iota-uz/llm-observatory-storage/pkg/repo"
)

const traceColumns = `id, trace_id, service_name, start_time, end_time, duration_us,
	status, status_message, root_span_name, attributes, resource_attributes, span_count,
	created_at, updated_at`

// TraceRepository is the read/delete surface over the traces table.
type TraceRepository struct {
	pool *pgxpool.Pool
}

// NewTraceRepository constructs a TraceRepository borrowing connections
// from pool.
func NewTraceRepository(pool *pgxpool.Pool) *TraceRepository {
	return &TraceRepository{pool: pool}
}

func scanTrace(row pgx.Row) (*model.Trace, error) {
	var t model.Trace
	err := row.Scan(
		&t.ID, &t.TraceID, &t.ServiceName, &t.StartTime, &t.EndTime, &t.DurationUs,
		&t.Status, &t.StatusMessage, &t.RootSpanName, &t.Attributes, &t.ResourceAttributes,
		&t.SpanCount, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &t, nil
}

// GetByID returns the trace with internal id, or a not-found error.
func (r *TraceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Trace, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+traceColumns+" FROM traces WHERE id = $1", id)
	return scanTrace(row)
}

// GetByExternalID returns the single most recent trace row matching the
// external trace id, or a not-found error.
func (r *TraceRepository) GetByExternalID(ctx context.Context, traceID string) (*model.Trace, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+traceColumns+" FROM traces WHERE trace_id = $1 ORDER BY created_at DESC LIMIT 1", traceID)
	return scanTrace(row)
}

// GetWithSpans returns the trace and its spans ordered by start time
// ascending.
func (r *TraceRepository) GetWithSpans(ctx context.Context, traceID string) (*model.Trace, []*model.Span, error) {
	trace, err := r.GetByExternalID(ctx, traceID)
	if err != nil {
		return nil, nil, err
	}
	spans, err := NewSpanRepository(r.pool).ListByTraceInternalID(ctx, trace.ID)
	if err != nil {
		return nil, nil, err
	}
	return trace, spans, nil
}

// ListFilter is the common shape of a trace list query.
type ListFilter struct {
	ServiceName    string
	Status         model.Status
	StartTimeFrom  *time.Time
	StartTimeTo    *time.Time
	DurationUsMin  *int64
	DurationUsMax  *int64
	RootSpanLike   string
	Cursor         *Cursor
	Limit          int
}

// List returns up to the clamped filter.Limit trace rows and whether more
// follow (it fetches one extra row to tell), sorted by start_time
// descending with (start_time, trace_id) as the stable secondary key for
// cursor pagination.
func (r *TraceRepository) List(ctx context.Context, f ListFilter) ([]*model.Trace, bool, error) {
	where := []string{"1=1"}
	var args []any
	paramIdx := 1

	add := func(clause string, value any) {
		where = append(where, clause)
		args = append(args, value)
		paramIdx++
	}

	if f.ServiceName != "" {
		add(repo.Eq(f.ServiceName).String("service_name", paramIdx), f.ServiceName)
	}
	if f.Status != "" {
		add(repo.Eq(f.Status).String("status", paramIdx), f.Status)
	}
	if f.StartTimeFrom != nil {
		add(repo.Gte(*f.StartTimeFrom).String("start_time", paramIdx), *f.StartTimeFrom)
	}
	if f.StartTimeTo != nil {
		add(repo.Lte(*f.StartTimeTo).String("start_time", paramIdx), *f.StartTimeTo)
	}
	if f.DurationUsMin != nil {
		add(repo.Gte(*f.DurationUsMin).String("duration_us", paramIdx), *f.DurationUsMin)
	}
	if f.DurationUsMax != nil {
		add(repo.Lte(*f.DurationUsMax).String("duration_us", paramIdx), *f.DurationUsMax)
	}
	if f.RootSpanLike != "" {
		add(repo.Like("%"+f.RootSpanLike+"%").String("root_span_name", paramIdx), "%"+f.RootSpanLike+"%")
	}
	if f.Cursor != nil {
		where = append(where, "(start_time, trace_id) < ($"+strconv.Itoa(paramIdx)+", $"+strconv.Itoa(paramIdx+1)+")")
		args = append(args, f.Cursor.Timestamp, f.Cursor.TraceID)
		paramIdx += 2
	}

	limit := ClampLimit(f.Limit, 50)
	query := "SELECT " + traceColumns + " FROM traces WHERE " + joinAnd(where) +
		" ORDER BY start_time DESC, trace_id DESC LIMIT $" + strconv.Itoa(paramIdx)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, apperror.FromDB(err)
	}
	defer rows.Close()

	var traces []*model.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, false, err
		}
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, apperror.FromDB(err)
	}

	page, hasMore := splitHasMore(traces, limit)
	return page, hasMore, nil
}

// Search renders tree via the filter engine and executes it against the
// traces whitelist.
func (r *TraceRepository) Search(ctx context.Context, tree filter.Node, limit int) ([]*model.Trace, bool, error) {
	clampedLimit := ClampLimit(limit, 50)

	where, args, err := filter.Render(tree, filter.TraceFields)
	if err != nil {
		return nil, false, apperror.Wrap(apperror.CodeInvalidFilter, "invalid filter", err)
	}
	query := "SELECT " + traceColumns + " FROM traces"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY start_time DESC, trace_id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, clampedLimit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, apperror.FromDB(err)
	}
	defer rows.Close()

	var traces []*model.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, false, err
		}
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, apperror.FromDB(err)
	}

	page, hasMore := splitHasMore(traces, clampedLimit)
	return page, hasMore, nil
}

// Percentiles returns P50/P95/P99 duration_us over the filtered trace set.
func (r *TraceRepository) Percentiles(ctx context.Context, f ListFilter) (p50, p95, p99 float64, err error) {
	where := []string{"duration_us IS NOT NULL"}
	var args []any
	paramIdx := 1
	add := func(clause string, value any) {
		where = append(where, clause)
		args = append(args, value)
		paramIdx++
	}
	if f.ServiceName != "" {
		add(repo.Eq(f.ServiceName).String("service_name", paramIdx), f.ServiceName)
	}
	if f.StartTimeFrom != nil {
		add(repo.Gte(*f.StartTimeFrom).String("start_time", paramIdx), *f.StartTimeFrom)
	}
	if f.StartTimeTo != nil {
		add(repo.Lte(*f.StartTimeTo).String("start_time", paramIdx), *f.StartTimeTo)
	}

	query := `SELECT
		percentile_cont(0.50) WITHIN GROUP (ORDER BY duration_us),
		percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_us),
		percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_us)
		FROM traces WHERE ` + joinAnd(where)

	row := r.pool.QueryRow(ctx, query, args...)
	if scanErr := row.Scan(&p50, &p95, &p99); scanErr != nil {
		return 0, 0, 0, apperror.FromDB(scanErr)
	}
	return p50, p95, p99, nil
}

// DeleteBefore removes trace rows with start_time before cutoff, returning
// the affected row count.
func (r *TraceRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM traces WHERE start_time < $1", cutoff)
	if err != nil {
		return 0, apperror.FromDB(err)
	}
	return tag.RowsAffected(), nil
}

func joinAnd(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}
