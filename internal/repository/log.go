package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/model"
	"github.com/iota-uz/llm-observatory-storage/pkg/repo"
)

const logColumns = `id, timestamp, observed_timestamp, severity_number, severity_text, body,
	service_name, trace_id, span_id, trace_flags, attributes, resource_attributes,
	scope_name, scope_version, scope_attributes, created_at`

// LogRepository is the read/delete surface over the logs table.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository constructs a LogRepository borrowing connections from
// pool.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

func scanLog(row pgx.Row) (*model.LogRecord, error) {
	var l model.LogRecord
	err := row.Scan(
		&l.ID, &l.Timestamp, &l.ObservedTimestamp, &l.SeverityNumber, &l.SeverityText, &l.Body,
		&l.ServiceName, &l.TraceID, &l.SpanID, &l.TraceFlags, &l.Attributes, &l.ResourceAttributes,
		&l.ScopeName, &l.ScopeVersion, &l.ScopeAttributes, &l.CreatedAt,
	)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &l, nil
}

// LogListFilter is the common shape of a log list query.
type LogListFilter struct {
	ServiceName    string
	SeverityMin    *int32
	TraceID        string
	TimestampFrom  *time.Time
	TimestampTo    *time.Time
	Cursor         *Cursor
	Limit          int
}

// List returns up to the clamped filter.Limit log rows, sorted by timestamp
// descending, and whether more follow (it fetches one extra row to tell).
func (r *LogRepository) List(ctx context.Context, f LogListFilter) ([]*model.LogRecord, bool, error) {
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
	if f.SeverityMin != nil {
		add(repo.Gte(*f.SeverityMin).String("severity_number", paramIdx), *f.SeverityMin)
	}
	if f.TraceID != "" {
		add(repo.Eq(f.TraceID).String("trace_id", paramIdx), f.TraceID)
	}
	if f.TimestampFrom != nil {
		add(repo.Gte(*f.TimestampFrom).String("timestamp", paramIdx), *f.TimestampFrom)
	}
	if f.TimestampTo != nil {
		add(repo.Lte(*f.TimestampTo).String("timestamp", paramIdx), *f.TimestampTo)
	}
	if f.Cursor != nil {
		where = append(where, "timestamp < $"+strconv.Itoa(paramIdx))
		args = append(args, f.Cursor.Timestamp)
		paramIdx++
	}

	limit := ClampLimit(f.Limit, 100)
	query := "SELECT " + logColumns + " FROM logs WHERE " + joinAnd(where) +
		" ORDER BY timestamp DESC LIMIT $" + strconv.Itoa(paramIdx)
	args = append(args, limit+1)

	logs, err := r.queryLogs(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	page, hasMore := splitHasMore(logs, limit)
	return page, hasMore, nil
}

func (r *LogRepository) queryLogs(ctx context.Context, query string, args ...any) ([]*model.LogRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	defer rows.Close()

	var logs []*model.LogRecord
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(err)
	}
	return logs, nil
}

// SearchResult bundles full-text search hits with an optional
// "did you mean" suggestion surfaced when the search came up empty and a
// service name filter narrowed the candidate set too far.
type SearchResult struct {
	Logs       []*model.LogRecord
	Suggestion string
}

// SearchText matches query against the log body's precomputed tsvector
// index column. When the search returns no rows and f.ServiceName is set,
// it additionally scans the distinct service-name set for a close match by
// Levenshtein distance, surfacing it as a suggestion.
func (r *LogRepository) SearchText(ctx context.Context, query string, f LogListFilter) (SearchResult, error) {
	where := []string{"body_tsv @@ plainto_tsquery('english', $1)"}
	args := []any{query}
	paramIdx := 2
	add := func(clause string, value any) {
		where = append(where, clause)
		args = append(args, value)
		paramIdx++
	}
	if f.ServiceName != "" {
		add(repo.Eq(f.ServiceName).String("service_name", paramIdx), f.ServiceName)
	}
	if f.TimestampFrom != nil {
		add(repo.Gte(*f.TimestampFrom).String("timestamp", paramIdx), *f.TimestampFrom)
	}
	if f.TimestampTo != nil {
		add(repo.Lte(*f.TimestampTo).String("timestamp", paramIdx), *f.TimestampTo)
	}

	limit := ClampLimit(f.Limit, 100)
	sqlQuery := "SELECT " + logColumns + " FROM logs WHERE " + joinAnd(where) +
		" ORDER BY timestamp DESC LIMIT $" + strconv.Itoa(paramIdx)
	args = append(args, limit)

	logs, err := r.queryLogs(ctx, sqlQuery, args...)
	if err != nil {
		return SearchResult{}, err
	}
	if len(logs) > 0 || f.ServiceName == "" {
		return SearchResult{Logs: logs}, nil
	}

	suggestion, err := r.suggestServiceName(ctx, f.ServiceName)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Logs: logs, Suggestion: suggestion}, nil
}

// suggestServiceName scans the distinct service-name set for the closest
// match to name by Levenshtein distance, returning "" if nothing is within
// a third of the input's length (too dissimilar to be a useful suggestion).
func (r *LogRepository) suggestServiceName(ctx context.Context, name string) (string, error) {
	rows, err := r.pool.Query(ctx, "SELECT DISTINCT service_name FROM logs")
	if err != nil {
		return "", apperror.FromDB(err)
	}
	defer rows.Close()

	best := ""
	bestDistance := len(name)/3 + 1
	for rows.Next() {
		var candidate string
		if err := rows.Scan(&candidate); err != nil {
			return "", apperror.FromDB(err)
		}
		d := levenshtein.ComputeDistance(name, candidate)
		if d < bestDistance {
			bestDistance = d
			best = candidate
		}
	}
	if err := rows.Err(); err != nil {
		return "", apperror.FromDB(err)
	}
	return best, nil
}

// StreamLogs polls for log rows newer than the watermark on a 1s ticker,
// advancing the watermark to the greatest timestamp seen on every batch.
// The returned channel closes when ctx is cancelled.
func (r *LogRepository) StreamLogs(ctx context.Context, f LogListFilter) <-chan []*model.LogRecord {
	out := make(chan []*model.LogRecord)

	go func() {
		defer close(out)

		watermark := time.Now().UTC()
		if f.TimestampFrom != nil {
			watermark = *f.TimestampFrom
		}

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pollFilter := f
				pollFilter.TimestampFrom = &watermark
				pollFilter.Cursor = nil
				batch, _, err := r.List(ctx, pollFilter)
				if err != nil || len(batch) == 0 {
					continue
				}
				for _, l := range batch {
					if l.Timestamp.After(watermark) {
						watermark = l.Timestamp
					}
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// DeleteBefore removes log rows with timestamp before cutoff, returning the
// affected row count.
func (r *LogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, apperror.FromDB(err)
	}
	return tag.RowsAffected(), nil
}
