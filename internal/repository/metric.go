package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/model"
)

// MetricRepository is the read/delete surface over the metrics and
// metric_data_points tables.
type MetricRepository struct {
	pool *pgxpool.Pool
}

// NewMetricRepository constructs a MetricRepository borrowing connections
// from pool.
func NewMetricRepository(pool *pgxpool.Pool) *MetricRepository {
	return &MetricRepository{pool: pool}
}

// GetByID returns the metric definition with internal id, or a not-found
// error.
func (r *MetricRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Metric, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, unit, metric_type, service_name,
		attributes, resource_attributes, created_at, updated_at FROM metrics WHERE id = $1`, id)

	var m model.Metric
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Unit, &m.MetricType, &m.ServiceName,
		&m.Attributes, &m.ResourceAttributes, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &m, nil
}

// Aggregation is the set of reducers QueryTimeSeries supports.
type Aggregation string

const (
	AggAvg   Aggregation = "avg"
	AggSum   Aggregation = "sum"
	AggMin   Aggregation = "min"
	AggMax   Aggregation = "max"
	AggCount Aggregation = "count"
)

func (a Aggregation) sqlExpr() string {
	switch a {
	case AggSum:
		return "sum(value)"
	case AggMin:
		return "min(value)"
	case AggMax:
		return "max(value)"
	case AggCount:
		return "count(*)"
	default:
		return "avg(value)"
	}
}

func (a Aggregation) valid() bool {
	switch a {
	case AggAvg, AggSum, AggMin, AggMax, AggCount:
		return true
	default:
		return false
	}
}

// TimeSeriesPoint is one bucket of a QueryTimeSeries result.
type TimeSeriesPoint struct {
	BucketStart     time.Time
	AggregatedValue float64
	SampleCount     int64
}

// QueryTimeSeries buckets metricID's data points into bucketSeconds-wide
// windows between start and end, reducing each bucket with aggregation,
// using Postgres's date_bin as the portable time-bucket function.
func (r *MetricRepository) QueryTimeSeries(ctx context.Context, metricID uuid.UUID, start, end time.Time, aggregation Aggregation, bucketSeconds int) ([]TimeSeriesPoint, error) {
	if !aggregation.valid() {
		return nil, apperror.New(apperror.CodeValidation, "unsupported aggregation").WithField("aggregation")
	}
	if bucketSeconds <= 0 {
		return nil, apperror.New(apperror.CodeValidation, "bucket_seconds must be positive").WithField("bucket_seconds")
	}

	query := `SELECT date_bin(make_interval(secs => $1), timestamp, $2) AS bucket_start,
		` + aggregation.sqlExpr() + ` AS aggregated_value,
		count(*) AS sample_count
		FROM metric_data_points
		WHERE metric_id = $3 AND timestamp >= $2 AND timestamp <= $4
		GROUP BY bucket_start
		ORDER BY bucket_start ASC`

	rows, err := r.pool.Query(ctx, query, bucketSeconds, start, metricID, end)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	defer rows.Close()

	var points []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.BucketStart, &p.AggregatedValue, &p.SampleCount); err != nil {
			return nil, apperror.FromDB(err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(err)
	}
	return points, nil
}

// Percentiles returns P50/P95/P99 value over metricID's data points between
// start and end.
func (r *MetricRepository) Percentiles(ctx context.Context, metricID uuid.UUID, start, end time.Time) (p50, p95, p99 float64, err error) {
	query := `SELECT
		percentile_cont(0.50) WITHIN GROUP (ORDER BY value),
		percentile_cont(0.95) WITHIN GROUP (ORDER BY value),
		percentile_cont(0.99) WITHIN GROUP (ORDER BY value)
		FROM metric_data_points
		WHERE metric_id = $1 AND timestamp >= $2 AND timestamp <= $3 AND value IS NOT NULL`

	row := r.pool.QueryRow(ctx, query, metricID, start, end)
	if scanErr := row.Scan(&p50, &p95, &p99); scanErr != nil {
		return 0, 0, 0, apperror.FromDB(scanErr)
	}
	return p50, p95, p99, nil
}

// DeleteBefore removes metric_data_points rows with timestamp before
// cutoff, returning the affected row count. Metric definitions themselves
// are retained; only their historical observations age out.
func (r *MetricRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM metric_data_points WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, apperror.FromDB(err)
	}
	return tag.RowsAffected(), nil
}
