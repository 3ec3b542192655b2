package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
)

// costExpr and tokenExprs extract the GenAI semantic-convention attributes
// (gen_ai.usage.cost, gen_ai.usage.input_tokens, gen_ai.usage.output_tokens,
// gen_ai.request.model, gen_ai.system) that producers attach to LLM-call
// spans, since cost and token counts are not first-class columns — they
// live in the span's free-form attribute map.
const (
	costExpr     = `NULLIF(attributes->>'gen_ai.usage.cost', '')::float8`
	inTokExpr    = `COALESCE(NULLIF(attributes->>'gen_ai.usage.input_tokens', '')::int8, 0)`
	outTokExpr   = `COALESCE(NULLIF(attributes->>'gen_ai.usage.output_tokens', '')::int8, 0)`
	modelExpr    = `attributes->>'gen_ai.request.model'`
	providerExpr = `attributes->>'gen_ai.system'`
)

// AnalyticsRepository aggregates cost, performance, and quality summaries
// over the spans table for the HTTP analytics endpoints.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository constructs an AnalyticsRepository borrowing
// connections from pool.
func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{pool: pool}
}

// AnalyticsFilter narrows an analytics query to a time window, provider,
// model, and/or service (environment).
type AnalyticsFilter struct {
	Start       time.Time
	End         time.Time
	Provider    string
	Model       string
	ServiceName string
}

func (f AnalyticsFilter) whereClause() ([]string, []any) {
	where := []string{"start_time >= $1", "start_time <= $2"}
	args := []any{f.Start, f.End}
	idx := 3
	if f.Provider != "" {
		where = append(where, providerExpr+" = $"+strconv.Itoa(idx))
		args = append(args, f.Provider)
		idx++
	}
	if f.Model != "" {
		where = append(where, modelExpr+" = $"+strconv.Itoa(idx))
		args = append(args, f.Model)
		idx++
	}
	if f.ServiceName != "" {
		where = append(where, "service_name = $"+strconv.Itoa(idx))
		args = append(args, f.ServiceName)
		idx++
	}
	return where, args
}

// CostSummary is the aggregate cost/token picture over a filtered span set.
type CostSummary struct {
	TotalCost    float64
	AvgCost      float64
	TotalTokens  int64
	RequestCount int64
}

// CostSummary computes totals and averages over spans carrying GenAI cost
// attributes within f's window.
func (r *AnalyticsRepository) CostSummary(ctx context.Context, f AnalyticsFilter) (CostSummary, error) {
	where, args := f.whereClause()
	query := `SELECT COALESCE(sum(` + costExpr + `), 0), COALESCE(avg(` + costExpr + `), 0),
		COALESCE(sum(` + inTokExpr + ` + ` + outTokExpr + `), 0), count(*)
		FROM trace_spans WHERE ` + joinAnd(where) + ` AND ` + costExpr + ` IS NOT NULL`

	var s CostSummary
	row := r.pool.QueryRow(ctx, query, args...)
	if err := row.Scan(&s.TotalCost, &s.AvgCost, &s.TotalTokens, &s.RequestCount); err != nil {
		return CostSummary{}, apperror.FromDB(err)
	}
	return s, nil
}

// CostBreakdownRow is one grouped row of CostBreakdown, keyed by the
// requested dimension (model or provider).
type CostBreakdownRow struct {
	Key          string
	TotalCost    float64
	RequestCount int64
}

// CostBreakdown groups cost by "model" or "provider" (any other value
// defaults to "model").
func (r *AnalyticsRepository) CostBreakdown(ctx context.Context, f AnalyticsFilter, by string) ([]CostBreakdownRow, error) {
	groupExpr := modelExpr
	if by == "provider" {
		groupExpr = providerExpr
	}
	where, args := f.whereClause()
	query := `SELECT ` + groupExpr + ` AS key, COALESCE(sum(` + costExpr + `), 0), count(*)
		FROM trace_spans WHERE ` + joinAnd(where) + ` AND ` + costExpr + ` IS NOT NULL
		GROUP BY key ORDER BY 2 DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	defer rows.Close()

	var out []CostBreakdownRow
	for rows.Next() {
		var row CostBreakdownRow
		if err := rows.Scan(&row.Key, &row.TotalCost, &row.RequestCount); err != nil {
			return nil, apperror.FromDB(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(err)
	}
	return out, nil
}

// PerformanceSummary is latency/throughput picture over a filtered span
// set.
type PerformanceSummary struct {
	P50Us        float64
	P95Us        float64
	P99Us        float64
	AvgUs        float64
	RequestCount int64
	Throughput   float64 // requests per second across the window
}

// PerformanceSummary computes latency percentiles and throughput over
// f's window.
func (r *AnalyticsRepository) PerformanceSummary(ctx context.Context, f AnalyticsFilter) (PerformanceSummary, error) {
	where, args := f.whereClause()
	query := `SELECT
		COALESCE(percentile_cont(0.50) WITHIN GROUP (ORDER BY duration_us), 0),
		COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_us), 0),
		COALESCE(percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_us), 0),
		COALESCE(avg(duration_us), 0), count(*)
		FROM trace_spans WHERE ` + joinAnd(where) + ` AND duration_us IS NOT NULL`

	var s PerformanceSummary
	row := r.pool.QueryRow(ctx, query, args...)
	if err := row.Scan(&s.P50Us, &s.P95Us, &s.P99Us, &s.AvgUs, &s.RequestCount); err != nil {
		return PerformanceSummary{}, apperror.FromDB(err)
	}
	windowSecs := f.End.Sub(f.Start).Seconds()
	if windowSecs > 0 {
		s.Throughput = float64(s.RequestCount) / windowSecs
	}
	return s, nil
}

// QualitySummary is the success/error breakdown over a filtered span set.
type QualitySummary struct {
	TotalCount   int64
	ErrorCount   int64
	OKCount      int64
	UnsetCount   int64
	ErrorRatePct float64
}

// QualitySummary computes the status breakdown over f's window.
func (r *AnalyticsRepository) QualitySummary(ctx context.Context, f AnalyticsFilter) (QualitySummary, error) {
	where, args := f.whereClause()
	query := `SELECT count(*) FILTER (WHERE status = 'error'), count(*) FILTER (WHERE status = 'ok'),
		count(*) FILTER (WHERE status = 'unset'), count(*)
		FROM trace_spans WHERE ` + joinAnd(where)

	var s QualitySummary
	row := r.pool.QueryRow(ctx, query, args...)
	if err := row.Scan(&s.ErrorCount, &s.OKCount, &s.UnsetCount, &s.TotalCount); err != nil {
		return QualitySummary{}, apperror.FromDB(err)
	}
	if s.TotalCount > 0 {
		s.ErrorRatePct = float64(s.ErrorCount) / float64(s.TotalCount) * 100
	}
	return s, nil
}

// ModelMetrics is one model's metrics slice for the multi-model comparison
// endpoint.
type ModelMetrics struct {
	Model        string
	AvgCost      float64
	AvgLatencyUs float64
	ErrorRatePct float64
	RequestCount int64
}

// ModelCompare returns per-model metrics for each name in models.
func (r *AnalyticsRepository) ModelCompare(ctx context.Context, f AnalyticsFilter, models []string) ([]ModelMetrics, error) {
	out := make([]ModelMetrics, 0, len(models))
	for _, model := range models {
		mf := f
		mf.Model = model
		where, args := mf.whereClause()

		query := `SELECT COALESCE(avg(` + costExpr + `), 0), COALESCE(avg(duration_us), 0),
			(count(*) FILTER (WHERE status = 'error'))::float8 / NULLIF(count(*), 0) * 100,
			count(*)
			FROM trace_spans WHERE ` + joinAnd(where)

		var m ModelMetrics
		m.Model = model
		var errRate *float64
		row := r.pool.QueryRow(ctx, query, args...)
		if err := row.Scan(&m.AvgCost, &m.AvgLatencyUs, &errRate, &m.RequestCount); err != nil {
			return nil, apperror.FromDB(err)
		}
		if errRate != nil {
			m.ErrorRatePct = *errRate
		}
		out = append(out, m)
	}
	return out, nil
}

// TrendPoint is one period's aggregate in a Trends report.
type TrendPoint struct {
	PeriodStart  time.Time
	TotalCost    float64
	RequestCount int64
	ErrorRatePct float64
}

// Trends buckets f's window into bucketSeconds-wide periods and reports
// cost/volume/error-rate per period, for period-over-period comparison.
func (r *AnalyticsRepository) Trends(ctx context.Context, f AnalyticsFilter, bucketSeconds int) ([]TrendPoint, error) {
	where, args := f.whereClause()
	idx := len(args) + 1
	query := `SELECT date_bin(make_interval(secs => $` + strconv.Itoa(idx) + `), start_time, $1) AS bucket_start,
		COALESCE(sum(` + costExpr + `), 0), count(*),
		COALESCE((count(*) FILTER (WHERE status = 'error'))::float8 / NULLIF(count(*), 0) * 100, 0)
		FROM trace_spans WHERE ` + joinAnd(where) + `
		GROUP BY bucket_start ORDER BY bucket_start ASC`
	args = append(args, bucketSeconds)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.PeriodStart, &p.TotalCost, &p.RequestCount, &p.ErrorRatePct); err != nil {
			return nil, apperror.FromDB(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.FromDB(err)
	}
	return out, nil
}
