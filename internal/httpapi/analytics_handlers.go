package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/Rhymond/go-money"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/authctx"
	"github.com/iota-uz/llm-observatory-storage/internal/repository"
)

// AnalyticsHandlers serves the cost/performance/quality/trend analytics
// endpoints, each dispatching to one or more AnalyticsRepository operations
// and composing derived percentages and recommendations.
type AnalyticsHandlers struct {
	repo *repository.AnalyticsRepository
}

// NewAnalyticsHandlers constructs AnalyticsHandlers over repo.
func NewAnalyticsHandlers(repo *repository.AnalyticsRepository) *AnalyticsHandlers {
	return &AnalyticsHandlers{repo: repo}
}

func (h *AnalyticsHandlers) requirePermission(w http.ResponseWriter, r *http.Request, requestID, permission string) (authctx.AuthContext, bool) {
	ac, ok := authctx.AuthContextFromRequest(r)
	if !ok || !ac.HasPermission(permission) {
		apperror.WriteHTTP(w, apperror.New(apperror.CodeForbidden, "missing "+permission+" permission"), requestID)
		return authctx.AuthContext{}, false
	}
	return ac, true
}

func (h *AnalyticsHandlers) commonFilter(r *http.Request) (repository.AnalyticsFilter, error) {
	start, end, err := parseAnalyticsWindow(r)
	if err != nil {
		return repository.AnalyticsFilter{}, err
	}
	q := r.URL.Query()
	return repository.AnalyticsFilter{
		Start:       start,
		End:         end,
		Provider:    q.Get("provider"),
		Model:       q.Get("model"),
		ServiceName: q.Get("environment"),
	}, nil
}

// moneyString renders a USD float (already summed in Postgres, not
// accumulated in Go) as a plain decimal string via go-money's Money type,
// which carries the amount as an integer minor-unit count rather than a
// float all the way to the JSON boundary.
func moneyString(amount float64) string {
	m := money.New(int64(amount*100+0.5), "USD")
	display := m.Display()
	return strings.TrimPrefix(display, "$")
}

// Costs serves GET /api/v1/analytics/costs.
func (h *AnalyticsHandlers) Costs(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())
	if _, ok := h.requirePermission(w, r, requestID, "read:costs"); !ok {
		return
	}
	f, err := h.commonFilter(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	summary, err := h.repo.CostSummary(r.Context(), f)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}
	bucketSeconds := granularityToSeconds(r.URL.Query().Get("granularity"))
	trend, err := h.repo.Trends(r.Context(), f, bucketSeconds)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	data := map[string]any{
		"total_cost_usd": moneyString(summary.TotalCost),
		"avg_cost_usd":   moneyString(summary.AvgCost),
		"total_tokens":   summary.TotalTokens,
		"request_count":  summary.RequestCount,
		"time_series":    trend,
	}
	writeEnvelope(w, r, http.StatusOK, data, nil, started, false)
}

// CostsBreakdown serves GET /api/v1/analytics/costs/breakdown.
func (h *AnalyticsHandlers) CostsBreakdown(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())
	if _, ok := h.requirePermission(w, r, requestID, "read:costs"); !ok {
		return
	}
	f, err := h.commonFilter(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	by := r.URL.Query().Get("by")
	rows, err := h.repo.CostBreakdown(r.Context(), f, by)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	type breakdownEntry struct {
		Key          string `json:"key"`
		TotalCostUSD string `json:"total_cost_usd"`
		RequestCount int64  `json:"request_count"`
	}
	entries := make([]breakdownEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, breakdownEntry{Key: row.Key, TotalCostUSD: moneyString(row.TotalCost), RequestCount: row.RequestCount})
	}
	writeEnvelope(w, r, http.StatusOK, entries, nil, started, false)
}

// Performance serves GET /api/v1/analytics/performance.
func (h *AnalyticsHandlers) Performance(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())
	if _, ok := h.requirePermission(w, r, requestID, "read:metrics"); !ok {
		return
	}
	f, err := h.commonFilter(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	summary, err := h.repo.PerformanceSummary(r.Context(), f)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}
	writeEnvelope(w, r, http.StatusOK, summary, nil, started, false)
}

// Quality serves GET /api/v1/analytics/quality.
func (h *AnalyticsHandlers) Quality(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())
	if _, ok := h.requirePermission(w, r, requestID, "read:metrics"); !ok {
		return
	}
	f, err := h.commonFilter(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	summary, err := h.repo.QualitySummary(r.Context(), f)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}
	writeEnvelope(w, r, http.StatusOK, summary, nil, started, false)
}

// modelComparisonThresholds are the spec's fixed thresholds for flagging a
// model as expensive, slow, or unreliable in the comparison summary.
const (
	costThresholdUSD    = 0.01
	latencyThresholdUs  = 2000 * 1000
	errorRateThresholdP = 5.0
)

// ModelsCompare serves GET /api/v1/analytics/models/compare?models=a,b[,...].
func (h *AnalyticsHandlers) ModelsCompare(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())
	if _, ok := h.requirePermission(w, r, requestID, "read:metrics"); !ok {
		return
	}
	f, err := h.commonFilter(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	raw := r.URL.Query().Get("models")
	models := splitNonEmpty(raw, ",")
	if len(models) < 2 {
		apperror.WriteHTTP(w, apperror.New(apperror.CodeValidation, "models requires at least 2 comma-separated values").WithField("models"), requestID)
		return
	}

	metrics, err := h.repo.ModelCompare(r.Context(), f, models)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	summary := summarizeModels(metrics)
	data := map[string]any{"models": metrics, "summary": summary}
	writeEnvelope(w, r, http.StatusOK, data, nil, started, false)
}

// modelSummary is ModelsCompare's derived "fastest/cheapest/most-reliable"
// summary plus free-form recommendations.
type modelSummary struct {
	Fastest         string   `json:"fastest"`
	Cheapest        string   `json:"cheapest"`
	MostReliable    string   `json:"most_reliable"`
	Recommendations []string `json:"recommendations"`
}

func summarizeModels(metrics []repository.ModelMetrics) modelSummary {
	if len(metrics) == 0 {
		return modelSummary{}
	}
	fastest, cheapest, reliable := metrics[0], metrics[0], metrics[0]
	var recs []string
	for _, m := range metrics {
		if m.AvgLatencyUs < fastest.AvgLatencyUs {
			fastest = m
		}
		if m.AvgCost < cheapest.AvgCost {
			cheapest = m
		}
		if m.ErrorRatePct < reliable.ErrorRatePct {
			reliable = m
		}
		if m.AvgCost > costThresholdUSD {
			recs = append(recs, m.Model+" costs more than $0.01/request on average; consider a cheaper model for low-value requests")
		}
		if m.AvgLatencyUs > latencyThresholdUs {
			recs = append(recs, m.Model+" averages over 2000ms latency; consider caching or a faster model")
		}
		if m.ErrorRatePct > errorRateThresholdP {
			recs = append(recs, m.Model+" has an error rate above 5%; investigate before relying on it in production")
		}
	}
	return modelSummary{Fastest: fastest.Model, Cheapest: cheapest.Model, MostReliable: reliable.Model, Recommendations: recs}
}

// Optimization serves GET /api/v1/analytics/optimization: threshold-based
// recommendations over the full filtered span population, reusing the
// same thresholds ModelsCompare applies per-model.
func (h *AnalyticsHandlers) Optimization(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())
	if _, ok := h.requirePermission(w, r, requestID, "read:metrics"); !ok {
		return
	}
	f, err := h.commonFilter(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	cost, err := h.repo.CostSummary(r.Context(), f)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}
	perf, err := h.repo.PerformanceSummary(r.Context(), f)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}
	quality, err := h.repo.QualitySummary(r.Context(), f)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	var recs []string
	if cost.AvgCost > costThresholdUSD {
		recs = append(recs, "average cost per request exceeds $0.01; review model selection for high-volume endpoints")
	}
	if perf.P95Us > latencyThresholdUs {
		recs = append(recs, "p95 latency exceeds 2000ms; consider request batching or a faster model tier")
	}
	if quality.ErrorRatePct > errorRateThresholdP {
		recs = append(recs, "error rate exceeds 5%; investigate recent failures before scaling traffic")
	}

	data := map[string]any{
		"cost":            cost,
		"performance":     perf,
		"quality":         quality,
		"recommendations": recs,
	}
	writeEnvelope(w, r, http.StatusOK, data, nil, started, false)
}

// Trends serves GET /api/v1/analytics/trends: the current window's
// bucketed series alongside the immediately preceding window of equal
// length, for period-over-period comparison.
func (h *AnalyticsHandlers) Trends(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())
	if _, ok := h.requirePermission(w, r, requestID, "read:metrics"); !ok {
		return
	}
	f, err := h.commonFilter(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	bucketSeconds := granularityToSeconds(r.URL.Query().Get("granularity"))
	current, err := h.repo.Trends(r.Context(), f, bucketSeconds)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	windowLen := f.End.Sub(f.Start)
	priorFilter := f
	priorFilter.Start = f.Start.Add(-windowLen)
	priorFilter.End = f.Start
	prior, err := h.repo.Trends(r.Context(), priorFilter, bucketSeconds)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	data := map[string]any{"current_period": current, "prior_period": prior}
	writeEnvelope(w, r, http.StatusOK, data, nil, started, false)
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
