package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/authctx"
	"github.com/iota-uz/llm-observatory-storage/internal/dbpool"
	"github.com/iota-uz/llm-observatory-storage/internal/obsmetrics"
	"github.com/iota-uz/llm-observatory-storage/internal/repository"
	"github.com/iota-uz/llm-observatory-storage/pkg/middleware"
)

// RouterConfig bundles everything NewRouter needs to wire the authenticated
// analytics surface over a pool manager.
type RouterConfig struct {
	Pool        *dbpool.Manager
	Metrics     *obsmetrics.Collector
	JWTSecret   []byte
	RateLimit   middleware.Store
	DocsBaseURL string
}

// NewRouter builds the complete gorilla/mux router: unauthenticated health
// and metrics endpoints, then the authenticated /api/v1 surface behind
// auth, rate-limit, and caching middleware, in that order (auth resolves
// identity before rate-limit keys on it; caching wraps the innermost
// response).
func NewRouter(cfg RouterConfig) *mux.Router {
	if cfg.DocsBaseURL != "" {
		apperror.DocsBaseURL = cfg.DocsBaseURL
	}

	r := mux.NewRouter()
	r.Use(RequestID)

	r.Handle("/health", cfg.Pool.HealthHandler()).Methods(http.MethodGet)
	r.Handle("/health/live", dbpool.LiveHandler()).Methods(http.MethodGet)
	r.Handle("/health/ready", cfg.Pool.ReadyHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	cache := newResponseCache(cfg.Pool.Cache())
	traceHandlers := NewTraceHandlers(repository.NewTraceRepository(cfg.Pool.Pool()), cache)
	analyticsHandlers := NewAnalyticsHandlers(repository.NewAnalyticsRepository(cfg.Pool.Pool()))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authctx.Middleware(cfg.JWTSecret, respondError))
	api.Use(middleware.RoleBased(cfg.RateLimit))
	api.Use(middleware.Caching(middleware.CachingConfig{MaxAge: 60 * time.Second}))

	api.HandleFunc("/traces", traceHandlers.List).Methods(http.MethodGet)
	api.HandleFunc("/traces/search", traceHandlers.Search).Methods(http.MethodPost)
	api.HandleFunc("/traces/{trace_id}", traceHandlers.Get).Methods(http.MethodGet)

	api.HandleFunc("/analytics/costs", analyticsHandlers.Costs).Methods(http.MethodGet)
	api.HandleFunc("/analytics/costs/breakdown", analyticsHandlers.CostsBreakdown).Methods(http.MethodGet)
	api.HandleFunc("/analytics/performance", analyticsHandlers.Performance).Methods(http.MethodGet)
	api.HandleFunc("/analytics/quality", analyticsHandlers.Quality).Methods(http.MethodGet)
	api.HandleFunc("/analytics/models/compare", analyticsHandlers.ModelsCompare).Methods(http.MethodGet)
	api.HandleFunc("/analytics/optimization", analyticsHandlers.Optimization).Methods(http.MethodGet)
	api.HandleFunc("/analytics/trends", analyticsHandlers.Trends).Methods(http.MethodGet)

	return r
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	apperror.WriteHTTP(w, err, RequestIDFromContext(r.Context()))
}
