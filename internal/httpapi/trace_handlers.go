package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/authctx"
	"github.com/iota-uz/llm-observatory-storage/internal/filter"
	"github.com/iota-uz/llm-observatory-storage/internal/model"
	"github.com/iota-uz/llm-observatory-storage/internal/repository"
)

// TraceHandlers serves the trace list/search/get endpoints.
type TraceHandlers struct {
	traces *repository.TraceRepository
	cache  responseCache
}

// NewTraceHandlers constructs TraceHandlers over repo, caching list/get
// responses via cache (a nil Redis client degrades to no caching).
func NewTraceHandlers(repo *repository.TraceRepository, cache responseCache) *TraceHandlers {
	return &TraceHandlers{traces: repo, cache: cache}
}

func (h *TraceHandlers) requireRead(w http.ResponseWriter, r *http.Request, requestID string) (authctx.AuthContext, bool) {
	ac, ok := authctx.AuthContextFromRequest(r)
	if !ok || !ac.HasPermission("read:traces") {
		apperror.WriteHTTP(w, apperror.New(apperror.CodeForbidden, "missing read:traces permission"), requestID)
		return authctx.AuthContext{}, false
	}
	return ac, true
}

// List serves GET /api/v1/traces.
func (h *TraceHandlers) List(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())

	ac, ok := h.requireRead(w, r, requestID)
	if !ok {
		return
	}
	if _, err := ac.RequireProjectAccess(r.URL.Query().Get("project_id")); err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	cursor, err := parseCursor(r)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}
	limit := parseLimit(r, 50)

	f := repository.ListFilter{
		ServiceName: r.URL.Query().Get("service_name"),
		Status:      model.Status(r.URL.Query().Get("status")),
		Cursor:      cursor,
		Limit:       limit,
	}
	if t, present, perr := parseTimeParam(r, "start_time_from"); perr != nil {
		apperror.WriteHTTP(w, perr, requestID)
		return
	} else if present {
		f.StartTimeFrom = &t
	}
	if t, present, perr := parseTimeParam(r, "start_time_to"); perr != nil {
		apperror.WriteHTTP(w, perr, requestID)
		return
	} else if present {
		f.StartTimeTo = &t
	}

	var cacheKey string
	useCache := cursor == nil
	if useCache {
		cacheKey = h.cache.key("trace.list", ac.UserID, r.URL.RawQuery)
		if cached, hit := h.cache.get(r.Context(), cacheKey); hit {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}
	}

	traces, hasMore, err := h.traces.List(r.Context(), f)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	pagination := &Pagination{HasMore: hasMore, Limit: limit}
	if hasMore && len(traces) > 0 {
		last := traces[len(traces)-1]
		pagination.NextCursor = repository.Cursor{Timestamp: last.StartTime, TraceID: last.TraceID}.Encode()
	}

	env := Envelope{
		Status:     "success",
		Data:       traces,
		Pagination: pagination,
		Meta: Meta{
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Version:         Version,
			RequestID:       requestID,
		},
	}

	if useCache {
		windowEnd := time.Now()
		if f.StartTimeTo != nil {
			windowEnd = *f.StartTimeTo
		}
		h.cache.set(r.Context(), cacheKey, env, ttlFor(windowEnd))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(env)
}

// searchRequest is the advanced-search endpoint's JSON body shape.
type searchRequest struct {
	Filter   json.RawMessage `json:"filter"`
	SortBy   string          `json:"sort_by"`
	SortDesc bool            `json:"sort_desc"`
	Cursor   string          `json:"cursor"`
	Limit    int             `json:"limit"`
	Fields   []string        `json:"fields"`
}

// Search serves POST /api/v1/traces/search.
func (h *TraceHandlers) Search(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())

	ac, ok := h.requireRead(w, r, requestID)
	if !ok {
		return
	}
	if _, err := ac.RequireProjectAccess(r.URL.Query().Get("project_id")); err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(apperror.CodeValidation, "malformed request body", err), requestID)
		return
	}

	tree, err := filter.ParseJSON(req.Filter)
	if err != nil {
		apperror.WriteHTTP(w, apperror.Wrap(apperror.CodeInvalidFilter, "invalid filter", err), requestID)
		return
	}

	limit := repository.ClampLimit(req.Limit, 50)
	traces, hasMore, err := h.traces.Search(r.Context(), tree, limit)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	pagination := &Pagination{HasMore: hasMore, Limit: limit}
	if hasMore && len(traces) > 0 {
		last := traces[len(traces)-1]
		pagination.NextCursor = repository.Cursor{Timestamp: last.StartTime, TraceID: last.TraceID}.Encode()
	}

	writeEnvelope(w, r, http.StatusOK, traces, pagination, started, false)
}

// Get serves GET /api/v1/traces/{trace_id}.
func (h *TraceHandlers) Get(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := RequestIDFromContext(r.Context())

	ac, ok := h.requireRead(w, r, requestID)
	if !ok {
		return
	}
	if _, err := ac.RequireProjectAccess(r.URL.Query().Get("project_id")); err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	traceID := mux.Vars(r)["trace_id"]
	cacheKey := h.cache.key("trace.get", traceID)
	if cached, hit := h.cache.get(r.Context(), cacheKey); hit {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	trace, spans, err := h.traces.GetWithSpans(r.Context(), traceID)
	if err != nil {
		apperror.WriteHTTP(w, err, requestID)
		return
	}

	data := struct {
		Trace *model.Trace  `json:"trace"`
		Spans []*model.Span `json:"spans"`
	}{Trace: trace, Spans: spans}

	env := Envelope{
		Status: "success",
		Data:   data,
		Meta: Meta{
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Version:         Version,
			RequestID:       requestID,
		},
	}
	h.cache.set(r.Context(), cacheKey, env, 5*time.Minute)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(env)
}
