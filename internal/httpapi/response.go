// Package httpapi implements the authenticated analytics HTTP surface:
// trace list/search/get, cost/performance/quality/trend analytics, wrapped
// in a common response envelope with request-id propagation, auth, rate
// limiting, and ETag caching middleware.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Envelope is the success response shape every handler in this package
// returns: status, payload, optional pagination block, and request
// metadata.
type Envelope struct {
	Status     string      `json:"status"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Meta       Meta        `json:"meta"`
}

// Pagination describes the cursor state of a list response.
type Pagination struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
	Limit      int    `json:"limit"`
}

// Meta carries request-scoped bookkeeping echoed on every response.
type Meta struct {
	Timestamp       string `json:"timestamp"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Cached          bool   `json:"cached"`
	Version         string `json:"version"`
	RequestID       string `json:"request_id"`
}

// Version is the API version string reported in every response's meta
// block; overridable at build time for release tagging.
var Version = "v1"

// writeEnvelope renders data (plus an optional pagination block) as a
// success envelope, stamping execution time and request id from ctx.
func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, data any, pagination *Pagination, started time.Time, cached bool) {
	env := Envelope{
		Status:     "success",
		Data:       data,
		Pagination: pagination,
		Meta: Meta{
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Cached:          cached,
			Version:         Version,
			RequestID:       RequestIDFromContext(r.Context()),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

type requestIDKey struct{}

// RequestID is a gorilla/mux middleware that assigns a fresh UUID to every
// request lacking an X-Request-ID header, attaches it to the request
// context, and echoes it back as a response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id attached by RequestID, or ""
// if none is present.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}
