// Package repository implements the typed query layer over traces, spans,
// logs, and metrics: point lookups, filtered lists with stable cursor
// pagination, time-bucketed aggregation, percentile summaries, full-text
// search, and retention deletes.
package repository

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
)

// Cursor is the opaque pagination token carrying the last row's sort key.
// Trace lists compare (timestamp, trace_id); log lists compare timestamp
// only. SpanID is carried but no list query compares it.
type Cursor struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id"`
	SpanID    string    `json:"span_id"`
}

// Encode renders c as the base64-of-JSON token returned to clients.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(b)
}

// DecodeCursor parses a cursor token produced by Cursor.Encode.
func DecodeCursor(token string) (Cursor, error) {
	var c Cursor
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return c, apperror.Wrap(apperror.CodeValidation, "malformed cursor", err).WithField("cursor")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, apperror.Wrap(apperror.CodeValidation, "malformed cursor", err).WithField("cursor")
	}
	return c, nil
}

// ClampLimit enforces the [1, 1000] bound every list endpoint applies,
// substituting defaultLimit when requested is zero.
func ClampLimit(requested, defaultLimit int) int {
	if requested <= 0 {
		return defaultLimit
	}
	if requested > 1000 {
		return 1000
	}
	return requested
}

// Page is one page of list results: up to Limit items, plus whether another
// page follows and the cursor to request it.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// splitHasMore trims a limit+1-row result set down to limit rows and
// reports whether the extra row indicates more pages follow.
func splitHasMore[T any](rows []T, limit int) ([]T, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}

