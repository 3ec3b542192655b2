package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attributes is a free-form JSON attribute map, stored as JSONB.
// It implements driver.Valuer/sql.Scanner so it can be bound directly by
// sqlx and read directly by scan-based repositories.
type Attributes map[string]any

// Value implements driver.Valuer.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(a))
}

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src any) error {
	if src == nil {
		*a = Attributes{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into Attributes", src)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		*a = Attributes{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("model: unmarshalling attributes: %w", err)
	}
	*a = m
	return nil
}

// JSONList is a generic JSON-encoded list column (events, links, buckets,
// quantiles, exemplars) shared by several entities.
type JSONList[T any] []T

func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal([]T(l))
}

func (l *JSONList[T]) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into JSONList", src)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		*l = nil
		return nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// HistogramBucket is one bucket of a histogram-typed MetricDataPoint.
type HistogramBucket struct {
	Boundary float64 `json:"boundary"`
	Count    int64   `json:"count"`
}

// Quantile is one quantile of a summary-typed MetricDataPoint.
type Quantile struct {
	Quantile float64 `json:"quantile"`
	Value    float64 `json:"value"`
}

// Exemplar links a metric data point back to the trace/span that produced
// the sampled observation.
type Exemplar struct {
	TraceID   string     `json:"trace_id"`
	SpanID    string     `json:"span_id"`
	Value     float64    `json:"value"`
	Timestamp string     `json:"timestamp"`
	Attrs     Attributes `json:"attrs,omitempty"`
}

// SpanEvent is an event embedded inline in a span's JSONB events column
// (as distinct from the normalized trace_events table row, model.Event).
type SpanEvent struct {
	Name       string     `json:"name"`
	Timestamp  string     `json:"timestamp"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// SpanLink references another span, possibly in a different trace.
type SpanLink struct {
	TraceID    string     `json:"trace_id"`
	SpanID     string     `json:"span_id"`
	Attributes Attributes `json:"attributes,omitempty"`
}
