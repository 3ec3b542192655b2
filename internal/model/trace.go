package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trace is one request flow, identified externally by a 32-character hex
// trace id and internally by an opaque UUID.
type Trace struct {
	ID                 uuid.UUID  `db:"id" validate:"required"`
	TraceID             string     `db:"trace_id" validate:"required,hexid=32"`
	ServiceName         string     `db:"service_name" validate:"required"`
	StartTime           time.Time  `db:"start_time" validate:"required"`
	EndTime             *time.Time `db:"end_time"`
	DurationUs          *int64     `db:"duration_us"`
	Status              Status     `db:"status"`
	StatusMessage       *string    `db:"status_message"`
	RootSpanName        *string    `db:"root_span_name"`
	Attributes          Attributes `db:"attributes"`
	ResourceAttributes  Attributes `db:"resource_attributes"`
	SpanCount           int32      `db:"span_count"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// NewTrace constructs a Trace with derived defaults: a fresh internal id,
// unset status, empty attribute maps, and created/updated timestamps set to
// now.
func NewTrace(traceID, serviceName string, startTime time.Time) *Trace {
	now := time.Now().UTC()
	return &Trace{
		ID:                 uuid.New(),
		TraceID:            traceID,
		ServiceName:        serviceName,
		StartTime:          startTime,
		Status:             StatusUnset,
		Attributes:         Attributes{},
		ResourceAttributes: Attributes{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// UpdateDuration recomputes DurationUs from StartTime/EndTime when EndTime
// is present.
func (t *Trace) UpdateDuration() {
	if t.EndTime == nil {
		return
	}
	d := t.EndTime.Sub(t.StartTime).Microseconds()
	t.DurationUs = &d
}

// Validate checks every invariant in §3: end >= start, duration consistent
// with start/end, span_count non-negative, external id well-formed, status
// a recognized enum value.
func (t *Trace) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	if !t.Status.valid() {
		return fmt.Errorf("trace: invalid status %q (field: status)", t.Status)
	}
	if t.EndTime != nil && t.EndTime.Before(t.StartTime) {
		return fmt.Errorf("trace: end_time before start_time (field: end_time)")
	}
	if t.EndTime != nil && t.DurationUs != nil {
		want := t.EndTime.Sub(t.StartTime).Microseconds()
		if *t.DurationUs != want {
			return fmt.Errorf("trace: duration_us inconsistent with start/end (field: duration_us)")
		}
	}
	if t.SpanCount < 0 {
		return fmt.Errorf("trace: span_count must not be negative (field: span_count)")
	}
	return nil
}
