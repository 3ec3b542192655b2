package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Span is one unit of work inside a Trace.
type Span struct {
	ID            uuid.UUID          `db:"id" validate:"required"`
	TraceID       uuid.UUID          `db:"trace_id" validate:"required"`
	SpanID        string             `db:"span_id" validate:"required,hexid=16"`
	ParentSpanID  *string            `db:"parent_span_id"`
	Name          string             `db:"name" validate:"required"`
	Kind          SpanKind           `db:"kind"`
	ServiceName   string             `db:"service_name" validate:"required"`
	StartTime     time.Time          `db:"start_time" validate:"required"`
	EndTime       *time.Time         `db:"end_time"`
	DurationUs    *int64             `db:"duration_us"`
	Status        Status             `db:"status"`
	StatusMessage *string            `db:"status_message"`
	Attributes    Attributes         `db:"attributes"`
	Events        JSONList[SpanEvent] `db:"events"`
	Links         JSONList[SpanLink]  `db:"links"`
	CreatedAt     time.Time          `db:"created_at"`
}

// NewSpan constructs a Span with derived defaults. TraceID is left as the
// zero UUID when the caller does not yet know the internal trace id (see
// the span-to-trace resolution operation in the writer layer).
func NewSpan(spanID, name, serviceName string, startTime time.Time) *Span {
	return &Span{
		ID:          uuid.New(),
		SpanID:      spanID,
		Name:        name,
		Kind:        SpanKindInternal,
		ServiceName: serviceName,
		StartTime:   startTime,
		Status:      StatusUnset,
		Attributes:  Attributes{},
		CreatedAt:   time.Now().UTC(),
	}
}

// UpdateDuration recomputes DurationUs from StartTime/EndTime when EndTime
// is present.
func (s *Span) UpdateDuration() {
	if s.EndTime == nil {
		return
	}
	d := s.EndTime.Sub(s.StartTime).Microseconds()
	s.DurationUs = &d
}

// Validate checks every invariant in §3.
func (s *Span) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("span: %w", err)
	}
	if s.ParentSpanID != nil {
		if len(*s.ParentSpanID) != 16 || !isHex(*s.ParentSpanID) {
			return fmt.Errorf("span: parent_span_id must be 16 hex characters (field: parent_span_id)")
		}
	}
	if !s.Kind.valid() {
		return fmt.Errorf("span: invalid kind %q (field: kind)", s.Kind)
	}
	if !s.Status.valid() {
		return fmt.Errorf("span: invalid status %q (field: status)", s.Status)
	}
	if s.EndTime != nil && s.EndTime.Before(s.StartTime) {
		return fmt.Errorf("span: end_time before start_time (field: end_time)")
	}
	return nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
