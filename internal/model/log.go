package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogRecord is one log line, optionally correlated to a trace/span by
// external id.
type LogRecord struct {
	ID                 uuid.UUID  `db:"id" validate:"required"`
	Timestamp           time.Time  `db:"timestamp" validate:"required"`
	ObservedTimestamp   time.Time  `db:"observed_timestamp" validate:"required"`
	SeverityNumber      int32      `db:"severity_number" validate:"gte=1,lte=24"`
	SeverityText        string     `db:"severity_text"`
	Body                string     `db:"body"`
	ServiceName         string     `db:"service_name" validate:"required"`
	TraceID             *string    `db:"trace_id"`
	SpanID              *string    `db:"span_id"`
	TraceFlags          *int32     `db:"trace_flags"`
	Attributes          Attributes `db:"attributes"`
	ResourceAttributes  Attributes `db:"resource_attributes"`
	ScopeName           *string    `db:"scope_name"`
	ScopeVersion        *string    `db:"scope_version"`
	ScopeAttributes     Attributes `db:"scope_attributes"`
	CreatedAt           time.Time  `db:"created_at"`
}

// SeverityBand groups a severity number into its syslog-derived band.
type SeverityBand string

const (
	SeverityTrace SeverityBand = "TRACE"
	SeverityDebug SeverityBand = "DEBUG"
	SeverityInfo  SeverityBand = "INFO"
	SeverityWarn  SeverityBand = "WARN"
	SeverityError SeverityBand = "ERROR"
	SeverityFatal SeverityBand = "FATAL"
)

// Band maps the 1-24 severity number onto its TRACE/DEBUG/INFO/WARN/ERROR/FATAL
// band, four numbers per band.
func (l *LogRecord) Band() SeverityBand {
	switch {
	case l.SeverityNumber <= 4:
		return SeverityTrace
	case l.SeverityNumber <= 8:
		return SeverityDebug
	case l.SeverityNumber <= 12:
		return SeverityInfo
	case l.SeverityNumber <= 16:
		return SeverityWarn
	case l.SeverityNumber <= 20:
		return SeverityError
	default:
		return SeverityFatal
	}
}

// NewLogRecord constructs a LogRecord with derived defaults.
func NewLogRecord(serviceName, body string, severityNumber int32, timestamp time.Time) *LogRecord {
	return &LogRecord{
		ID:                 uuid.New(),
		Timestamp:          timestamp,
		ObservedTimestamp:  time.Now().UTC(),
		SeverityNumber:     severityNumber,
		Body:               body,
		ServiceName:        serviceName,
		Attributes:         Attributes{},
		ResourceAttributes: Attributes{},
		ScopeAttributes:    Attributes{},
		CreatedAt:          time.Now().UTC(),
	}
}

func (l *LogRecord) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("log_record: %w", err)
	}
	if l.TraceID != nil && (len(*l.TraceID) != 32 || !isHex(*l.TraceID)) {
		return fmt.Errorf("log_record: trace_id must be 32 hex characters (field: trace_id)")
	}
	if l.SpanID != nil && (len(*l.SpanID) != 16 || !isHex(*l.SpanID)) {
		return fmt.Errorf("log_record: span_id must be 16 hex characters (field: span_id)")
	}
	return nil
}
