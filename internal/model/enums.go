package model

import "strings"

// Status is the shared outcome enumeration for traces and spans.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	StatusUnset Status = "unset"
)

// ParseStatus parses s case-insensitively, defaulting to StatusUnset for an
// empty or unrecognized value.
func ParseStatus(s string) Status {
	switch strings.ToLower(s) {
	case "ok":
		return StatusOK
	case "error":
		return StatusError
	default:
		return StatusUnset
	}
}

func (s Status) valid() bool {
	switch s {
	case StatusOK, StatusError, StatusUnset:
		return true
	}
	return false
}

// SpanKind enumerates the OpenTelemetry-derived span kinds.
type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindServer   SpanKind = "server"
	SpanKindClient   SpanKind = "client"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

func ParseSpanKind(s string) SpanKind {
	return SpanKind(strings.ToLower(s))
}

func (k SpanKind) valid() bool {
	switch k {
	case SpanKindInternal, SpanKindServer, SpanKindClient, SpanKindProducer, SpanKindConsumer:
		return true
	}
	return false
}

// MetricType enumerates the supported metric definition kinds.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
	MetricTypeSummary   MetricType = "summary"
)

func ParseMetricType(s string) MetricType {
	return MetricType(strings.ToLower(s))
}

func (t MetricType) valid() bool {
	switch t {
	case MetricTypeCounter, MetricTypeGauge, MetricTypeHistogram, MetricTypeSummary:
		return true
	}
	return false
}
