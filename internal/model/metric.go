package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metric is a metric definition; observed values are stored separately as
// MetricDataPoint rows.
type Metric struct {
	ID                 uuid.UUID  `db:"id" validate:"required"`
	Name                string     `db:"name" validate:"required"`
	Description         *string    `db:"description"`
	Unit                 *string    `db:"unit"`
	MetricType          MetricType `db:"metric_type"`
	ServiceName         string     `db:"service_name" validate:"required"`
	Attributes          Attributes `db:"attributes"`
	ResourceAttributes  Attributes `db:"resource_attributes"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// NewMetric constructs a Metric with derived defaults.
func NewMetric(name, serviceName string, metricType MetricType) *Metric {
	now := time.Now().UTC()
	return &Metric{
		ID:                 uuid.New(),
		Name:               name,
		MetricType:         metricType,
		ServiceName:        serviceName,
		Attributes:         Attributes{},
		ResourceAttributes: Attributes{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (m *Metric) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("metric: %w", err)
	}
	if !m.MetricType.valid() {
		return fmt.Errorf("metric: invalid metric_type %q (field: metric_type)", m.MetricType)
	}
	return nil
}

// MetricDataPoint is one observed value of a Metric.
type MetricDataPoint struct {
	ID         uuid.UUID                    `db:"id" validate:"required"`
	MetricID   uuid.UUID                    `db:"metric_id" validate:"required"`
	Timestamp  time.Time                    `db:"timestamp" validate:"required"`
	Value      *float64                     `db:"value"`
	Count      *int64                       `db:"count"`
	Sum        *float64                     `db:"sum"`
	Min        *float64                     `db:"min"`
	Max        *float64                     `db:"max"`
	Buckets    JSONList[HistogramBucket]    `db:"buckets"`
	Quantiles  JSONList[Quantile]           `db:"quantiles"`
	Exemplars  JSONList[Exemplar]           `db:"exemplars"`
	Attributes Attributes                   `db:"attributes"`
	CreatedAt  time.Time                    `db:"created_at"`
}

// NewMetricDataPoint constructs a MetricDataPoint with derived defaults.
func NewMetricDataPoint(metricID uuid.UUID, timestamp time.Time) *MetricDataPoint {
	return &MetricDataPoint{
		ID:         uuid.New(),
		MetricID:   metricID,
		Timestamp:  timestamp,
		Attributes: Attributes{},
		CreatedAt:  time.Now().UTC(),
	}
}

// Validate checks every invariant in §3: floats finite, min <= max,
// quantiles in [0,1], bucket counts non-negative.
func (p *MetricDataPoint) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("metric_data_point: %w", err)
	}
	for _, f := range []*float64{p.Value, p.Sum, p.Min, p.Max} {
		if f != nil && !IsFinite(*f) {
			return fmt.Errorf("metric_data_point: non-finite float value (field: value)")
		}
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("metric_data_point: min must not exceed max (field: min)")
	}
	if p.Count != nil && *p.Count < 0 {
		return fmt.Errorf("metric_data_point: count must not be negative (field: count)")
	}
	for _, b := range p.Buckets {
		if !IsFinite(b.Boundary) {
			return fmt.Errorf("metric_data_point: bucket boundary must be finite (field: buckets)")
		}
		if b.Count < 0 {
			return fmt.Errorf("metric_data_point: bucket count must not be negative (field: buckets)")
		}
	}
	for _, q := range p.Quantiles {
		if q.Quantile < 0 || q.Quantile > 1 {
			return fmt.Errorf("metric_data_point: quantile must be in [0,1] (field: quantiles)")
		}
		if !IsFinite(q.Value) {
			return fmt.Errorf("metric_data_point: quantile value must be finite (field: quantiles)")
		}
	}
	return nil
}
