package model_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/llm-observatory-storage/internal/model"
)

func validTrace() *model.Trace {
	start := time.Now().UTC()
	tr := model.NewTrace("a1111111111111111111111111111111"[:32], "svc-x", start)
	return tr
}

func TestTrace_Validate(t *testing.T) {
	t.Run("ValidTracePasses", func(t *testing.T) {
		assert.NoError(t, validTrace().Validate())
	})

	t.Run("EndBeforeStartFails", func(t *testing.T) {
		tr := validTrace()
		before := tr.StartTime.Add(-time.Second)
		tr.EndTime = &before
		err := tr.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "end_time")
	})

	t.Run("NegativeSpanCountFails", func(t *testing.T) {
		tr := validTrace()
		tr.SpanCount = -1
		err := tr.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "span_count")
	})

	t.Run("InvalidTraceIDLengthFails", func(t *testing.T) {
		tr := validTrace()
		tr.TraceID = "tooshort"
		assert.Error(t, tr.Validate())
	})

	t.Run("UpdateDurationComputesMicroseconds", func(t *testing.T) {
		tr := validTrace()
		end := tr.StartTime.Add(2500 * time.Microsecond)
		tr.EndTime = &end
		tr.UpdateDuration()
		require.NotNil(t, tr.DurationUs)
		assert.Equal(t, int64(2500), *tr.DurationUs)
		assert.NoError(t, tr.Validate())
	})
}

func validSpan(traceID uuid.UUID) *model.Span {
	s := model.NewSpan("b222222222222222"[:16], "call-llm", "svc-x", time.Now().UTC())
	s.TraceID = traceID
	s.Kind = model.SpanKindClient
	return s
}

func TestSpan_Validate(t *testing.T) {
	traceID := uuid.New()

	t.Run("ValidSpanPasses", func(t *testing.T) {
		assert.NoError(t, validSpan(traceID).Validate())
	})

	t.Run("InvalidKindFails", func(t *testing.T) {
		s := validSpan(traceID)
		s.Kind = "bogus"
		err := s.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kind")
	})

	t.Run("InvalidParentSpanIDFails", func(t *testing.T) {
		s := validSpan(traceID)
		bad := "xyz"
		s.ParentSpanID = &bad
		assert.Error(t, s.Validate())
	})
}

func TestMetricDataPoint_Validate(t *testing.T) {
	metricID := uuid.New()

	t.Run("MinExceedsMaxFails", func(t *testing.T) {
		p := model.NewMetricDataPoint(metricID, time.Now())
		minV, maxV := 10.0, 5.0
		p.Min, p.Max = &minV, &maxV
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min")
	})

	t.Run("QuantileOutOfRangeFails", func(t *testing.T) {
		p := model.NewMetricDataPoint(metricID, time.Now())
		p.Quantiles = model.JSONList[model.Quantile]{{Quantile: 1.5, Value: 1.0}}
		assert.Error(t, p.Validate())
	})

	t.Run("NonFiniteValueFails", func(t *testing.T) {
		p := model.NewMetricDataPoint(metricID, time.Now())
		nan := 0.0
		nan = nan / nan // force NaN without a compile-time constant-folding error
		p.Value = &nan
		assert.Error(t, p.Validate())
	})

	t.Run("ValidPointPasses", func(t *testing.T) {
		p := model.NewMetricDataPoint(metricID, time.Now())
		v := 42.0
		p.Value = &v
		assert.NoError(t, p.Validate())
	})
}

func TestLogRecord_SeverityBand(t *testing.T) {
	cases := []struct {
		severity int32
		want     model.SeverityBand
	}{
		{1, model.SeverityTrace},
		{5, model.SeverityDebug},
		{9, model.SeverityInfo},
		{13, model.SeverityWarn},
		{17, model.SeverityError},
		{24, model.SeverityFatal},
	}
	for _, tc := range cases {
		l := model.NewLogRecord("svc-x", "boom", tc.severity, time.Now())
		assert.Equal(t, tc.want, l.Band())
	}
}

func TestLogRecord_Validate(t *testing.T) {
	t.Run("ValidLogPasses", func(t *testing.T) {
		l := model.NewLogRecord("svc-x", "hello", 9, time.Now())
		assert.NoError(t, l.Validate())
	})

	t.Run("BadExternalTraceIDFails", func(t *testing.T) {
		l := model.NewLogRecord("svc-x", "hello", 9, time.Now())
		bad := "not-hex"
		l.TraceID = &bad
		assert.Error(t, l.Validate())
	})
}
