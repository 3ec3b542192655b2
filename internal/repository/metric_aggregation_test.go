package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregation_Valid(t *testing.T) {
	tests := []struct {
		agg  Aggregation
		want bool
	}{
		{AggAvg, true},
		{AggSum, true},
		{AggMin, true},
		{AggMax, true},
		{AggCount, true},
		{Aggregation("median"), false},
		{Aggregation(""), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.agg.valid(), "aggregation %q", tt.agg)
	}
}

func TestAggregation_SQLExpr(t *testing.T) {
	tests := []struct {
		agg  Aggregation
		want string
	}{
		{AggAvg, "avg(value)"},
		{AggSum, "sum(value)"},
		{AggMin, "min(value)"},
		{AggMax, "max(value)"},
		{AggCount, "count(*)"},
		{Aggregation("unknown"), "avg(value)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.agg.sqlExpr(), "aggregation %q", tt.agg)
	}
}
