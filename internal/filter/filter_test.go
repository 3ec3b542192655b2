package filter_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/llm-observatory-storage/internal/filter"
)

func TestRender_UnknownFieldRejected(t *testing.T) {
	tree := filter.FieldFilter{Field: "drop_table", Op: filter.OpEq, Value: "x"}
	_, _, err := filter.Render(tree, filter.TraceFields)
	require.Error(t, err)
}

func TestRender_SimpleEq(t *testing.T) {
	tree := filter.FieldFilter{Field: "service_name", Op: filter.OpEq, Value: "checkout"}
	sql, values, err := filter.Render(tree, filter.TraceFields)
	require.NoError(t, err)
	assert.Equal(t, "service_name = $1", sql)
	assert.Equal(t, []any{"checkout"}, values)
}

func TestRender_InRequiresSlice(t *testing.T) {
	tree := filter.FieldFilter{Field: "status", Op: filter.OpIn, Value: "not-a-slice"}
	_, _, err := filter.Render(tree, filter.TraceFields)
	require.Error(t, err)
}

func TestRender_In(t *testing.T) {
	tree := filter.FieldFilter{Field: "status", Op: filter.OpIn, Value: []string{"ok", "error"}}
	sql, values, err := filter.Render(tree, filter.TraceFields)
	require.NoError(t, err)
	assert.Equal(t, "status IN ($1,$2)", sql)
	assert.Equal(t, []any{"ok", "error"}, values)
}

func TestRender_OrderedOperatorRequiresNumericOrDateTime(t *testing.T) {
	tree := filter.FieldFilter{Field: "service_name", Op: filter.OpGt, Value: "x"}
	_, _, err := filter.Render(tree, filter.TraceFields)
	require.Error(t, err)
}

func TestRender_SearchRequiresTSVColumn(t *testing.T) {
	tree := filter.FieldFilter{Field: "status", Op: filter.OpSearch, Value: "timeout"}
	_, _, err := filter.Render(tree, filter.TraceFields)
	require.Error(t, err)
}

func TestRender_SearchUsesTSVColumn(t *testing.T) {
	tree := filter.FieldFilter{Field: "body", Op: filter.OpSearch, Value: "rate limit"}
	sql, values, err := filter.Render(tree, filter.LogFields)
	require.NoError(t, err)
	assert.Equal(t, "body_tsv @@ plainto_tsquery('english', $1)", sql)
	assert.Equal(t, []any{"rate limit"}, values)
}

func TestRender_LogicalAndOr(t *testing.T) {
	tree := filter.Logical{
		Op: filter.LogicalAnd,
		Children: []filter.Node{
			filter.FieldFilter{Field: "service_name", Op: filter.OpEq, Value: "checkout"},
			filter.Logical{
				Op: filter.LogicalOr,
				Children: []filter.Node{
					filter.FieldFilter{Field: "status", Op: filter.OpEq, Value: "error"},
					filter.FieldFilter{Field: "duration_us", Op: filter.OpGt, Value: 1000},
				},
			},
		},
	}
	sql, values, err := filter.Render(tree, filter.TraceFields)
	require.NoError(t, err)
	assert.Equal(t, "(service_name = $1 AND (status = $2 OR duration_us > $3))", sql)
	assert.Equal(t, []any{"checkout", "error", 1000}, values)
}

func TestRender_NotRequiresExactlyOneChild(t *testing.T) {
	tree := filter.Logical{
		Op: filter.LogicalNot,
		Children: []filter.Node{
			filter.FieldFilter{Field: "status", Op: filter.OpEq, Value: "ok"},
			filter.FieldFilter{Field: "status", Op: filter.OpEq, Value: "error"},
		},
	}
	_, _, err := filter.Render(tree, filter.TraceFields)
	require.Error(t, err)
}

func TestRender_Not(t *testing.T) {
	tree := filter.Logical{
		Op:       filter.LogicalNot,
		Children: []filter.Node{filter.FieldFilter{Field: "status", Op: filter.OpEq, Value: "ok"}},
	}
	sql, values, err := filter.Render(tree, filter.TraceFields)
	require.NoError(t, err)
	assert.Equal(t, "NOT (status = $1)", sql)
	assert.Equal(t, []any{"ok"}, values)
}

// Injection-safety property: the rendered SQL never contains the literal
// value text, and the number of "$n" placeholders equals len(values).
func TestRender_InjectionSafety(t *testing.T) {
	malicious := "'; DROP TABLE traces; --"
	tree := filter.FieldFilter{Field: "service_name", Op: filter.OpEq, Value: malicious}
	sql, values, err := filter.Render(tree, filter.TraceFields)
	require.NoError(t, err)
	assert.NotContains(t, sql, malicious)
	assert.Equal(t, len(values), strings.Count(sql, "$"))
}

func TestRender_ComplexTree_PlaceholderCountMatchesValues(t *testing.T) {
	tree := filter.Logical{
		Op: filter.LogicalAnd,
		Children: []filter.Node{
			filter.FieldFilter{Field: "status", Op: filter.OpIn, Value: []string{"ok", "error", "unset"}},
			filter.FieldFilter{Field: "service_name", Op: filter.OpContains, Value: "check"},
			filter.FieldFilter{Field: "duration_us", Op: filter.OpLte, Value: 5000},
		},
	}
	sql, values, err := filter.Render(tree, filter.TraceFields)
	require.NoError(t, err)
	placeholders := 0
	for i := 1; i <= len(values); i++ {
		if strings.Contains(sql, fmt.Sprintf("$%d", i)) {
			placeholders++
		}
	}
	assert.Equal(t, len(values), placeholders)
}
