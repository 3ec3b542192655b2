package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/llm-observatory-storage/internal/filter"
)

func TestParseJSON_Leaf(t *testing.T) {
	node, err := filter.ParseJSON([]byte(`{"op":"eq","field":"status","value":"error"}`))
	require.NoError(t, err)
	ff, ok := node.(filter.FieldFilter)
	require.True(t, ok)
	assert.Equal(t, "status", ff.Field)
	assert.Equal(t, filter.OpEq, ff.Op)
	assert.Equal(t, "error", ff.Value)
}

func TestParseJSON_LeafWithArrayValue(t *testing.T) {
	node, err := filter.ParseJSON([]byte(`{"op":"in","field":"status","value":["error","ok"]}`))
	require.NoError(t, err)
	ff := node.(filter.FieldFilter)
	values, ok := ff.Value.([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"error", "ok"}, values)
}

func TestParseJSON_LeafMissingField(t *testing.T) {
	_, err := filter.ParseJSON([]byte(`{"op":"eq","value":"x"}`))
	require.Error(t, err)
}

func TestParseJSON_And(t *testing.T) {
	node, err := filter.ParseJSON([]byte(`{
		"op": "and",
		"children": [
			{"op": "eq", "field": "status", "value": "error"},
			{"op": "gt", "field": "duration_ms", "value": 100}
		]
	}`))
	require.NoError(t, err)
	logical, ok := node.(filter.Logical)
	require.True(t, ok)
	assert.Equal(t, filter.LogicalAnd, logical.Op)
	assert.Len(t, logical.Children, 2)
}

func TestParseJSON_NotRequiresExactlyOneChild(t *testing.T) {
	_, err := filter.ParseJSON([]byte(`{
		"op": "not",
		"children": [
			{"op": "eq", "field": "status", "value": "error"},
			{"op": "eq", "field": "status", "value": "ok"}
		]
	}`))
	require.Error(t, err)
}

func TestParseJSON_LogicalRequiresChildren(t *testing.T) {
	_, err := filter.ParseJSON([]byte(`{"op":"and","children":[]}`))
	require.Error(t, err)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := filter.ParseJSON([]byte(`not json`))
	require.Error(t, err)
}

func TestParseJSON_NestedTree(t *testing.T) {
	node, err := filter.ParseJSON([]byte(`{
		"op": "or",
		"children": [
			{"op": "eq", "field": "status", "value": "error"},
			{
				"op": "not",
				"children": [
					{"op": "eq", "field": "status", "value": "ok"}
				]
			}
		]
	}`))
	require.NoError(t, err)
	logical := node.(filter.Logical)
	assert.Equal(t, filter.LogicalOr, logical.Op)
	require.Len(t, logical.Children, 2)
	inner, ok := logical.Children[1].(filter.Logical)
	require.True(t, ok)
	assert.Equal(t, filter.LogicalNot, inner.Op)
}
