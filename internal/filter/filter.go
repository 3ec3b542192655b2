// Package filter implements the typed filter expression engine (C8): a
// field-addressed tree of comparisons and logical connectives, validated
// against a per-table field whitelist and rendered into a parameterized SQL
// WHERE fragment. It generalizes pkg/repo's column-addressed Filter helpers
// so a single tree can touch many columns, and adds the whitelist pass that
// is the primary defense against filter-driven SQL injection.
package filter

import (
	"fmt"
	"strings"
)

// Operator is one comparison or full-text operator a FieldFilter leaf may
// carry.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNe          Operator = "ne"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpRegex       Operator = "regex"
	OpSearch      Operator = "search"
)

// LogicalOp is one of the boolean connectives composing a tree of nodes.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
	LogicalNot LogicalOp = "not"
)

// FieldKind constrains which operators and value types a whitelisted field
// accepts.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumeric
	KindDateTime
	KindBool
)

// FieldSpec describes one whitelisted, filterable column.
type FieldSpec struct {
	Column string
	Kind   FieldKind
	// TSVColumn names the precomputed tsvector index column a "search"
	// operator against this field should target.
	TSVColumn string
}

// Whitelist maps the filter tree's external field names to their FieldSpec
// for one table.
type Whitelist map[string]FieldSpec

// Node is one element of a filter tree: either a FieldFilter leaf or a
// Logical connective over child nodes.
type Node interface {
	validate(wl Whitelist) error
	render(wl Whitelist, paramIdx *int) (string, []any, error)
}

// FieldFilter is a leaf node: one field, one operator, one value.
type FieldFilter struct {
	Field string
	Op    Operator
	Value any
}

// Logical is an internal node: and/or (>=1 child) or not (exactly 1 child).
type Logical struct {
	Op       LogicalOp
	Children []Node
}

func (f FieldFilter) validate(wl Whitelist) error {
	spec, ok := wl[f.Field]
	if !ok {
		return fmt.Errorf("filter: field %q is not filterable", f.Field)
	}
	switch f.Op {
	case OpIn, OpNotIn:
		if _, ok := f.Value.([]any); !ok {
			if !isSlice(f.Value) {
				return fmt.Errorf("filter: operator %q requires an array value (field: %s)", f.Op, f.Field)
			}
		}
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpRegex, OpSearch:
		if _, ok := f.Value.(string); !ok {
			return fmt.Errorf("filter: operator %q requires a string value (field: %s)", f.Op, f.Field)
		}
		if f.Op == OpSearch && spec.TSVColumn == "" {
			return fmt.Errorf("filter: field %q does not support search (field: %s)", f.Field, f.Field)
		}
	case OpGt, OpGte, OpLt, OpLte:
		if spec.Kind != KindNumeric && spec.Kind != KindDateTime {
			return fmt.Errorf("filter: ordered operator %q requires a numeric or datetime field (field: %s)", f.Op, f.Field)
		}
	}
	return nil
}

func isSlice(v any) bool {
	switch v.(type) {
	case []string, []int, []float64, []any:
		return true
	default:
		return false
	}
}

func toAnySlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	default:
		return nil
	}
}

func (f FieldFilter) render(wl Whitelist, paramIdx *int) (string, []any, error) {
	spec := wl[f.Field]
	switch f.Op {
	case OpEq:
		return f.placeholder(spec.Column, "=", paramIdx), []any{f.Value}, nil
	case OpNe:
		return f.placeholder(spec.Column, "!=", paramIdx), []any{f.Value}, nil
	case OpGt:
		return f.placeholder(spec.Column, ">", paramIdx), []any{f.Value}, nil
	case OpGte:
		return f.placeholder(spec.Column, ">=", paramIdx), []any{f.Value}, nil
	case OpLt:
		return f.placeholder(spec.Column, "<", paramIdx), []any{f.Value}, nil
	case OpLte:
		return f.placeholder(spec.Column, "<=", paramIdx), []any{f.Value}, nil
	case OpIn, OpNotIn:
		values := toAnySlice(f.Value)
		placeholders := make([]string, len(values))
		for i := range values {
			placeholders[i] = fmt.Sprintf("$%d", *paramIdx)
			*paramIdx++
		}
		verb := "IN"
		if f.Op == OpNotIn {
			verb = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", spec.Column, verb, strings.Join(placeholders, ",")), values, nil
	case OpContains:
		sql := f.placeholder(spec.Column, "ILIKE", paramIdx)
		return sql, []any{"%" + f.Value.(string) + "%"}, nil
	case OpNotContains:
		sql := fmt.Sprintf("%s NOT ILIKE $%d", spec.Column, *paramIdx)
		*paramIdx++
		return sql, []any{"%" + f.Value.(string) + "%"}, nil
	case OpStartsWith:
		sql := f.placeholder(spec.Column, "ILIKE", paramIdx)
		return sql, []any{f.Value.(string) + "%"}, nil
	case OpEndsWith:
		sql := f.placeholder(spec.Column, "ILIKE", paramIdx)
		return sql, []any{"%" + f.Value.(string)}, nil
	case OpRegex:
		sql := f.placeholder(spec.Column, "~*", paramIdx)
		return sql, []any{f.Value}, nil
	case OpSearch:
		sql := fmt.Sprintf("%s @@ plainto_tsquery('english', $%d)", spec.TSVColumn, *paramIdx)
		*paramIdx++
		return sql, []any{f.Value}, nil
	default:
		return "", nil, fmt.Errorf("filter: unknown operator %q", f.Op)
	}
}

func (f FieldFilter) placeholder(column, op string, paramIdx *int) string {
	sql := fmt.Sprintf("%s %s $%d", column, op, *paramIdx)
	*paramIdx++
	return sql
}

func (l Logical) validate(wl Whitelist) error {
	if l.Op == LogicalNot && len(l.Children) != 1 {
		return fmt.Errorf("filter: %q accepts exactly one child", LogicalNot)
	}
	if (l.Op == LogicalAnd || l.Op == LogicalOr) && len(l.Children) < 1 {
		return fmt.Errorf("filter: %q requires at least one child", l.Op)
	}
	for _, child := range l.Children {
		if err := child.validate(wl); err != nil {
			return err
		}
	}
	return nil
}

func (l Logical) render(wl Whitelist, paramIdx *int) (string, []any, error) {
	if l.Op == LogicalNot {
		sql, values, err := l.Children[0].render(wl, paramIdx)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", values, nil
	}

	verb := " AND "
	if l.Op == LogicalOr {
		verb = " OR "
	}

	parts := make([]string, len(l.Children))
	var values []any
	for i, child := range l.Children {
		sql, vals, err := child.render(wl, paramIdx)
		if err != nil {
			return "", nil, err
		}
		parts[i] = sql
		values = append(values, vals...)
	}
	return "(" + strings.Join(parts, verb) + ")", values, nil
}

// Render validates tree against wl and renders it into a WHERE fragment
// (without the leading "WHERE ") plus its ordered bind values, starting
// placeholders at $1.
func Render(tree Node, wl Whitelist) (string, []any, error) {
	if tree == nil {
		return "", nil, nil
	}
	if err := tree.validate(wl); err != nil {
		return "", nil, err
	}
	idx := 1
	return tree.render(wl, &idx)
}
