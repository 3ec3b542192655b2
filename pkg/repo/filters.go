package repo

import (
	"fmt"
	"reflect"
	"strings"
)

// Filter renders a single comparison or a composite boolean tree into a SQL
// fragment against a given column name, and carries the bind values needed
// to satisfy it. Every leaf in a tree renders against the same paramIdx: the
// caller passes the tree through sqlx's Rebind (or an equivalent driver
// rebind) once, after substituting the real column name and collecting
// Value() in order, rather than threading a running counter through the
// tree itself.
type Filter interface {
	String(column string, paramIdx int) string
	Value() []any
}

type simpleFilter struct {
	op    string
	value any
}

func (f simpleFilter) String(column string, paramIdx int) string {
	return fmt.Sprintf("%s %s $%d", column, f.op, paramIdx)
}

func (f simpleFilter) Value() []any { return []any{f.value} }

func Eq(v any) Filter      { return simpleFilter{op: "=", value: v} }
func NotEq(v any) Filter   { return simpleFilter{op: "!=", value: v} }
func Gt(v any) Filter      { return simpleFilter{op: ">", value: v} }
func Gte(v any) Filter     { return simpleFilter{op: ">=", value: v} }
func Lt(v any) Filter      { return simpleFilter{op: "<", value: v} }
func Lte(v any) Filter     { return simpleFilter{op: "<=", value: v} }
func Like(v any) Filter    { return simpleFilter{op: "LIKE", value: v} }
func NotLike(v any) Filter { return simpleFilter{op: "NOT LIKE", value: v} }

type listFilter struct {
	op     string
	values []any
}

func toAnySlice(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		panic(fmt.Sprintf("repo: %T is not a slice", v))
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// In renders "column IN ($n, $n+1, ...)". v must be a slice; it panics
// otherwise.
func In(v any) Filter { return listFilter{op: "IN", values: toAnySlice(v)} }

// NotIn renders "column NOT IN ($n, $n+1, ...)". v must be a slice; it
// panics otherwise.
func NotIn(v any) Filter { return listFilter{op: "NOT IN", values: toAnySlice(v)} }

func (f listFilter) String(column string, paramIdx int) string {
	placeholders := make([]string, len(f.values))
	for i := range f.values {
		placeholders[i] = fmt.Sprintf("$%d", paramIdx+i)
	}
	return fmt.Sprintf("%s %s (%s)", column, f.op, strings.Join(placeholders, ", "))
}

func (f listFilter) Value() []any { return f.values }

type boolFilter struct {
	op      string
	filters []Filter
}

// Or composes filters into a parenthesized disjunction.
func Or(filters ...Filter) Filter { return boolFilter{op: "OR", filters: filters} }

// And composes filters into a parenthesized conjunction.
func And(filters ...Filter) Filter { return boolFilter{op: "AND", filters: filters} }

func (f boolFilter) String(column string, paramIdx int) string {
	parts := make([]string, len(f.filters))
	for i, sub := range f.filters {
		parts[i] = sub.String(column, paramIdx)
	}
	return "(" + strings.Join(parts, " "+f.op+" ") + ")"
}

func (f boolFilter) Value() []any {
	var out []any
	for _, sub := range f.filters {
		out = append(out, sub.Value()...)
	}
	return out
}

// FieldFilter pins a Filter to a typed column name, the unit a repository's
// list-query builder iterates over to render a WHERE clause per field.
type FieldFilter[F ~string] struct {
	Column F
	Filter Filter
}

// SortByField is one column/direction pair in an ORDER BY clause.
type SortByField[F ~string] struct {
	Field     F
	Ascending bool
	NullsLast bool
}

// SortBy renders a list of typed sort fields into an ORDER BY clause,
// resolving each field through a whitelist mapping and silently dropping
// any field absent from it — the same SQL-injection guard the filter engine
// applies to WHERE clauses, applied to ORDER BY.
type SortBy[F ~string] struct {
	Fields []SortByField[F]
}

func (s SortBy[F]) ToSQL(mapping map[F]string) string {
	var parts []string
	for _, f := range s.Fields {
		col, ok := mapping[f.Field]
		if !ok {
			continue
		}
		dir := "ASC"
		if !f.Ascending {
			dir = "DESC"
		}
		clause := col + " " + dir
		if f.NullsLast {
			clause += " NULLS LAST"
		}
		parts = append(parts, clause)
	}
	if len(parts) == 0 {
		return ""
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}
