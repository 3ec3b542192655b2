// Package repo provides small SQL-building helpers shared by every
// repository: parameterized INSERT/UPDATE statement construction, batch
// multi-row VALUES expansion, a composable Filter tree, and a CacheKey
// hash helper for query-result caching.
package repo

import (
	"fmt"
	"strings"
)

// Insert renders "INSERT INTO <table> (<fields>) VALUES ($1, $2, ...)",
// appending a RETURNING clause when returning is non-empty.
func Insert(tableName string, fields []string, returning ...string) string {
	placeholders := make([]string, len(fields))
	for i := range fields {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(fields, ", "), strings.Join(placeholders, ", "),
	)
	if len(returning) > 0 {
		q += " RETURNING " + strings.Join(returning, ", ")
	}
	return q
}

// Update renders "UPDATE <table> SET f1 = $1, f2 = $2 ... [WHERE c1 AND c2]".
// The where clauses are caller-supplied, already-placeholdered fragments
// joined with AND.
func Update(tableName string, fields []string, where ...string) string {
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	q := fmt.Sprintf("UPDATE %s SET %s", tableName, strings.Join(sets, ", "))
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q
}

// BatchInsertQueryN appends a flat "($1,$2),($3,$4),..." VALUES expansion to
// baseQuery and flattens rows into a single positional argument slice, for
// the batch-insert fallback path used when a bulk-copy stream can't be
// opened (a transaction already holds the connection, or a single small
// batch doesn't justify a dedicated raw connection).
func BatchInsertQueryN(baseQuery string, rows [][]interface{}) (string, []interface{}) {
	if len(rows) == 0 {
		return baseQuery, nil
	}

	var args []interface{}
	groups := make([]string, len(rows))
	argN := 1
	for i, row := range rows {
		placeholders := make([]string, len(row))
		for j := range row {
			placeholders[j] = fmt.Sprintf("$%d", argN)
			argN++
		}
		groups[i] = "(" + strings.Join(placeholders, ",") + ")"
		args = append(args, row...)
	}

	return baseQuery + " " + strings.Join(groups, ","), args
}
