package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// Excluded references the proposed row of an INSERT ... ON CONFLICT
func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

// OnConflictDoUpdate appends an upsert clause to an insert statement. Columns in set are
// overwritten from the proposed row. When changed is not empty the update only happens
// if one of those columns differs from the stored row.
func OnConflictDoUpdate(query string, table string, conflict []string, set []string, changed []string) string {
	assignments := make([]string, 0, len(set))
	for _, col := range set {
		assignments = append(assignments, fmt.Sprintf("%s = %s", col, Excluded(col)))
	}

	clause := fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(assignments, ", "))
	if len(changed) > 0 {
		conditions := make([]string, 0, len(changed))
		for _, col := range changed {
			conditions = append(conditions, fmt.Sprintf("%s.%s IS DISTINCT FROM %s", table, col, Excluded(col)))
		}
		clause += " WHERE " + strings.Join(conditions, " OR ")
	}
	return query + clause
}

// Exists renders a correlated EXISTS condition for a select builder
func Exists(sb *sqlbuilder.SelectBuilder, sub *sqlbuilder.SelectBuilder) string {
	return fmt.Sprintf("EXISTS (%s)", sb.Var(sub))
}

// NotExists renders a correlated NOT EXISTS condition for a select builder
func NotExists(sb *sqlbuilder.SelectBuilder, sub *sqlbuilder.SelectBuilder) string {
	return fmt.Sprintf("NOT EXISTS (%s)", sb.Var(sub))
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
