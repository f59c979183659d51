package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestOnConflictDoUpdate(t *testing.T) {
	query := OnConflictDoUpdate("INSERT INTO t (a, b, c, d) VALUES ($1, $2, $3, $4)", "t", []string{"a"}, []string{"b", "c", "d"}, []string{"b", "c"})
	assert.Equal(t,
		"INSERT INTO t (a, b, c, d) VALUES ($1, $2, $3, $4) ON CONFLICT (a) DO UPDATE SET b = EXCLUDED.b, c = EXCLUDED.c, d = EXCLUDED.d WHERE t.b IS DISTINCT FROM EXCLUDED.b OR t.c IS DISTINCT FROM EXCLUDED.c",
		query,
	)

	query = OnConflictDoUpdate("INSERT INTO t (a, b) VALUES ($1, $2)", "t", []string{"a"}, []string{"b"}, nil)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2) ON CONFLICT (a) DO UPDATE SET b = EXCLUDED.b", query)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
