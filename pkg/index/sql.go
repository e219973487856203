package index

import (
	"context"
	"database/sql"
	"fmt"
)

// ScanFunc reads one record from the current row.
type ScanFunc[T any] func(rows *sql.Rows) (T, error)

// SQLSource pages records out of a SELECT statement. The statement must not
// carry its own LIMIT or OFFSET and should have a stable ORDER BY, since
// pages are fetched by separate queries.
type SQLSource[T any] struct {
	db    *sql.DB
	query string
	args  []any
	scan  ScanFunc[T]
}

// NewSQLSource creates a Source over query. args bind the query's own
// placeholders; LIMIT and OFFSET are appended after them.
func NewSQLSource[T any](db *sql.DB, query string, scan ScanFunc[T], args ...any) *SQLSource[T] {
	return &SQLSource[T]{db: db, query: query, args: args, scan: scan}
}

// List returns up to size records starting at start.
func (s *SQLSource[T]) List(ctx context.Context, start, size int) ([]T, error) {
	args := append(append([]any(nil), s.args...), size, start)
	rows, err := s.db.QueryContext(ctx, s.query+" LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return out, nil
}
