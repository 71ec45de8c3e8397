package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	query string
	args  []any
}

// stubExecutor answers queries from canned rows and records every call.
type stubExecutor struct {
	rows    [][]any
	row     []any
	err     error
	calls   []execCall
	execTag pgconn.CommandTag
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{query: query, args: args})
	return s.execTag, s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, execCall{query: query, args: args})
	if s.err != nil {
		return stubRow{err: s.err}
	}
	if s.row == nil {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{values: s.row}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, execCall{query: query, args: args})
	if s.err != nil {
		return nil, s.err
	}
	return &stubRows{data: s.rows, idx: -1}, nil
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type stubRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *stubRows) Close()                                       { r.closed = true }
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(r.data[r.idx], dest)
}

func (r *stubRows) Values() ([]any, error) {
	return nil, errors.New("values not supported in stub rows")
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported target %T", dest[i])
		}
	}
	return nil
}
