package database

import (
	"context"
	"database/sql"
)

// Result is the raw outcome of a query whose row shape is not known statically
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// RowScanner maps the current row to a value of the expected shape
type RowScanner[T any] func(rows *sql.Rows) (T, error)

// Query executes query with the same retry and telemetry rules as ExecuteQuery
// and returns every row mapped through scan.
func Query[T any](ctx context.Context, p *ConnectionPool, query string, args []any, scan RowScanner[T], opts ...ExecOption) ([]T, error) {
	var out []T
	err := p.execute(ctx, OpQuery, query, args, p.execOptions(opts), func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()

		// a retried attempt starts over
		out = out[:0]
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, executionError("query", err)
	}
	return out, nil
}

// scanResult drains rows into a Result and closes them
func scanResult(rows *sql.Rows) (*Result, error) {
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{
		Columns: columns,
		Rows:    make([]map[string]any, 0),
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}
