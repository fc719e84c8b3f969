package database

import (
	"context"
	"database/sql"
	"fmt"
)

// DatabaseStats is a catalog snapshot of one database.
// MaxConnections is the pool's configured cap, the value HealthStatus reports;
// ServerMaxConnections is the server-wide limit, 0 when the dialect exposes none.
type DatabaseStats struct {
	TableSizes           map[string]int64 `json:"table_sizes"`
	IndexSizes           map[string]int64 `json:"index_sizes"`
	TotalSize            int64            `json:"total_size"` // sum of TableSizes
	ActiveConnections    int              `json:"active_connections"`
	MaxConnections       int              `json:"max_connections"`
	ServerMaxConnections int              `json:"server_max_connections"`
	Pool                 sql.DBStats      `json:"pool"`
}

// GetDatabaseStats runs the dialect's introspection queries.
// They are bounded by QueryTimeout and are not recorded as query metrics.
func (p *ConnectionPool) GetDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	tables, err := p.sizes(ctx, p.dialect.TableSizesQuery)
	if err != nil {
		return nil, executionError("table sizes", err)
	}
	indexes, err := p.sizes(ctx, p.dialect.IndexSizesQuery)
	if err != nil {
		return nil, executionError("index sizes", err)
	}

	stats := &DatabaseStats{
		TableSizes:        tables,
		IndexSizes:        indexes,
		ActiveConnections: p.activeConnections(ctx),
		MaxConnections:    p.cfg.MaxConnections,
		Pool:              p.db.Stats(),
	}
	for _, size := range tables {
		stats.TotalSize += size
	}

	if p.dialect.MaxConnectionsQuery != "" {
		var n int
		if err := p.db.QueryRowContext(ctx, p.dialect.MaxConnectionsQuery).Scan(&n); err != nil {
			return nil, executionError("max connections", err)
		}
		stats.ServerMaxConnections = n
	}
	return stats, nil
}

func (p *ConnectionPool) sizes(ctx context.Context, query string) (map[string]int64, error) {
	sizes := make(map[string]int64)
	if query == "" {
		return sizes, nil
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			name string
			size sql.NullInt64
		)
		if err := rows.Scan(&name, &size); err != nil {
			return nil, fmt.Errorf("scan size row: %w", err)
		}
		sizes[name] = size.Int64
	}
	return sizes, rows.Err()
}
