package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dbpulse/internal/config"
	"dbpulse/internal/logger"
	"dbpulse/internal/retry"
)

// DefaultPoolName is the pool name used when none is given
const DefaultPoolName = "default"

const tracerName = "dbpulse/internal/database"

// ConnectionPool executes queries against one database with bounded retry,
// per-call telemetry and periodic health tracking.
// It is safe for concurrent use; no lock is held while a query runs.
type ConnectionPool struct {
	name      string
	db        *sql.DB
	dialect   Dialect
	cfg       config.DatabaseConfig
	logger    *zap.Logger
	tracer    trace.Tracer
	store     *QueryMetricsStore
	evaluator *HealthEvaluator
	optimizer *QueryOptimizer
	health    atomic.Pointer[HealthStatus]

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// OptimizedResult is the outcome of ExecuteOptimizedQuery.
// ExplainErr is set when the explain step failed; it never fails the call itself.
type OptimizedResult struct {
	Result       *Result            `json:"result,omitempty"`
	Optimization *QueryOptimization `json:"optimization,omitempty"`
	Explain      *Result            `json:"explain,omitempty"`
	ExplainErr   error              `json:"-"`
}

// NewConnectionPool validates cfg, opens the driver handle and starts background monitoring.
// The configuration is copied; later changes to cfg have no effect.
func NewConnectionPool(cfg *config.DatabaseConfig, opts ...Option) (*ConnectionPool, error) {
	if cfg == nil {
		return nil, configError("new pool", errors.New("database config is required"))
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, configError("new pool", err)
	}

	dialect, dsn, err := resolveDialect(&c)
	if err != nil {
		return nil, configError("new pool", err)
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, configError("new pool", fmt.Errorf("failed to open database: %w", err))
	}

	return newConnectionPool(db, dialect, c, opts...), nil
}

// NewConnectionPoolWithDB wraps an already opened handle. cfg is validated the same
// way as in NewConnectionPool and the pool takes ownership of db.
func NewConnectionPoolWithDB(db *sql.DB, dialect Dialect, cfg *config.DatabaseConfig, opts ...Option) (*ConnectionPool, error) {
	if db == nil {
		return nil, configError("new pool", errors.New("database handle is required"))
	}
	if cfg == nil {
		return nil, configError("new pool", errors.New("database config is required"))
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, configError("new pool", err)
	}
	return newConnectionPool(db, dialect, c, opts...), nil
}

func newConnectionPool(db *sql.DB, dialect Dialect, cfg config.DatabaseConfig, opts ...Option) *ConnectionPool {
	o := defaultPoolOptions()
	for _, opt := range opts {
		opt(&o)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log := o.logger.Named("pool").With(zap.String("pool", o.name), zap.String("dialect", dialect.Name))
	log = logger.WithMinLevel(log, cfg.LogLevel)

	store := NewQueryMetricsStore(o.capacity)
	p := &ConnectionPool{
		name:      o.name,
		db:        db,
		dialect:   dialect,
		cfg:       cfg,
		logger:    log,
		tracer:    o.tracerProvider.Tracer(tracerName),
		store:     store,
		evaluator: NewHealthEvaluator(store, o.thresholds),
		optimizer: NewQueryOptimizer(log),
	}
	p.health.Store(&HealthStatus{
		Status:         StateUnhealthy,
		MaxConnections: cfg.MaxConnections,
		Error:          "health not checked yet",
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.healthLoop(ctx)

	if cfg.PruneInterval > 0 {
		p.wg.Add(1)
		go p.pruneLoop(ctx)
	}

	p.logger.Info("Connection pool created",
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("query_timeout", cfg.QueryTimeout),
		zap.Duration("health_check_interval", cfg.HealthCheckInterval))

	return p
}

// Name returns the pool name
func (p *ConnectionPool) Name() string {
	return p.name
}

// Dialect returns the pool dialect
func (p *ConnectionPool) Dialect() Dialect {
	return p.dialect
}

// Config returns a copy of the effective configuration
func (p *ConnectionPool) Config() config.DatabaseConfig {
	return p.cfg
}

// DB returns the underlying handle
func (p *ConnectionPool) DB() *sql.DB {
	return p.db
}

// ExecuteQuery runs a row-returning query with retry and records one metric for the call
func (p *ConnectionPool) ExecuteQuery(ctx context.Context, query string, args []any, opts ...ExecOption) (*Result, error) {
	result, err := p.runQuery(ctx, OpQuery, query, args, p.execOptions(opts))
	if err != nil {
		return nil, executionError("execute query", err)
	}
	return result, nil
}

// Exec runs a statement with retry and returns the number of affected rows
func (p *ConnectionPool) Exec(ctx context.Context, query string, args []any, opts ...ExecOption) (int64, error) {
	var affected int64
	err := p.execute(ctx, OpExec, query, args, p.execOptions(opts), func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, executionError("exec", err)
	}
	return affected, nil
}

// ExecuteOptimizedQuery optionally rewrites the query, optionally explains it, then executes it.
// The returned OptimizedResult is non-nil even when execution fails, so an explain
// outcome is never lost behind a query error.
func (p *ConnectionPool) ExecuteOptimizedQuery(ctx context.Context, query string, args []any, opts ...ExecOption) (*OptimizedResult, error) {
	o := p.execOptions(opts)
	out := &OptimizedResult{}

	text := query
	if o.optimize {
		optimization := p.optimizer.Optimize(query)
		out.Optimization = &optimization
		text = optimization.OptimizedQuery
	}

	if o.explain {
		out.Explain, out.ExplainErr = p.explain(ctx, text, args, o)
		if out.ExplainErr != nil {
			p.logger.Warn("Explain failed", zap.String("query", text), zap.Error(out.ExplainErr))
		}
	}

	result, err := p.runQuery(ctx, OpQuery, text, args, o)
	if err != nil {
		return out, executionError("execute optimized query", err)
	}
	out.Result = result
	return out, nil
}

// ExplainQuery runs the dialect's explain variant of query through the retrying executor
func (p *ConnectionPool) ExplainQuery(ctx context.Context, query string, args []any, opts ...ExecOption) (*Result, error) {
	return p.explain(ctx, query, args, p.execOptions(opts))
}

func (p *ConnectionPool) explain(ctx context.Context, query string, args []any, o execOptions) (*Result, error) {
	result, err := p.runQuery(ctx, OpExplain, p.dialect.ExplainPrefix+normalizeQuery(query), args, o)
	if err != nil {
		return nil, explainError(err)
	}
	return result, nil
}

// OptimizeQuery returns the optimizer's rewrite of query without executing it
func (p *ConnectionPool) OptimizeQuery(query string) QueryOptimization {
	return p.optimizer.Optimize(query)
}

// GetQueryMetrics returns recorded metrics, most recent last
func (p *ConnectionPool) GetQueryMetrics(filter MetricsFilter) []QueryMetric {
	return p.store.Filter(filter)
}

// GetSlowQueries returns successful metrics slower than threshold.
// A threshold <= 0 uses the configured slow query threshold.
func (p *ConnectionPool) GetSlowQueries(threshold time.Duration) []QueryMetric {
	if threshold <= 0 {
		threshold = p.cfg.SlowQueryThreshold
	}

	var slow []QueryMetric
	for _, m := range p.store.Filter(MetricsFilter{SuccessOnly: true}) {
		if m.Duration > threshold {
			slow = append(slow, m)
		}
	}
	return slow
}

// CleanupMetrics removes metrics older than maxAge and returns how many were removed.
// A maxAge <= 0 uses 24 hours.
func (p *ConnectionPool) CleanupMetrics(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = config.DefaultMetricsRetention
	}
	removed := p.store.Prune(time.Now().Add(-maxAge))
	if removed > 0 {
		p.logger.Debug("Pruned query metrics", zap.Int("removed", removed), zap.Duration("max_age", maxAge))
	}
	return removed
}

// GetHealthStatus probes the database, stores and returns the new snapshot.
// Probe failures are reported as an unhealthy status, never as an error.
func (p *ConnectionPool) GetHealthStatus(ctx context.Context) (status HealthStatus) {
	maxConns := p.cfg.MaxConnections

	defer func() {
		if r := recover(); r != nil {
			status = p.evaluator.ProbeFailed(fmt.Errorf("health probe panicked: %v", r), maxConns)
			p.health.Store(&status)
			p.logger.Error("Health probe panicked", zap.Any("panic", r))
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()

	start := time.Now()
	var one int
	if err := p.db.QueryRowContext(probeCtx, p.dialect.ProbeQuery).Scan(&one); err != nil {
		status = p.evaluator.ProbeFailed(err, maxConns)
		p.health.Store(&status)
		p.logger.Warn("Health probe failed", zap.Error(err))
		return status
	}
	latency := time.Since(start)

	status = p.evaluator.Evaluate(latency, p.activeConnections(probeCtx), maxConns)
	p.health.Store(&status)

	if status.Status != StateHealthy {
		p.logger.Warn("Pool health degraded",
			zap.String("status", string(status.Status)),
			zap.Duration("response_time", status.ResponseTime),
			zap.Int("connections", status.ConnectionCount),
			zap.Float64("error_rate", status.ErrorRate))
	}
	return status
}

// CurrentHealth returns the last stored snapshot without probing
func (p *ConnectionPool) CurrentHealth() HealthStatus {
	return *p.health.Load()
}

// Disconnect stops background monitoring and closes the driver handle.
// Only the first call does any work; later calls return nil.
func (p *ConnectionPool) Disconnect() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.cancel()
		p.wg.Wait()

		if cerr := p.db.Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
		p.logger.Info("Connection pool disconnected")
	})
	return err
}

func (p *ConnectionPool) execOptions(opts []ExecOption) execOptions {
	o := execOptions{
		retryAttempts: p.cfg.RetryAttempts,
		retryDelay:    p.cfg.RetryDelayBase,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (p *ConnectionPool) runQuery(ctx context.Context, op, query string, args []any, o execOptions) (*Result, error) {
	var result *Result
	err := p.execute(ctx, op, query, args, o, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		result, err = scanResult(rows)
		return err
	})
	return result, err
}

// execute runs fn on a dedicated connection under the retry policy and records exactly
// one metric spanning every attempt. The returned error is the last attempt's cause.
func (p *ConnectionPool) execute(ctx context.Context, op, query string, args []any, o execOptions, fn func(context.Context, *sql.Conn) error) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	ctx, span := p.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", p.dialect.Name),
			attribute.String("db.statement", query),
			attribute.String("db.pool", p.name),
		))
	defer span.End()

	start := time.Now()
	attempts, err := retry.Execute(ctx,
		&retry.Config{Attempts: o.retryAttempts, DelayBase: o.retryDelay},
		func(ctx context.Context) error {
			return p.attempt(ctx, fn)
		},
		func(attempt int, err error) {
			if attempt < o.retryAttempts {
				p.logger.Warn("Query attempt failed, retrying",
					zap.String("op", op),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
		})
	duration := time.Since(start)

	metric := QueryMetric{
		ID:        uuid.NewString(),
		Op:        op,
		Query:     query,
		Params:    append([]any(nil), args...),
		Timestamp: start,
		Duration:  duration,
		Success:   err == nil,
		Attempts:  attempts,
	}
	if err != nil {
		metric.Error = err.Error()
	}
	p.store.Add(metric)

	span.SetAttributes(attribute.Int("db.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("Query failed",
			zap.String("op", op),
			zap.String("query", query),
			zap.Int("attempts", attempts),
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	if duration > p.cfg.SlowQueryThreshold {
		p.logger.Warn("Slow query",
			zap.String("query", query),
			zap.Duration("duration", duration),
			zap.Duration("threshold", p.cfg.SlowQueryThreshold))
	}
	if p.cfg.LogQueries {
		p.logger.Debug("Query executed",
			zap.String("op", op),
			zap.String("query", query),
			zap.Any("params", args),
			zap.Duration("duration", duration),
			zap.Int("attempts", attempts))
	}
	return nil
}

// attempt acquires a connection within PoolTimeout and runs fn within QueryTimeout
func (p *ConnectionPool) attempt(ctx context.Context, fn func(context.Context, *sql.Conn) error) error {
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, p.cfg.PoolTimeout)
	conn, err := p.db.Conn(acquireCtx)
	cancelAcquire()
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()
	return fn(queryCtx, conn)
}

// activeConnections asks the server, falling back to the handle's own count
func (p *ConnectionPool) activeConnections(ctx context.Context) int {
	if p.dialect.ActiveConnectionsQuery != "" {
		var n int
		err := p.db.QueryRowContext(ctx, p.dialect.ActiveConnectionsQuery).Scan(&n)
		if err == nil {
			return n
		}
		p.logger.Debug("Active connection query failed, using pool stats", zap.Error(err))
	}
	return p.db.Stats().InUse
}

func (p *ConnectionPool) healthLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.GetHealthStatus(ctx)
		}
	}
}

func (p *ConnectionPool) pruneLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CleanupMetrics(p.cfg.MetricsRetention)
		}
	}
}
