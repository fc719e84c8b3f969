package database

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dbpulse/internal/config"
)

// PoolFactory constructs a pool; the default is NewConnectionPool
type PoolFactory func(cfg *config.DatabaseConfig, opts ...Option) (*ConnectionPool, error)

// ManagerOption configures a PoolManager
type ManagerOption func(*PoolManager)

// WithPoolFactory replaces the pool constructor
func WithPoolFactory(f PoolFactory) ManagerOption {
	return func(m *PoolManager) {
		if f != nil {
			m.factory = f
		}
	}
}

// WithPoolOptions appends options passed to every pool the manager creates
func WithPoolOptions(opts ...Option) ManagerOption {
	return func(m *PoolManager) {
		m.poolOpts = append(m.poolOpts, opts...)
	}
}

// PoolManager maps pool names to ConnectionPool instances.
// It is created once at startup and passed to whoever needs a pool.
type PoolManager struct {
	mu       sync.Mutex
	pools    map[string]*ConnectionPool
	factory  PoolFactory
	poolOpts []Option
	base     *zap.Logger
	logger   *zap.Logger
}

// NewPoolManager creates an empty registry
func NewPoolManager(logger *zap.Logger, opts ...ManagerOption) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PoolManager{
		pools:   make(map[string]*ConnectionPool),
		factory: NewConnectionPool,
		base:    logger,
		logger:  logger.Named("pool_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetPool returns the pool registered under name, creating it from cfg on first use.
// An empty name means DefaultPoolName. cfg is ignored once the pool exists.
func (m *PoolManager) GetPool(name string, cfg *config.DatabaseConfig) (*ConnectionPool, error) {
	if name == "" {
		name = DefaultPoolName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[name]; ok {
		return p, nil
	}
	if cfg == nil {
		return nil, NewError(CodeNotFound, "pool not found", "get pool",
			fmt.Errorf("pool %q does not exist and no configuration was given: %w", name, ErrConfig))
	}

	opts := append([]Option{WithLogger(m.base)}, m.poolOpts...)
	opts = append(opts, WithName(name))
	p, err := m.factory(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool %q: %w", name, err)
	}
	m.pools[name] = p

	m.logger.Info("Pool registered", zap.String("pool", name))
	return p, nil
}

// RemovePool disconnects and deregisters the named pool
func (m *PoolManager) RemovePool(name string) error {
	if name == "" {
		name = DefaultPoolName
	}

	m.mu.Lock()
	p, ok := m.pools[name]
	delete(m.pools, name)
	m.mu.Unlock()

	if !ok {
		return NewError(CodeNotFound, "pool not found", "remove pool", fmt.Errorf("pool %q", name))
	}

	m.logger.Info("Pool removed", zap.String("pool", name))
	return p.Disconnect()
}

// Names returns the registered pool names, sorted
func (m *PoolManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetAllHealthStatuses probes every registered pool concurrently
func (m *PoolManager) GetAllHealthStatuses(ctx context.Context) map[string]HealthStatus {
	pools := m.snapshot()

	var mu sync.Mutex
	statuses := make(map[string]HealthStatus, len(pools))

	g, gctx := errgroup.WithContext(ctx)
	for name, p := range pools {
		g.Go(func() error {
			status := p.GetHealthStatus(gctx)
			mu.Lock()
			statuses[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

// Cleanup disconnects every pool and empties the registry
func (m *PoolManager) Cleanup() error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*ConnectionPool)
	m.mu.Unlock()

	var errs []error
	for name, p := range pools {
		if err := p.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("pool %q: %w", name, err))
		}
	}

	m.logger.Info("All pools disconnected", zap.Int("count", len(pools)))
	return errors.Join(errs...)
}

func (m *PoolManager) snapshot() map[string]*ConnectionPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.pools)
}
