package database

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a ConnectionPool at construction
type Option func(*poolOptions)

type poolOptions struct {
	name           string
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	thresholds     HealthThresholds
	capacity       int
}

func defaultPoolOptions() poolOptions {
	return poolOptions{
		name:           DefaultPoolName,
		logger:         zap.NewNop(),
		tracerProvider: otel.GetTracerProvider(),
		thresholds:     DefaultHealthThresholds(),
		capacity:       MaxStoredMetrics,
	}
}

// WithName sets the pool name used in logs, spans and metrics
func WithName(name string) Option {
	return func(o *poolOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the pool logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *poolOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets the provider of query spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *poolOptions) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithHealthThresholds overrides the health classification bounds
func WithHealthThresholds(t HealthThresholds) Option {
	return func(o *poolOptions) {
		o.thresholds = t
	}
}

// WithMetricsCapacity overrides the metrics store capacity
func WithMetricsCapacity(n int) Option {
	return func(o *poolOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// ExecOption configures a single execution
type ExecOption func(*execOptions)

type execOptions struct {
	retryAttempts int
	retryDelay    time.Duration
	optimize      bool
	explain       bool
}

// WithRetryAttempts bounds the total attempts of one call
func WithRetryAttempts(n int) ExecOption {
	return func(o *execOptions) {
		if n > 0 {
			o.retryAttempts = n
		}
	}
}

// WithRetryDelay sets the linear backoff base of one call
func WithRetryDelay(d time.Duration) ExecOption {
	return func(o *execOptions) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithOptimize executes the optimizer's rewrite instead of the original text
func WithOptimize() ExecOption {
	return func(o *execOptions) {
		o.optimize = true
	}
}

// WithExplain runs the explain variant before the main execution
func WithExplain() ExecOption {
	return func(o *execOptions) {
		o.explain = true
	}
}
