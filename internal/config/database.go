package config

import (
	"fmt"
	"time"

	"dbpulse/internal/validator"
)

// Default values applied by DatabaseConfig.SetDefaults
const (
	DefaultMaxConnections      = 10
	DefaultConnectionTimeout   = 30 * time.Second
	DefaultQueryTimeout        = 30 * time.Second
	DefaultPoolTimeout         = 60 * time.Second
	DefaultLogLevel            = "info"
	DefaultConnMaxLifetime     = time.Hour
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultRetryAttempts       = 3
	DefaultRetryDelayBase      = time.Second
	DefaultSlowQueryThreshold  = time.Second
	DefaultMetricsRetention    = 24 * time.Hour
)

// DatabaseConfig represents the configuration of one connection pool.
// A pool copies it at construction; later changes have no effect.
type DatabaseConfig struct {
	URL    string `mapstructure:"url" validate:"required,dburl"`
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=pgx pq mysql sqlite3"`

	MaxConnections  int           `mapstructure:"max_connections" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`

	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" validate:"gt=0"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	PoolTimeout       time.Duration `mapstructure:"pool_timeout" validate:"gt=0"`

	LogQueries bool   `mapstructure:"log_queries"`
	LogLevel   string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Retry settings
	RetryAttempts  int           `mapstructure:"retry_attempts" validate:"min=1"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base" validate:"gte=0"`

	// Monitoring settings
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval" validate:"gt=0"`
	SlowQueryThreshold  time.Duration `mapstructure:"slow_query_threshold" validate:"gt=0"`
	MetricsRetention    time.Duration `mapstructure:"metrics_retention" validate:"gt=0"`
	PruneInterval       time.Duration `mapstructure:"prune_interval" validate:"gte=0"`
}

// SetDefaults fills every omitted field
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = max(c.MaxConnections/2, 1)
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.PoolTimeout == 0 {
		c.PoolTimeout = DefaultPoolTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelayBase == 0 {
		c.RetryDelayBase = DefaultRetryDelayBase
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.SlowQueryThreshold == 0 {
		c.SlowQueryThreshold = DefaultSlowQueryThreshold
	}
	if c.MetricsRetention == 0 {
		c.MetricsRetention = DefaultMetricsRetention
	}
}

// Validate sets defaults and validates database configuration
func (c *DatabaseConfig) Validate() error {
	c.SetDefaults()

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	if c.MaxIdleConns > c.MaxConnections {
		return fmt.Errorf("invalid database config: max_idle_conns (%d) exceeds max_connections (%d)",
			c.MaxIdleConns, c.MaxConnections)
	}
	return nil
}
