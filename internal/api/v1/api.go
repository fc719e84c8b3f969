package v1

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dbpulse/internal/config"
	"dbpulse/internal/database"
)

// probeTimeout bounds the live health probes of one request
const probeTimeout = 10 * time.Second

// PoolRegistry resolves pools by name
type PoolRegistry interface {
	GetPool(name string, cfg *config.DatabaseConfig) (*database.ConnectionPool, error)
	GetAllHealthStatuses(ctx context.Context) map[string]database.HealthStatus
	Names() []string
}

// API represents the API
type API struct {
	pools     PoolRegistry
	optimizer *database.QueryOptimizer
	logger    *zap.Logger
}

// NewAPI creates new API
func NewAPI(pools PoolRegistry, logger *zap.Logger) *API {
	return &API{
		pools:     pools,
		optimizer: database.NewQueryOptimizer(logger),
		logger:    logger,
	}
}

// RegisterRoutes registers API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	// Health of every pool
	r.GET("/health", api.healthCheck)

	// Per pool snapshots
	pools := r.Group("/pools")
	{
		pools.GET("", api.listPools)
		pools.GET("/:name/health", api.getPoolHealth)
		pools.GET("/:name/metrics", api.getPoolMetrics)
		pools.GET("/:name/slow", api.getSlowQueries)
		pools.GET("/:name/stats", api.getPoolStats)
	}

	// Rewrite without executing
	r.POST("/optimize", api.optimize)
}
