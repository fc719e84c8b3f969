package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dbpulse/internal/api/middleware"
	"dbpulse/internal/api/response"
	av1 "dbpulse/internal/api/v1"
	"dbpulse/internal/config"
	"dbpulse/internal/version"
)

// Router handles all routing logic
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger *zap.Logger
}

// NewRouter creates and configures a new router.
// gatherer backs the metrics endpoint; nil uses the default registry.
func NewRouter(cfg *config.Config, pools av1.PoolRegistry, gatherer prometheus.Gatherer, logger *zap.Logger) *Router {
	// Set gin mode based on config
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: logger.Named("api"),
	}

	// Initialize middleware
	r.setupMiddleware()

	// Service endpoints
	r.engine.GET("/version", r.version)
	r.engine.GET(cfg.Server.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Initialize API versions
	r.setupAPIV1(pools)

	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupMiddleware configures all middleware
func (r *Router) setupMiddleware() {
	m := middleware.New(r.logger)

	r.engine.Use(m.RequestID())
	r.engine.Use(m.Logger())
	r.engine.Use(m.Recovery())
	r.engine.Use(m.Secure())
	r.engine.Use(m.NoCache())
}

// setupAPIV1 configures v1 API routes
func (r *Router) setupAPIV1(pools av1.PoolRegistry) {
	api := av1.NewAPI(pools, r.logger)
	api.RegisterRoutes(r.engine.Group("/api/v1"))
}

func (r *Router) version(c *gin.Context) {
	response.New(c, r.logger).Success(version.GetInfo())
}
