package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dbpulse/internal/api/response"
	"dbpulse/internal/database"
)

// healthResponse aggregates the health of every pool
type healthResponse struct {
	Status database.HealthState             `json:"status"`
	Pools  map[string]database.HealthStatus `json:"pools"`
}

// optimizeRequest is the body of POST /optimize
type optimizeRequest struct {
	Query string `json:"query" binding:"required"`
}

// healthCheck probes every pool; any unhealthy pool makes the whole service unavailable
func (api *API) healthCheck(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	statuses := api.pools.GetAllHealthStatuses(ctx)
	overall := database.StateHealthy
	for _, s := range statuses {
		if rank(s.Status) > rank(overall) {
			overall = s.Status
		}
	}

	status := http.StatusOK
	if overall == database.StateUnhealthy {
		status = http.StatusServiceUnavailable
	}
	resp.Data(status, healthResponse{Status: overall, Pools: statuses})
}

// listPools returns the registered pool names
func (api *API) listPools(c *gin.Context) {
	response.New(c, api.logger).Success(api.pools.Names())
}

// getPoolHealth runs a live probe against one pool
func (api *API) getPoolHealth(c *gin.Context) {
	resp := response.New(c, api.logger)

	pool, ok := api.pool(c, resp)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	status := pool.GetHealthStatus(ctx)
	code := http.StatusOK
	if status.Status == database.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	resp.Data(code, status)
}

// getPoolMetrics handles GET /pools/:name/metrics?since=5m&success_only=true&limit=5
func (api *API) getPoolMetrics(c *gin.Context) {
	resp := response.New(c, api.logger)

	pool, ok := api.pool(c, resp)
	if !ok {
		return
	}

	var filter database.MetricsFilter
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			resp.BadRequest(fmt.Errorf("invalid since duration: %q", v))
			return
		}
		filter.Since = time.Now().Add(-d)
	}
	if v := c.Query("success_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			resp.BadRequest(fmt.Errorf("invalid success_only flag: %q", v))
			return
		}
		filter.SuccessOnly = b
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			resp.BadRequest(fmt.Errorf("invalid limit: %q", v))
			return
		}
		filter.Limit = n
	}

	resp.Success(pool.GetQueryMetrics(filter))
}

// getSlowQueries handles GET /pools/:name/slow?threshold=1s
func (api *API) getSlowQueries(c *gin.Context) {
	resp := response.New(c, api.logger)

	pool, ok := api.pool(c, resp)
	if !ok {
		return
	}

	var threshold time.Duration
	if v := c.Query("threshold"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			resp.BadRequest(fmt.Errorf("invalid threshold duration: %q", v))
			return
		}
		threshold = d
	}

	resp.Success(pool.GetSlowQueries(threshold))
}

// getPoolStats returns catalog statistics of one pool
func (api *API) getPoolStats(c *gin.Context) {
	resp := response.New(c, api.logger)

	pool, ok := api.pool(c, resp)
	if !ok {
		return
	}

	stats, err := pool.GetDatabaseStats(c.Request.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			api.logger.Info("Client canceled stats request", zap.String("pool", pool.Name()))
			return
		}
		resp.InternalError(fmt.Errorf("failed to get database stats: %w", err))
		return
	}
	resp.Success(stats)
}

// optimize rewrites a query without executing it
func (api *API) optimize(c *gin.Context) {
	resp := response.New(c, api.logger)

	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(fmt.Errorf("invalid optimize request: %v", err))
		return
	}

	resp.Success(api.optimizer.Optimize(req.Query))
}

// pool resolves the :name parameter, writing a 404 when it is unknown
func (api *API) pool(c *gin.Context, resp *response.Handler) (*database.ConnectionPool, bool) {
	name := c.Param("name")
	pool, err := api.pools.GetPool(name, nil)
	if err != nil {
		if errors.Is(err, database.ErrPoolNotFound) {
			resp.NotFound(fmt.Errorf("pool %q not found", name))
			return nil, false
		}
		resp.InternalError(err)
		return nil, false
	}
	return pool, true
}

func rank(s database.HealthState) int {
	switch s {
	case database.StateHealthy:
		return 0
	case database.StateDegraded:
		return 1
	default:
		return 2
	}
}
