package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dbpulse/internal/config"
	"dbpulse/internal/database"
)

type envelope struct {
	Code  int             `json:"code"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type testServer struct {
	engine  *gin.Engine
	manager *database.PoolManager
	mocks   map[string]sqlmock.Sqlmock
}

func newTestServer(t *testing.T, names ...string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{mocks: make(map[string]sqlmock.Sqlmock)}
	factory := func(cfg *config.DatabaseConfig, opts ...database.Option) (*database.ConnectionPool, error) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		if err != nil {
			return nil, err
		}
		p, err := database.NewConnectionPoolWithDB(db, database.SQLiteDialect, cfg, opts...)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.mocks[p.Name()] = mock
		return p, nil
	}

	logger := zaptest.NewLogger(t)
	s.manager = database.NewPoolManager(logger, database.WithPoolFactory(factory))
	for _, name := range names {
		_, err := s.manager.GetPool(name, &config.DatabaseConfig{
			URL:            "sqlite:///tmp/" + name + ".db",
			RetryDelayBase: time.Millisecond,
		})
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		for _, mock := range s.mocks {
			mock.ExpectClose()
		}
		assert.NoError(t, s.manager.Cleanup())
	})

	s.engine = gin.New()
	NewAPI(s.manager, logger).RegisterRoutes(s.engine.Group("/api/v1"))
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func (s *testServer) pool(t *testing.T, name string) *database.ConnectionPool {
	p, err := s.manager.GetPool(name, nil)
	require.NoError(t, err)
	return p
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, "primary", "replica")
	s.mocks["primary"].ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	s.mocks["replica"].ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

	w, env := s.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var health healthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, database.StateUnhealthy, health.Status)
	assert.Equal(t, database.StateHealthy, health.Pools["primary"].Status)
	assert.Equal(t, database.StateUnhealthy, health.Pools["replica"].Status)
}

func TestHealthCheckAllHealthy(t *testing.T) {
	s := newTestServer(t, "primary")
	s.mocks["primary"].ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	w, env := s.do(t, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var health healthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, database.StateHealthy, health.Status)
}

func TestListPools(t *testing.T) {
	s := newTestServer(t, "b", "a")

	w, env := s.do(t, http.MethodGet, "/api/v1/pools", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var names []string
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestPoolNotFound(t *testing.T) {
	s := newTestServer(t, "primary")

	for _, path := range []string{
		"/api/v1/pools/missing/health",
		"/api/v1/pools/missing/metrics",
		"/api/v1/pools/missing/slow",
		"/api/v1/pools/missing/stats",
	} {
		w, env := s.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, env.Error, "missing", path)
	}
}

func TestGetPoolHealth(t *testing.T) {
	s := newTestServer(t, "primary")
	s.mocks["primary"].ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	w, env := s.do(t, http.MethodGet, "/api/v1/pools/primary/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var status database.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, database.StateHealthy, status.Status)
	assert.Equal(t, 10, status.MaxConnections)
}

func TestGetPoolMetrics(t *testing.T) {
	s := newTestServer(t, "primary")
	mock := s.mocks["primary"]
	p := s.pool(t, "primary")

	ctx := context.Background()
	for i := range 4 {
		if i == 1 {
			mock.ExpectQuery("SELECT n").WillReturnError(assert.AnError)
			_, err := p.ExecuteQuery(ctx, "SELECT n", nil, database.WithRetryAttempts(1))
			require.Error(t, err)
			continue
		}
		mock.ExpectQuery("SELECT n").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(i))
		_, err := p.ExecuteQuery(ctx, "SELECT n", nil)
		require.NoError(t, err)
	}

	tests := []struct {
		query string
		count int
	}{
		{"", 4},
		{"?success_only=true", 3},
		{"?success_only=true&limit=2", 2},
		{"?since=1h&limit=10", 4},
	}
	for _, tt := range tests {
		w, env := s.do(t, http.MethodGet, "/api/v1/pools/primary/metrics"+tt.query, "")
		require.Equal(t, http.StatusOK, w.Code, tt.query)

		var metrics []database.QueryMetric
		require.NoError(t, json.Unmarshal(env.Data, &metrics))
		assert.Len(t, metrics, tt.count, tt.query)
	}
}

func TestGetPoolMetricsBadParams(t *testing.T) {
	s := newTestServer(t, "primary")

	for _, q := range []string{"?since=yesterday", "?success_only=maybe", "?limit=-1", "?limit=x"} {
		w, _ := s.do(t, http.MethodGet, "/api/v1/pools/primary/metrics"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetSlowQueries(t *testing.T) {
	s := newTestServer(t, "primary")
	mock := s.mocks["primary"]
	p := s.pool(t, "primary")

	mock.ExpectQuery("SELECT slow").
		WillDelayFor(30 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	_, err := p.ExecuteQuery(context.Background(), "SELECT slow", nil)
	require.NoError(t, err)

	w, env := s.do(t, http.MethodGet, "/api/v1/pools/primary/slow?threshold=10ms", "")
	require.Equal(t, http.StatusOK, w.Code)
	var slow []database.QueryMetric
	require.NoError(t, json.Unmarshal(env.Data, &slow))
	require.Len(t, slow, 1)
	assert.Equal(t, "SELECT slow", slow[0].Query)

	w, _ = s.do(t, http.MethodGet, "/api/v1/pools/primary/slow?threshold=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPoolStats(t *testing.T) {
	s := newTestServer(t, "primary")
	mock := s.mocks["primary"]

	mock.ExpectQuery(database.SQLiteDialect.TableSizesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"name", "size"}).AddRow("events", 4096))
	mock.ExpectQuery(database.SQLiteDialect.IndexSizesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"name", "size"}).AddRow("events_ts", 1024))

	w, env := s.do(t, http.MethodGet, "/api/v1/pools/primary/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats database.DatabaseStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(4096), stats.TotalSize)
	assert.Equal(t, map[string]int64{"events_ts": 1024}, stats.IndexSizes)
	assert.Equal(t, 10, stats.MaxConnections)
	assert.Zero(t, stats.ServerMaxConnections)
}

func TestGetPoolStatsError(t *testing.T) {
	s := newTestServer(t, "primary")
	s.mocks["primary"].ExpectQuery(database.SQLiteDialect.TableSizesQuery).
		WillReturnError(assert.AnError)

	w, env := s.do(t, http.MethodGet, "/api/v1/pools/primary/stats", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, env.Error, "failed to get database stats")
}

func TestOptimize(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/optimize", `{"query": "SELECT * FROM t"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var opt database.QueryOptimization
	require.NoError(t, json.Unmarshal(env.Data, &opt))
	assert.Equal(t, "SELECT id, created_at FROM t WHERE 1=1 LIMIT 1000", opt.OptimizedQuery)
	assert.NotEmpty(t, opt.Suggestions)

	w, _ = s.do(t, http.MethodPost, "/api/v1/optimize", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
