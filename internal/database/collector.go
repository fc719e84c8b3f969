package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "dbpulse"

// Collector exports the state of every pool in a PoolManager at scrape time.
// It reads stored snapshots only and never probes a database.
type Collector struct {
	manager *PoolManager

	health          *prometheus.Desc
	errorRate       *prometheus.Desc
	responseTime    *prometheus.Desc
	openConnections *prometheus.Desc
	inUse           *prometheus.Desc
	idle            *prometheus.Desc
	waitCount       *prometheus.Desc
	storedMetrics   *prometheus.Desc
}

// NewCollector creates a collector over manager
func NewCollector(manager *PoolManager) *Collector {
	labels := []string{"pool"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "pool", name), help, labels, nil)
	}

	return &Collector{
		manager:         manager,
		health:          desc("health_status", "Last health verdict: 0 healthy, 1 degraded, 2 unhealthy."),
		errorRate:       desc("error_rate_percent", "Failed query percentage at the last health check."),
		responseTime:    desc("probe_response_seconds", "Latency of the last health probe."),
		openConnections: desc("open_connections", "Established connections, in use and idle."),
		inUse:           desc("in_use_connections", "Connections currently in use."),
		idle:            desc("idle_connections", "Idle connections."),
		waitCount:       desc("wait_count_total", "Connections waited for."),
		storedMetrics:   desc("stored_query_metrics", "Query metrics currently held in memory."),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.health
	ch <- c.errorRate
	ch <- c.responseTime
	ch <- c.openConnections
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.storedMetrics
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, p := range c.manager.snapshot() {
		h := p.CurrentHealth()
		s := p.db.Stats()

		ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, healthValue(h.Status), name)
		ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, h.ErrorRate, name)
		ch <- prometheus.MustNewConstMetric(c.responseTime, prometheus.GaugeValue, h.ResponseTime.Seconds(), name)
		ch <- prometheus.MustNewConstMetric(c.openConnections, prometheus.GaugeValue, float64(s.OpenConnections), name)
		ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse), name)
		ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle), name)
		ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.WaitCount), name)
		ch <- prometheus.MustNewConstMetric(c.storedMetrics, prometheus.GaugeValue, float64(p.store.Len()), name)
	}
}

func healthValue(s HealthState) float64 {
	switch s {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}
