package database

import "time"

// HealthState is the tri-state health verdict of a pool
type HealthState string

const (
	StateHealthy   HealthState = "healthy"
	StateDegraded  HealthState = "degraded"
	StateUnhealthy HealthState = "unhealthy"
)

// HealthStatus is a point-in-time health snapshot, replaced wholesale on every check
type HealthStatus struct {
	Status          HealthState   `json:"status"`
	ResponseTime    time.Duration `json:"response_time"`
	ConnectionCount int           `json:"connection_count"`
	MaxConnections  int           `json:"max_connections"`
	ErrorRate       float64       `json:"error_rate"` // percent
	LastChecked     time.Time     `json:"last_checked"`
	Error           string        `json:"error,omitempty"`
}

// HealthThresholds bound each health signal. A signal strictly above an
// Unhealthy* bound makes the pool unhealthy, above a Degraded* bound degraded.
type HealthThresholds struct {
	UnhealthyLatency    time.Duration
	DegradedLatency     time.Duration
	UnhealthyErrorRate  float64 // percent
	DegradedErrorRate   float64 // percent
	UnhealthySaturation float64 // active / max connections
	DegradedSaturation  float64
	ErrorRateWindow     time.Duration
}

// DefaultHealthThresholds returns the standard classification bounds
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		UnhealthyLatency:    5 * time.Second,
		DegradedLatency:     time.Second,
		UnhealthyErrorRate:  10,
		DegradedErrorRate:   5,
		UnhealthySaturation: 0.9,
		DegradedSaturation:  0.7,
		ErrorRateWindow:     5 * time.Minute,
	}
}

// HealthEvaluator derives HealthStatus values from probe results and recorded telemetry
type HealthEvaluator struct {
	thresholds HealthThresholds
	store      *QueryMetricsStore
	now        func() time.Time
}

// NewHealthEvaluator creates an evaluator reading error rates from store
func NewHealthEvaluator(store *QueryMetricsStore, thresholds HealthThresholds) *HealthEvaluator {
	return &HealthEvaluator{
		thresholds: thresholds,
		store:      store,
		now:        time.Now,
	}
}

// ErrorRate returns the percentage of failed metrics within the rolling window.
// An empty window has a zero error rate.
func (e *HealthEvaluator) ErrorRate() float64 {
	total, failed := e.store.Counts(e.now().Add(-e.thresholds.ErrorRateWindow))
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total) * 100
}

// Evaluate builds the status for a successful probe
func (e *HealthEvaluator) Evaluate(latency time.Duration, active, maxConns int) HealthStatus {
	errorRate := e.ErrorRate()
	return HealthStatus{
		Status:          e.Classify(latency, errorRate, active, maxConns),
		ResponseTime:    latency,
		ConnectionCount: active,
		MaxConnections:  maxConns,
		ErrorRate:       errorRate,
		LastChecked:     e.now(),
	}
}

// ProbeFailed builds the status for a probe that could not run. The failure is
// definitive: nothing else is averaged in.
func (e *HealthEvaluator) ProbeFailed(err error, maxConns int) HealthStatus {
	status := HealthStatus{
		Status:         StateUnhealthy,
		ResponseTime:   0,
		MaxConnections: maxConns,
		ErrorRate:      100,
		LastChecked:    e.now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// Classify maps the three health signals to a verdict
func (e *HealthEvaluator) Classify(latency time.Duration, errorRate float64, active, maxConns int) HealthState {
	t := e.thresholds

	var saturation float64
	if maxConns > 0 {
		saturation = float64(active) / float64(maxConns)
	}

	switch {
	case latency > t.UnhealthyLatency || errorRate > t.UnhealthyErrorRate || saturation > t.UnhealthySaturation:
		return StateUnhealthy
	case latency > t.DegradedLatency || errorRate > t.DegradedErrorRate || saturation > t.DegradedSaturation:
		return StateDegraded
	default:
		return StateHealthy
	}
}
