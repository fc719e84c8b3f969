package database

import (
	"sync"
	"time"
)

// MaxStoredMetrics is the capacity of a QueryMetricsStore
const MaxStoredMetrics = 10000

// Operations recorded in QueryMetric.Op
const (
	OpQuery   = "query"
	OpExec    = "exec"
	OpExplain = "explain"
)

// QueryMetric is the telemetry of one ExecuteQuery call, across all of its attempts
type QueryMetric struct {
	ID        string        `json:"id"`
	Op        string        `json:"op"`
	Query     string        `json:"query"`
	Params    []any         `json:"params,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
}

// MetricsFilter selects metrics. Filters apply in field order: Since, SuccessOnly, Limit.
type MetricsFilter struct {
	Since       time.Time // zero keeps every entry
	SuccessOnly bool
	Limit       int // keep the most recent Limit entries; 0 keeps all
}

// QueryMetricsStore is a bounded FIFO ledger of query telemetry.
// All methods are safe for concurrent use.
type QueryMetricsStore struct {
	mu      sync.Mutex
	entries []QueryMetric // ring buffer
	head    int           // index of the oldest entry
	size    int
}

// NewQueryMetricsStore creates a store holding at most capacity entries
func NewQueryMetricsStore(capacity int) *QueryMetricsStore {
	if capacity <= 0 {
		capacity = MaxStoredMetrics
	}
	return &QueryMetricsStore{entries: make([]QueryMetric, capacity)}
}

// Add appends m, evicting the oldest entry when full
func (s *QueryMetricsStore) Add(m QueryMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.entries)
	if s.size < capacity {
		s.entries[(s.head+s.size)%capacity] = m
		s.size++
		return
	}
	s.entries[s.head] = m
	s.head = (s.head + 1) % capacity
}

// Len returns the number of stored entries
func (s *QueryMetricsStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Cap returns the store capacity
func (s *QueryMetricsStore) Cap() int {
	return len(s.entries)
}

// Filter returns matching entries, oldest first
func (s *QueryMetricsStore) Filter(f MetricsFilter) []QueryMetric {
	s.mu.Lock()
	out := make([]QueryMetric, 0, s.size)
	s.each(func(m QueryMetric) {
		if !f.Since.IsZero() && m.Timestamp.Before(f.Since) {
			return
		}
		if f.SuccessOnly && !m.Success {
			return
		}
		out = append(out, m)
	})
	s.mu.Unlock()

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Prune removes every entry recorded before cutoff and returns how many were removed
func (s *QueryMetricsStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]QueryMetric, 0, s.size)
	s.each(func(m QueryMetric) {
		if !m.Timestamp.Before(cutoff) {
			kept = append(kept, m)
		}
	})

	removed := s.size - len(kept)
	if removed == 0 {
		return 0
	}

	clear(s.entries)
	copy(s.entries, kept)
	s.head = 0
	s.size = len(kept)
	return removed
}

// Counts returns total and failed entries recorded at or after since.
// Explain runs are diagnostics and are left out.
func (s *QueryMetricsStore) Counts(since time.Time) (total, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.each(func(m QueryMetric) {
		if m.Op == OpExplain || m.Timestamp.Before(since) {
			return
		}
		total++
		if !m.Success {
			failed++
		}
	})
	return total, failed
}

// each visits entries oldest first; callers hold s.mu
func (s *QueryMetricsStore) each(fn func(QueryMetric)) {
	capacity := len(s.entries)
	for i := 0; i < s.size; i++ {
		fn(s.entries[(s.head+i)%capacity])
	}
}
