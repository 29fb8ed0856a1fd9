package outbox

import (
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
}
func (n *NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration)           {}
func (n *NoOpMetricsCollector) RecordOutboxLag(lag int)                                          {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {}

// MetricsSnapshot is a point-in-time copy of StatsCollector counters.
type MetricsSnapshot struct {
	Published     map[string]uint64
	Failed        map[string]uint64
	Retries       uint64
	Batches       uint64
	Lag           int
	LastBatchSize int
	LastBatchTook time.Duration
}

// StatsCollector keeps in-process counters, exported by PrometheusExporter.
type StatsCollector struct {
	mu   sync.Mutex
	snap MetricsSnapshot
}

func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		snap: MetricsSnapshot{
			Published: make(map[string]uint64),
			Failed:    make(map[string]uint64),
		},
	}
}

func (s *StatsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.snap.Published[eventType]++
	} else {
		s.snap.Failed[eventType]++
	}
}

func (s *StatsCollector) RecordBatchProcessed(count int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Batches++
	s.snap.LastBatchSize = count
	s.snap.LastBatchTook = duration
}

func (s *StatsCollector) RecordOutboxLag(lag int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Lag = lag
}

func (s *StatsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {
	if attempt <= 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Retries++
}

// Snapshot copies the current counters.
func (s *StatsCollector) Snapshot() MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Published = make(map[string]uint64, len(s.snap.Published))
	for k, v := range s.snap.Published {
		out.Published[k] = v
	}
	out.Failed = make(map[string]uint64, len(s.snap.Failed))
	for k, v := range s.snap.Failed {
		out.Failed[k] = v
	}
	return out
}
