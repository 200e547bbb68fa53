package transport

import (
	"sync"
	"time"
)

// SummarySnapshot represents aggregated call insights.
type SummarySnapshot struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	SimulatedResults   int64            `json:"simulated_results"`
	FailuresByKind     map[string]int64 `json:"failures_by_kind"`
	SuccessRate        float64          `json:"success_rate"`
	AverageLatencyMs   float64          `json:"average_latency_ms"`
}

// Summary is an Observer that aggregates call statistics in memory.
type Summary struct {
	mu           sync.Mutex
	total        int64
	success      int64
	simulated    int64
	failures     map[string]int64
	totalLatency time.Duration
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{failures: make(map[string]int64)}
}

// Observe records ev. Simulated substitutions are counted on their own and
// do not add to the dispatched total.
func (s *Summary) Observe(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Outcome {
	case OutcomeSimulated:
		s.simulated++
		return
	case OutcomeSuccess:
		s.success++
	default:
		s.failures[string(ev.Kind)]++
	}
	s.total++
	s.totalLatency += ev.Latency
}

// Snapshot returns the current aggregates.
func (s *Summary) Snapshot() SummarySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SummarySnapshot{
		TotalRequests:      s.total,
		SuccessfulRequests: s.success,
		SimulatedResults:   s.simulated,
		FailuresByKind:     make(map[string]int64, len(s.failures)),
	}
	for kind, n := range s.failures {
		snap.FailuresByKind[kind] = n
	}
	if s.total > 0 {
		snap.SuccessRate = float64(s.success) / float64(s.total)
		snap.AverageLatencyMs = float64(s.totalLatency.Milliseconds()) / float64(s.total)
	}
	return snap
}
