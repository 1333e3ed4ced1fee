package metrics

// Metrics collection for cyclic process data exchange

import (
	"math"
	"sort"
	"sync"
	"time"
)

// CycleMetric represents a single exchange cycle
type CycleMetric struct {
	Timestamp time.Time
	Cycle     int
	WKC       int
	Expected  int
	Degraded  bool
	RTTMs     float64
}

// Summary contains aggregated cycle statistics
type Summary struct {
	TotalCycles    int
	HealthyCycles  int
	DegradedCycles int
	MinRTT         float64
	MaxRTT         float64
	AvgRTT         float64
	P50RTT         float64
	P95RTT         float64
	P99RTT         float64
	sumRTT         float64
}

// Sink collects and aggregates cycle metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []CycleMetric
	summary Summary
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{
		metrics: make([]CycleMetric, 0),
		summary: Summary{MinRTT: math.MaxFloat64},
	}
}

// Record records a new cycle metric
func (s *Sink) Record(m CycleMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = append(s.metrics, m)

	s.summary.TotalCycles++
	if m.Degraded {
		s.summary.DegradedCycles++
	} else {
		s.summary.HealthyCycles++
	}
	if m.RTTMs < s.summary.MinRTT {
		s.summary.MinRTT = m.RTTMs
	}
	if m.RTTMs > s.summary.MaxRTT {
		s.summary.MaxRTT = m.RTTMs
	}
	s.summary.sumRTT += m.RTTMs
	s.summary.AvgRTT = s.summary.sumRTT / float64(s.summary.TotalCycles)
}

// GetMetrics returns a copy of all recorded metrics
func (s *Sink) GetMetrics() []CycleMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]CycleMetric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// GetSummary returns the aggregated summary with percentiles computed over
// all recorded cycles.
func (s *Sink) GetSummary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := s.summary
	if summary.TotalCycles == 0 {
		summary.MinRTT = 0
		return summary
	}

	rtts := make([]float64, len(s.metrics))
	for i, m := range s.metrics {
		rtts[i] = m.RTTMs
	}
	sort.Float64s(rtts)

	summary.P50RTT = percentile(rtts, 50)
	summary.P95RTT = percentile(rtts, 95)
	summary.P99RTT = percentile(rtts, 99)
	return summary
}

// percentile returns the p-th percentile of a sorted sample using
// nearest-rank selection.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
