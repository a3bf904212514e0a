// Package metrics records in-process counters and timings for the webhook
// and page runtimes and renders them as JSON snapshots.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	maxSamples = 1000 // Keep last 1000 samples for percentile calculations
)

// Manager holds every metric by path ("webhook/tool_calls")
type Manager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	outcomes    map[string]*OutcomeMetric
	started     time.Time
}

var (
	instance *Manager
	once     sync.Once
)

// New creates an empty manager
func New() *Manager {
	return &Manager{
		timings:     make(map[string]*TimingMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
		outcomes:    make(map[string]*OutcomeMetric),
		started:     time.Now(),
	}
}

// GetInstance returns the process-wide manager used by the Metric* helpers
func GetInstance() *Manager {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, function)
}

// Uptime is the time since the manager was created
func (m *Manager) Uptime() time.Duration { return time.Since(m.started) }

// RecordDuration records a duration directly
func (m *Manager) RecordDuration(topic, function string, duration time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{
			samples: make([]time.Duration, 0, 64),
			Min:     duration,
			Max:     duration,
		}
		m.timings[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration
	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

// AddCounter adds to a counter
func (m *Manager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Value += delta
	metric.Last = time.Now()
}

// Counter returns a counter's value, 0 when it was never touched
func (m *Manager) Counter(topic, function string) int64 {
	m.mu.RLock()
	metric := m.counters[buildPath(topic, function)]
	m.mu.RUnlock()
	if metric == nil {
		return 0
	}
	metric.mu.RLock()
	defer metric.mu.RUnlock()
	return metric.Value
}

func (m *Manager) successFailFor(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{FailureReasons: make(map[string]int64)}
		m.successFail[path] = metric
	}
	return metric
}

// RecordSuccess records a successful operation
func (m *Manager) RecordSuccess(topic, function string) {
	metric := m.successFailFor(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Success++
	metric.LastSuccess = time.Now()
	metric.push(true)
}

// RecordFailure records a failed operation
func (m *Manager) RecordFailure(topic, function, reason string) {
	metric := m.successFailFor(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Failures++
	metric.LastFailure = time.Now()
	if reason != "" {
		metric.FailureReasons[reason]++
	}
	metric.push(false)
}

func (s *SuccessFailMetric) push(ok bool) {
	s.recentWindow[s.windowIndex] = ok
	s.windowIndex = (s.windowIndex + 1) % len(s.recentWindow)
	if s.windowSize < len(s.recentWindow) {
		s.windowSize++
	}
}

// RecordOutcome records a specific outcome
func (m *Manager) RecordOutcome(topic, function, outcome string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.outcomes[path]
	if !exists {
		metric = &OutcomeMetric{Outcomes: make(map[string]int64)}
		m.outcomes[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Outcomes[outcome]++
	metric.Total++
	metric.LastOutcome = outcome
	metric.LastTime = time.Now()
}

// GetSnapshot returns a point-in-time view of every metric keyed by path
func (m *Manager) GetSnapshot() map[string]*MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make(map[string]*MetricSnapshot)

	for path, metric := range m.timings {
		metric.mu.RLock()
		avg := float64(0)
		if metric.Count > 0 {
			avg = float64(metric.Total) / float64(metric.Count) / float64(time.Millisecond)
		}
		snapshots[path] = &MetricSnapshot{
			Path:   path,
			Type:   TypeTiming,
			Health: getTimingHealth(avg),
			Data: TimingSnapshot{
				Count:  metric.Count,
				AvgMs:  avg,
				MinMs:  float64(metric.Min) / float64(time.Millisecond),
				MaxMs:  float64(metric.Max) / float64(time.Millisecond),
				LastMs: float64(metric.Last) / float64(time.Millisecond),
				P95Ms:  calculatePercentile(metric.samples, 95),
				P99Ms:  calculatePercentile(metric.samples, 99),
			},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.counters {
		metric.mu.RLock()
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeCounter,
			Data: CounterSnapshot{Value: metric.Value},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.successFail {
		metric.mu.RLock()
		total := metric.Success + metric.Failures
		rate := float64(0)
		if total > 0 {
			rate = float64(metric.Success) / float64(total) * 100
		}
		recent := float64(0)
		if metric.windowSize > 0 {
			good := 0
			for i := 0; i < metric.windowSize; i++ {
				if metric.recentWindow[i] {
					good++
				}
			}
			recent = float64(good) / float64(metric.windowSize) * 100
		}
		reasons := make(map[string]int64, len(metric.FailureReasons))
		for k, v := range metric.FailureReasons {
			reasons[k] = v
		}
		snapshots[path] = &MetricSnapshot{
			Path:   path,
			Type:   TypeSuccessFail,
			Health: getRateHealth(recent),
			Data: SuccessFailSnapshot{
				Success:        metric.Success,
				Failures:       metric.Failures,
				SuccessRate:    rate,
				RecentRate:     recent,
				FailureReasons: reasons,
			},
		}
		metric.mu.RUnlock()
	}

	for path, metric := range m.outcomes {
		metric.mu.RLock()
		outcomes := make(map[string]int64, len(metric.Outcomes))
		for k, v := range metric.Outcomes {
			outcomes[k] = v
		}
		snapshots[path] = &MetricSnapshot{
			Path: path,
			Type: TypeOutcome,
			Data: OutcomeSnapshot{
				Outcomes:    outcomes,
				Total:       metric.Total,
				LastOutcome: metric.LastOutcome,
			},
		}
		metric.mu.RUnlock()
	}

	return snapshots
}

// Paths returns every metric path in sorted order
func (m *Manager) Paths() []string {
	snap := m.GetSnapshot()
	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// calculatePercentile calculates the Nth percentile from samples
func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := (len(sorted) * percentile) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx]) / float64(time.Millisecond)
}

// getTimingHealth grades average latency of a page round trip
func getTimingHealth(avgMs float64) HealthStatus {
	if avgMs > 2000 {
		return HealthCritical
	}
	if avgMs > 500 {
		return HealthWarning
	}
	return HealthGood
}

func getRateHealth(rate float64) HealthStatus {
	if rate < 75 {
		return HealthCritical
	}
	if rate < 90 {
		return HealthWarning
	}
	return HealthGood
}
