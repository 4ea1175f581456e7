package endpoint

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// Status represents the observed health of a regional endpoint.
type Status int

const (
	StatusHealthy  Status = iota // Recent attempts mostly succeed
	StatusDegraded               // Slow or failing often
	StatusCooling                // Inside its cool-down window
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusCooling:
		return "cooling"
	default:
		return "unknown"
	}
}

// RegionStats holds monitoring statistics for one region.
type RegionStats struct {
	Region          string        `json:"region"`
	Status          string        `json:"status"`
	Primary         bool          `json:"primary"`
	NextAvailableAt time.Time     `json:"next_available_at,omitempty"`
	Successes       int           `json:"successes"`
	Retryable       int           `json:"retryable_failures"`
	NonRetryable    int           `json:"non_retryable_failures"`
	Throttles       int           `json:"throttles"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error,omitempty"`
	LastAttemptAt   time.Time     `json:"last_attempt_at,omitempty"`
}

type regionWindow struct {
	latencies []time.Duration
	outcomes  []bool // true = success
	successes int
	retryable int
	nonRetry  int
	throttles int
	lastError string
	lastAt    time.Time
}

// Monitor tracks per-region attempt outcomes. It is advisory only and never
// influences routing decisions.
type Monitor struct {
	mu sync.RWMutex

	registry *Registry
	regions  map[string]*regionWindow

	maxWindow             int
	slowResponseThreshold time.Duration
	degradedThreshold     float64

	nowFunc func() time.Time
}

// NewMonitor creates a monitor reporting on the registry's endpoints.
func NewMonitor(registry *Registry) *Monitor {
	return &Monitor{
		registry:              registry,
		regions:               make(map[string]*regionWindow),
		maxWindow:             100,
		slowResponseThreshold: 10 * time.Second,
		degradedThreshold:     0.3, // 30% failure rate
		nowFunc:               time.Now,
	}
}

// ObserveAttempt records a single attempt result.
func (m *Monitor) ObserveAttempt(res domain.AttemptResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.regions[res.Region]
	if !ok {
		w = &regionWindow{}
		m.regions[res.Region] = w
	}

	w.latencies = append(w.latencies, res.Latency)
	if len(w.latencies) > m.maxWindow {
		w.latencies = w.latencies[1:]
	}
	w.outcomes = append(w.outcomes, res.Success)
	if len(w.outcomes) > m.maxWindow {
		w.outcomes = w.outcomes[1:]
	}

	w.lastAt = res.At
	switch {
	case res.Success:
		w.successes++
	case res.Class == domain.FailureNonRetryable:
		w.nonRetry++
		w.lastError = res.ErrorMessage()
	default:
		w.retryable++
		w.lastError = res.ErrorMessage()
		if isThrottle(res.Err) {
			w.throttles++
		}
	}
}

func isThrottle(err error) bool {
	var ie *domain.InvokeError
	if !errors.As(err, &ie) {
		return false
	}
	return ie.StatusCode == 429 || strings.Contains(ie.Code, "Throttling") || strings.Contains(ie.Code, "TooManyRequests")
}

// ObserveOutcome is a no-op; the monitor only cares about attempts.
func (m *Monitor) ObserveOutcome(*domain.Outcome) {}

// RegionStatus returns the current status of a region.
func (m *Monitor) RegionStatus(region string) Status {
	if m.registry != nil && !m.registry.IsAvailable(region, m.nowFunc()) {
		if _, ok := m.registry.Get(region); ok {
			return StatusCooling
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked(m.regions[region])
}

func (m *Monitor) statusLocked(w *regionWindow) Status {
	if w == nil || len(w.outcomes) == 0 {
		return StatusHealthy
	}

	failures := 0
	for _, ok := range w.outcomes {
		if !ok {
			failures++
		}
	}
	if float64(failures)/float64(len(w.outcomes)) > m.degradedThreshold {
		return StatusDegraded
	}

	if len(w.latencies) > 10 && averageLatency(w.latencies) > m.slowResponseThreshold {
		return StatusDegraded
	}

	return StatusHealthy
}

// Stats returns statistics for every registered region in load order,
// followed by any observed region that is not registered.
func (m *Monitor) Stats() []RegionStats {
	var endpoints []domain.Endpoint
	if m.registry != nil {
		endpoints = m.registry.AllEndpoints()
	}
	now := m.nowFunc()

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool, len(endpoints))
	result := make([]RegionStats, 0, len(endpoints))
	for _, e := range endpoints {
		seen[e.Region] = true
		s := m.statsLocked(e.Region)
		s.Primary = e.IsPrimary
		if !e.IsAvailable(now) {
			s.Status = StatusCooling.String()
			s.NextAvailableAt = e.NextAvailableAt
		}
		result = append(result, s)
	}

	var extra []string
	for region := range m.regions {
		if !seen[region] {
			extra = append(extra, region)
		}
	}
	sort.Strings(extra)
	for _, region := range extra {
		result = append(result, m.statsLocked(region))
	}

	return result
}

func (m *Monitor) statsLocked(region string) RegionStats {
	w := m.regions[region]
	s := RegionStats{
		Region: region,
		Status: m.statusLocked(w).String(),
	}
	if w == nil {
		return s
	}
	s.Successes = w.successes
	s.Retryable = w.retryable
	s.NonRetryable = w.nonRetry
	s.Throttles = w.throttles
	s.AverageLatency = averageLatency(w.latencies)
	s.LastError = w.lastError
	s.LastAttemptAt = w.lastAt
	return s
}

func averageLatency(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range latencies {
		total += lat
	}
	return total / time.Duration(len(latencies))
}
