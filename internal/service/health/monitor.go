package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc"
)

// EndpointSource lists the registry's endpoints.
type EndpointSource interface {
	AllEndpoints() []domain.Endpoint
}

// StatsSource provides per-region attempt statistics.
type StatsSource interface {
	Stats() []rpc.RegionStats
}

// Checker probes an external dependency such as the journal database.
type Checker func(ctx context.Context) error

// Monitor aggregates health status from the registry and its dependencies.
type Monitor struct {
	endpoints EndpointSource
	stats     StatsSource
	nowFunc   func() time.Time

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewMonitor creates a new health monitor. stats may be nil.
func NewMonitor(endpoints EndpointSource, stats StatsSource) *Monitor {
	return &Monitor{
		endpoints: endpoints,
		stats:     stats,
		nowFunc:   time.Now,
		checkers:  make(map[string]Checker),
	}
}

// AddChecker registers a dependency probe. A failing probe degrades the
// system status but never makes it critical.
func (m *Monitor) AddChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

// CheckHealth builds a report. The system is healthy when every endpoint is
// available, degraded when some are cooling down and critical when none are.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	now := m.nowFunc()

	var stats map[string]rpc.RegionStats
	if m.stats != nil {
		all := m.stats.Stats()
		stats = make(map[string]rpc.RegionStats, len(all))
		for _, s := range all {
			stats[s.Region] = s
		}
	}

	endpoints := m.endpoints.AllEndpoints()
	report := HealthReport{
		Total:     len(endpoints),
		Endpoints: make([]EndpointHealth, 0, len(endpoints)),
		CheckedAt: now,
	}

	for _, ep := range endpoints {
		h := EndpointHealth{
			Region:    ep.Region,
			Primary:   ep.IsPrimary,
			Status:    StatusHealthy,
			Available: ep.IsAvailable(now),
		}
		if !h.Available {
			at := ep.NextAvailableAt
			h.NextAvailableAt = &at
			h.Status = StatusCritical
		} else {
			report.Available++
		}
		if s, ok := stats[ep.Region]; ok {
			h.Stats = &s
			if h.Available && s.Status == "degraded" {
				h.Status = StatusDegraded
			}
		}
		report.Endpoints = append(report.Endpoints, h)
	}

	switch {
	case report.Available == 0:
		report.SystemStatus = StatusCritical
	case report.Available < report.Total:
		report.SystemStatus = StatusDegraded
	default:
		report.SystemStatus = StatusHealthy
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.checkers) > 0 {
		report.Dependencies = make(map[string]string, len(m.checkers))
		for name, check := range m.checkers {
			if err := check(ctx); err != nil {
				report.Dependencies[name] = err.Error()
				if report.SystemStatus == StatusHealthy {
					report.SystemStatus = StatusDegraded
				}
				continue
			}
			report.Dependencies[name] = "ok"
		}
	}

	return report
}
