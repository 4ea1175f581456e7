// Package health reports endpoint availability and serves the router's HTTP
// surface: health probes, Prometheus metrics and the invoke API.
package health

import (
	"time"

	"github.com/vietddude/regionrouter/internal/infra/rpc"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// EndpointHealth describes one regional endpoint.
type EndpointHealth struct {
	Region          string           `json:"region"`
	Primary         bool             `json:"primary"`
	Status          SystemStatus     `json:"status"`
	Available       bool             `json:"available"`
	NextAvailableAt *time.Time       `json:"next_available_at,omitempty"`
	Stats           *rpc.RegionStats `json:"stats,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus      `json:"system_status"`
	Available    int               `json:"available"`
	Total        int               `json:"total"`
	Endpoints    []EndpointHealth  `json:"endpoints"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	CheckedAt    time.Time         `json:"checked_at"`
}
