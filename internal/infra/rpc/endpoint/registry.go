// Package endpoint owns the set of regional endpoints and their cool-down state.
//
// This package contains:
//   - Registry: load-ordered endpoints with mutex-guarded availability windows
//   - RecordFailure: the failure tracker that pushes an endpoint into cool-down
//   - Monitor: per-region attempt statistics for operators
//   - LoadFile/ParseRecords: the bedrock_endpoints.conf reader
package endpoint

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

var (
	// ErrEndpointNotFound is returned when a region is not registered.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrDuplicateRegion is returned when the endpoint list repeats a region.
	ErrDuplicateRegion = errors.New("duplicate region")
)

// Registry holds the known endpoints in load order.
// It has no knowledge of retry counts or ordering policy.
type Registry struct {
	mu        sync.RWMutex
	endpoints []domain.Endpoint
	index     map[string]int // region -> position in endpoints
}

// NewRegistry builds a registry from the endpoint list, preserving its order.
func NewRegistry(records []domain.EndpointRecord) (*Registry, error) {
	r := &Registry{
		endpoints: make([]domain.Endpoint, 0, len(records)),
		index:     make(map[string]int, len(records)),
	}

	for i, rec := range records {
		if rec.Region == "" {
			return nil, fmt.Errorf("endpoint %d: region is empty", i)
		}
		if _, ok := r.index[rec.Region]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRegion, rec.Region)
		}
		r.index[rec.Region] = len(r.endpoints)
		r.endpoints = append(r.endpoints, rec.ToEndpoint())
	}

	return r, nil
}

// AllEndpoints returns a copy of the endpoints in load order.
func (r *Registry) AllEndpoints() []domain.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Endpoint, len(r.endpoints))
	copy(result, r.endpoints)
	return result
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Get returns the endpoint registered for region.
func (r *Registry) Get(region string) (domain.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[region]
	if !ok {
		return domain.Endpoint{}, false
	}
	return r.endpoints[i], true
}

// MarkUnavailableUntil sets the endpoint's next available time.
// Repeated calls are idempotent and the last write wins.
func (r *Registry) MarkUnavailableUntil(region string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[region]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEndpointNotFound, region)
	}
	r.endpoints[i].NextAvailableAt = t
	return nil
}

// IsAvailable reports whether region may be selected at now.
// Unknown regions are never available.
func (r *Registry) IsAvailable(region string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[region]
	if !ok {
		return false
	}
	return r.endpoints[i].IsAvailable(now)
}

// Reset clears the cool-down of every endpoint.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.endpoints {
		r.endpoints[i].NextAvailableAt = time.Time{}
	}
}

// Records returns the registry snapshot in its on-disk shape.
func (r *Registry) Records() []domain.EndpointRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.EndpointRecord, len(r.endpoints))
	for i, e := range r.endpoints {
		records[i] = e.Record()
	}
	return records
}

// Restore applies persisted next-available times to known regions.
// Regions that are no longer configured are ignored.
func (r *Registry) Restore(records []domain.EndpointRecord) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	restored := 0
	for _, rec := range records {
		i, ok := r.index[rec.Region]
		if !ok {
			continue
		}
		r.endpoints[i].NextAvailableAt = rec.ToEndpoint().NextAvailableAt
		restored++
	}
	return restored
}
