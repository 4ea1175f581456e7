// Package routing decides which regional endpoint a logical request tries
// next and drives the retry loop across them.
//
// This package contains:
//   - Policy: ranks available endpoints (primaries first, then normals)
//   - Rotator: round-robin cursor and random source for primaries
//   - ClassifyError: maps collaborator errors to retryable / non-retryable
//   - Dispatcher: executes one logical request to success or exhaustion
package routing

import (
	"errors"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// ErrNoEndpoints is returned when the registry holds no endpoints at all.
var ErrNoEndpoints = errors.New("no endpoints registered")

// EndpointSource is the read side of the endpoint registry.
type EndpointSource interface {
	AllEndpoints() []domain.Endpoint
}

// Policy produces the ranked candidate list for one logical request.
type Policy struct {
	source  EndpointSource
	rotator *Rotator
}

// NewPolicy creates a policy over the given endpoint source.
func NewPolicy(source EndpointSource) *Policy {
	return &Policy{
		source:  source,
		rotator: NewRotator(),
	}
}

// Rotator exposes the policy's distribution state.
func (p *Policy) Rotator() *Rotator {
	return p.rotator
}

// Rank returns the deduplicated endpoints to try, in order, at time now.
// Endpoints in cool-down are excluded. When every endpoint is cooling down,
// the single endpoint that becomes available soonest is returned.
func (p *Policy) Rank(dist Distribution, now time.Time) ([]domain.Endpoint, error) {
	all := p.source.AllEndpoints()
	if len(all) == 0 {
		return nil, ErrNoEndpoints
	}

	var primaries, normals []domain.Endpoint
	for _, e := range all {
		if e.IsPrimary {
			primaries = append(primaries, e)
		} else {
			normals = append(normals, e)
		}
	}

	ranked := make([]domain.Endpoint, 0, len(all))
	ranked = append(ranked, p.orderPrimaries(dist, primaries, now)...)
	ranked = append(ranked, filterAvailable(normals, now)...)

	if len(ranked) == 0 {
		return []domain.Endpoint{soonestAvailable(all)}, nil
	}
	return ranked, nil
}

func (p *Policy) orderPrimaries(dist Distribution, primaries []domain.Endpoint, now time.Time) []domain.Endpoint {
	if len(primaries) == 0 {
		return nil
	}

	switch dist {
	case DistributionRoundRobin:
		// The rotation is over the full primary list so that the cursor
		// keeps its meaning while some primaries are cooling down.
		start := p.rotator.Next(len(primaries))
		rotated := make([]domain.Endpoint, 0, len(primaries))
		rotated = append(rotated, primaries[start:]...)
		rotated = append(rotated, primaries[:start]...)
		return filterAvailable(rotated, now)

	case DistributionRandom:
		available := filterAvailable(primaries, now)
		if len(available) < 2 {
			return available
		}
		pick := p.rotator.Random(len(available))
		ordered := make([]domain.Endpoint, 0, len(available))
		ordered = append(ordered, available[pick])
		ordered = append(ordered, available[:pick]...)
		ordered = append(ordered, available[pick+1:]...)
		return ordered

	default:
		return filterAvailable(primaries, now)
	}
}

func filterAvailable(endpoints []domain.Endpoint, now time.Time) []domain.Endpoint {
	result := make([]domain.Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if e.IsAvailable(now) {
			result = append(result, e)
		}
	}
	return result
}

// soonestAvailable picks the minimum NextAvailableAt; ties keep load order.
func soonestAvailable(all []domain.Endpoint) domain.Endpoint {
	best := all[0]
	for _, e := range all[1:] {
		if e.NextAvailableAt.Before(best.NextAvailableAt) {
			best = e
		}
	}
	return best
}
