package domain

import "time"

// Endpoint is one regional API target known to the registry.
type Endpoint struct {
	Region        string `json:"region"`
	IsPrimary     bool   `json:"primary"`
	ProfilePrefix string `json:"region_profile_prefix"`

	// NextAvailableAt is the earliest time the endpoint may be selected.
	// The zero value means always available.
	NextAvailableAt time.Time `json:"next_available_at"`
}

// IsAvailable reports whether the endpoint is outside its cool-down window at now.
func (e Endpoint) IsAvailable(now time.Time) bool {
	return !now.Before(e.NextAvailableAt)
}

// EndpointRecord is the on-disk shape of an endpoint entry
// (bedrock_endpoints.conf). Order in the list is the canonical load order.
type EndpointRecord struct {
	Region            string `json:"region"                yaml:"region"`
	Primary           bool   `json:"primary"               yaml:"primary"`
	ProfilePrefix     string `json:"region_profile_prefix" yaml:"region_profile_prefix"`
	NextAvailableTime int64  `json:"next_available_time"   yaml:"next_available_time"` // unix seconds, 0 = available
}

// ToEndpoint converts the record into a runtime endpoint.
func (r EndpointRecord) ToEndpoint() Endpoint {
	e := Endpoint{
		Region:        r.Region,
		IsPrimary:     r.Primary,
		ProfilePrefix: r.ProfilePrefix,
	}
	if r.NextAvailableTime > 0 {
		e.NextAvailableAt = time.Unix(r.NextAvailableTime, 0)
	}
	return e
}

// Record converts the endpoint back into its on-disk shape.
func (e Endpoint) Record() EndpointRecord {
	r := EndpointRecord{
		Region:        e.Region,
		Primary:       e.IsPrimary,
		ProfilePrefix: e.ProfilePrefix,
	}
	if !e.NextAvailableAt.IsZero() {
		// Round up so a restored cool-down never ends early.
		r.NextAvailableTime = e.NextAvailableAt.Unix()
		if e.NextAvailableAt.Nanosecond() > 0 {
			r.NextAvailableTime++
		}
	}
	return r
}

// Invocation is everything the inference collaborator needs for one attempt.
// Payload is opaque to the router.
type Invocation struct {
	RequestID            string
	Region               string
	ProfilePrefix        string
	CrossRegionInference bool
	Payload              any
}
