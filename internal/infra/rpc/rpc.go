// Package rpc provides a region-aware inference client.
//
// This package offers resilient regional connectivity with:
//   - Primary / normal endpoint priority
//   - Round-robin or random distribution across primaries
//   - Cool-down windows for endpoints that fail retryably
//   - Bounded retries within and across regions
//   - Per-region monitoring
//
// # Quick Start
//
//	import "github.com/vietddude/regionrouter/internal/infra/rpc"
//
//	// Setup
//	registry, _ := rpc.NewRegistry(records)
//	invoker := rpc.NewHTTPInvoker(rpc.Options{
//	    API:              rpc.APIConverse,
//	    ModelID:          "anthropic.claude-3-haiku-20240307-v1:0",
//	    EndpointTemplate: "https://bedrock-runtime.{region}.amazonaws.com",
//	})
//
//	// Create client
//	client := rpc.NewClient(registry, invoker, rpc.DefaultConfig, nil)
//
//	// Make calls
//	outcome, err := client.Prompt(ctx, "Say Hello", "")
//	fmt.Println(outcome.Region, outcome.FailedRegions)
//
// # Package Structure
//
//   - endpoint/ - Registry, failure tracker, endpoint file loader, monitor
//   - routing/  - Ranking policy, rotation, error classification, dispatcher
//   - provider/ - HTTP and gRPC inference collaborators
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc/endpoint"
	"github.com/vietddude/regionrouter/internal/infra/rpc/provider"
	"github.com/vietddude/regionrouter/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from endpoint package
// =============================================================================

// Registry holds the known endpoints in load order.
type Registry = endpoint.Registry

// Monitor tracks per-region attempt outcomes.
type Monitor = endpoint.Monitor

// RegionStats holds monitoring statistics for one region.
type RegionStats = endpoint.RegionStats

// NewRegistry builds a registry from the endpoint list, preserving its order.
func NewRegistry(records []domain.EndpointRecord) (*Registry, error) {
	return endpoint.NewRegistry(records)
}

// NewMonitor creates a monitor reporting on the registry's endpoints.
func NewMonitor(registry *Registry) *Monitor {
	return endpoint.NewMonitor(registry)
}

// LoadEndpointFile reads a bedrock_endpoints.conf style JSON list.
var LoadEndpointFile = endpoint.LoadFile

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// Config is the immutable policy for one logical request.
type Config = routing.Config

// Distribution defines how primary endpoints are ordered across requests.
type Distribution = routing.Distribution

// Dispatcher executes logical requests against the registry's endpoints.
type Dispatcher = routing.Dispatcher

// Invoker performs one inference attempt against one regional endpoint.
type Invoker = routing.Invoker

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc = routing.InvokerFunc

// Observer receives attempt and outcome notifications.
type Observer = routing.Observer

// Observers fans notifications out to several observers.
type Observers = routing.Observers

// RoutingError is returned for every terminal failure of a logical request.
type RoutingError = routing.RoutingError

// Distribution constants
const (
	DistributionFixed      = routing.DistributionFixed
	DistributionRoundRobin = routing.DistributionRoundRobin
	DistributionRandom     = routing.DistributionRandom
)

// Sentinel errors
var (
	ErrExhausted     = routing.ErrExhausted
	ErrNonRetryable  = routing.ErrNonRetryable
	ErrCanceled      = routing.ErrCanceled
	ErrNoEndpoints   = routing.ErrNoEndpoints
	ErrInvalidConfig = routing.ErrInvalidConfig
)

// DefaultConfig is 5 total retries, 1 per region, multi-region on, 1h backoff.
var DefaultConfig = routing.DefaultConfig

// ClassifyError determines how the dispatcher reacts to a failed attempt.
var ClassifyError = routing.ClassifyError

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// API selects which inference operation an invoker performs.
type API = provider.API

// Options configure an invoker.
type Options = provider.Options

// Response is what a successful attempt returns.
type Response = provider.Response

// HTTPInvoker calls a regional REST endpoint.
type HTTPInvoker = provider.HTTPInvoker

// GRPCInvoker calls a regional gRPC gateway.
type GRPCInvoker = provider.GRPCInvoker

// API constants
const (
	APIConverse                      = provider.APIConverse
	APIConverseStream                = provider.APIConverseStream
	APIInvokeModel                   = provider.APIInvokeModel
	APIInvokeModelWithResponseStream = provider.APIInvokeModelWithResponseStream
)

// NewHTTPInvoker creates a new HTTP inference collaborator.
func NewHTTPInvoker(opts Options) *HTTPInvoker {
	return provider.NewHTTPInvoker(opts)
}

// NewGRPCInvoker creates a new gRPC inference collaborator.
func NewGRPCInvoker(opts Options) *GRPCInvoker {
	return provider.NewGRPCInvoker(opts)
}

// InferenceConfig holds the generation parameters used by prompt payloads.
type InferenceConfig = provider.InferenceConfig

// ParseAPI validates an API name from configuration.
var ParseAPI = provider.ParseAPI

// ParseDistribution validates a primary distribution name from configuration.
var ParseDistribution = routing.ParseDistribution
