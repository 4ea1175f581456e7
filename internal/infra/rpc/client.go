package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc/provider"
	"github.com/vietddude/regionrouter/internal/infra/rpc/routing"
)

// Client is the high-level interface for making inference calls.
// This is what application layers should use.
type Client struct {
	registry   *Registry
	dispatcher *routing.Dispatcher
	monitor    *Monitor
	observers  Observers
	config     Config

	api       API
	inference provider.InferenceConfig
}

// NewClient creates a client that routes every call with cfg.
func NewClient(registry *Registry, invoker Invoker, cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		registry:   registry,
		dispatcher: routing.NewDispatcher(registry, invoker, logger),
		monitor:    NewMonitor(registry),
		config:     cfg,
		api:        APIConverse,
	}
	c.observers = Observers{c.monitor}
	c.dispatcher.SetObserver(c.observers)

	if a, ok := invoker.(interface{ API() API }); ok {
		c.api = a.API()
	}
	return c
}

// AddObserver attaches an extra observer next to the client's monitor.
// It must be called before the client serves requests.
func (c *Client) AddObserver(obs Observer) {
	c.observers = append(c.observers, obs)
	c.dispatcher.SetObserver(c.observers)
}

// SetInferenceConfig sets the parameters used by Prompt.
func (c *Client) SetInferenceConfig(cfg provider.InferenceConfig) {
	c.inference = cfg
}

// Config returns the client's routing policy.
func (c *Client) Config() Config {
	return c.config
}

// Call runs one logical request with the client's routing policy.
func (c *Client) Call(ctx context.Context, payload any) (*domain.Outcome, error) {
	return c.dispatcher.Execute(ctx, payload, c.config)
}

// CallWithConfig runs one logical request with an explicit policy.
func (c *Client) CallWithConfig(ctx context.Context, payload any, cfg Config) (*domain.Outcome, error) {
	return c.dispatcher.Execute(ctx, payload, cfg)
}

// Prompt sends a single-turn prompt shaped for the invoker's API.
func (c *Client) Prompt(ctx context.Context, prompt, system string) (*domain.Outcome, error) {
	return c.Call(ctx, provider.NewPromptPayload(c.api, prompt, system, c.inference))
}

// Registry returns the endpoint registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Monitor returns the per-region monitor.
func (c *Client) Monitor() *Monitor {
	return c.monitor
}

// GetRegionStats returns monitoring stats for all regions.
func (c *Client) GetRegionStats() []RegionStats {
	return c.monitor.Stats()
}

// PrintMonitorDashboard returns a formatted dashboard string.
func (c *Client) PrintMonitorDashboard() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\n=== Region Monitor Dashboard (API: %s) ===\n\n", c.api))

	for _, stats := range c.monitor.Stats() {
		statusStr := map[string]string{
			"healthy":  "✅ HEALTHY",
			"degraded": "⚠️  DEGRADED",
			"cooling":  "🔴 COOLING",
		}[stats.Status]

		kind := "normal"
		if stats.Primary {
			kind = "primary"
		}

		sb.WriteString(fmt.Sprintf("Region: %s (%s)\n", stats.Region, kind))
		sb.WriteString(fmt.Sprintf("  Status: %s\n", statusStr))
		if !stats.NextAvailableAt.IsZero() {
			sb.WriteString(fmt.Sprintf("  Available at: %s\n", stats.NextAvailableAt.Format("2006-01-02 15:04:05")))
		}
		sb.WriteString(fmt.Sprintf("  Avg Latency: %v\n", stats.AverageLatency))
		sb.WriteString(fmt.Sprintf("  Successes: %d\n", stats.Successes))
		sb.WriteString(fmt.Sprintf("  Retryable Errors: %d (throttled: %d)\n", stats.Retryable, stats.Throttles))
		sb.WriteString(fmt.Sprintf("  Non-retryable Errors: %d\n", stats.NonRetryable))
		if stats.LastError != "" {
			sb.WriteString(fmt.Sprintf("  Last Error: %s\n", stats.LastError))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// ContentOf extracts the text content of a successful outcome.
func ContentOf(out *domain.Outcome) string {
	if out == nil {
		return ""
	}
	resp, ok := out.Response.(*Response)
	if !ok {
		return ""
	}
	return provider.ExtractContent(resp)
}
