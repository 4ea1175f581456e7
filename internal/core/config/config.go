package config

import (
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
	redisclient "github.com/vietddude/regionrouter/internal/infra/redis"
	"github.com/vietddude/regionrouter/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Routing      RoutingConfig      `yaml:"routing"`
	Collaborator CollaboratorConfig `yaml:"collaborator"`

	// EndpointsFile points at a bedrock_endpoints.conf style JSON list.
	// When empty, Endpoints is used instead.
	EndpointsFile string                  `yaml:"endpoints_file"`
	Endpoints     []domain.EndpointRecord `yaml:"endpoints"`

	State    StateConfig        `yaml:"state"`
	Journal  JournalConfig      `yaml:"journal"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RoutingConfig holds the retry and distribution policy.
type RoutingConfig struct {
	MaxTotalRetries       int    `yaml:"max_total_retries"`
	MultiRegionRetry      *bool  `yaml:"multi_region_retry"` // nil = default (true)
	MaxRetriesPerRegion   int    `yaml:"max_retries_per_region"`
	FailureBackoffSeconds int    `yaml:"failure_backoff_seconds"`
	PrimaryDistribution   string `yaml:"primary_distribution"` // fixed, round_robin, random
}

// MultiRegion reports the effective multi-region retry flag.
func (r RoutingConfig) MultiRegion() bool {
	return r.MultiRegionRetry == nil || *r.MultiRegionRetry
}

// FailureBackoff returns the cool-down duration.
func (r RoutingConfig) FailureBackoff() time.Duration {
	return time.Duration(r.FailureBackoffSeconds) * time.Second
}

// CollaboratorConfig describes how attempts reach a regional endpoint.
type CollaboratorConfig struct {
	Transport            string        `yaml:"transport"` // http, grpc
	API                  string        `yaml:"api"`       // converse, converse_stream, invoke_model, invoke_model_with_response_stream
	ModelID              string        `yaml:"model_id"`
	CrossRegionInference bool          `yaml:"cross_region_inference"`
	EndpointTemplate     string        `yaml:"endpoint_template"` // e.g. https://bedrock-runtime.{region}.amazonaws.com
	GRPCTarget           string        `yaml:"grpc_target"`       // e.g. {region}.inference.internal:443
	GRPCMethod           string        `yaml:"grpc_method"`
	APIKey               string        `yaml:"api_key"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
}

// StateConfig controls persistence of cool-down windows to the endpoint file.
type StateConfig struct {
	AutoUpdate bool `yaml:"auto_update"`
}

// JournalConfig selects where attempts and outcomes are recorded.
type JournalConfig struct {
	Backend string `yaml:"backend"` // memory, postgres, redis
	Limit   int    `yaml:"limit"`   // memory journal capacity

	// Retention prunes journaled outcomes older than this; 0 keeps them.
	Retention time.Duration `yaml:"retention"`
}
