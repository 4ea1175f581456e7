package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Defaults applied when the config file leaves a field empty.
const (
	DefaultPort                  = 8080
	DefaultMaxTotalRetries       = 5
	DefaultMaxRetriesPerRegion   = 1
	DefaultFailureBackoffSeconds = 3600
	DefaultPrimaryDistribution   = "round_robin"
	DefaultTransport             = "http"
	DefaultAPI                   = "converse"
	DefaultEndpointTemplate      = "https://bedrock-runtime.{region}.amazonaws.com"
	DefaultGRPCMethod            = "/inference.v1.Inference/Invoke"
	DefaultTimeout               = 5 * time.Second
	DefaultJournalBackend        = "memory"
	DefaultJournalLimit          = 1000
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	r := &cfg.Routing
	if r.MaxTotalRetries == 0 {
		r.MaxTotalRetries = DefaultMaxTotalRetries
	}
	if r.MaxRetriesPerRegion == 0 {
		r.MaxRetriesPerRegion = DefaultMaxRetriesPerRegion
	}
	if r.FailureBackoffSeconds == 0 {
		r.FailureBackoffSeconds = DefaultFailureBackoffSeconds
	}
	if r.PrimaryDistribution == "" {
		r.PrimaryDistribution = DefaultPrimaryDistribution
	}

	c := &cfg.Collaborator
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	if c.API == "" {
		c.API = DefaultAPI
	}
	if c.EndpointTemplate == "" {
		c.EndpointTemplate = DefaultEndpointTemplate
	}
	if c.GRPCMethod == "" {
		c.GRPCMethod = DefaultGRPCMethod
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("AWS_BEARER_TOKEN_BEDROCK")
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultTimeout
	}

	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = DefaultJournalBackend
	}
	if cfg.Journal.Limit == 0 {
		cfg.Journal.Limit = DefaultJournalLimit
	}
}
