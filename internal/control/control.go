// Package control wires the router's components into a runnable application.
package control

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/regionrouter/internal/core/config"
	"github.com/vietddude/regionrouter/internal/core/domain"
	redisclient "github.com/vietddude/regionrouter/internal/infra/redis"
	"github.com/vietddude/regionrouter/internal/infra/rpc"
	"github.com/vietddude/regionrouter/internal/infra/storage/postgres"
)

// Journal backends
const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"
	JournalRedis    = "redis"
)

// Config holds the application configuration.
type Config struct {
	Port int // <= 0 disables the HTTP server

	EndpointsFile string
	Endpoints     []domain.EndpointRecord
	AutoUpdate    bool // persist cool-downs back to EndpointsFile

	Routing   rpc.Config
	Transport string
	Invoker   rpc.Options

	// Override replaces the transport-built collaborator when set.
	Override rpc.Invoker

	Journal  config.JournalConfig
	Redis    redisclient.Config
	Database postgres.Config
}

// NewConfig translates the file configuration into the application config.
func NewConfig(cfg *config.AppConfig) (Config, error) {
	dist, err := rpc.ParseDistribution(cfg.Routing.PrimaryDistribution)
	if err != nil {
		return Config{}, err
	}
	api, err := rpc.ParseAPI(cfg.Collaborator.API)
	if err != nil {
		return Config{}, err
	}

	routing := rpc.Config{
		MaxTotalRetries:      cfg.Routing.MaxTotalRetries,
		MultiRegionRetry:     cfg.Routing.MultiRegion(),
		MaxRetriesPerRegion:  cfg.Routing.MaxRetriesPerRegion,
		FailureBackoff:       cfg.Routing.FailureBackoff(),
		PrimaryDistribution:  dist,
		CrossRegionInference: cfg.Collaborator.CrossRegionInference,
	}
	if err := routing.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.State.AutoUpdate && cfg.EndpointsFile == "" {
		return Config{}, fmt.Errorf("state.auto_update requires endpoints_file")
	}

	return Config{
		Port:          cfg.Server.Port,
		EndpointsFile: cfg.EndpointsFile,
		Endpoints:     cfg.Endpoints,
		AutoUpdate:    cfg.State.AutoUpdate,
		Routing:       routing,
		Transport:     cfg.Collaborator.Transport,
		Invoker: rpc.Options{
			API:              api,
			ModelID:          cfg.Collaborator.ModelID,
			EndpointTemplate: cfg.Collaborator.EndpointTemplate,
			Target:           cfg.Collaborator.GRPCTarget,
			Method:           cfg.Collaborator.GRPCMethod,
			APIKey:           cfg.Collaborator.APIKey,
			ReadTimeout:      cfg.Collaborator.ReadTimeout,
			ConnectTimeout:   cfg.Collaborator.ConnectTimeout,
			Logger:           slog.Default(),
		},
		Journal:  cfg.Journal,
		Redis:    cfg.Redis,
		Database: cfg.Database,
	}, nil
}
