package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/regionrouter/internal/core/worker"
	redisclient "github.com/vietddude/regionrouter/internal/infra/redis"
	"github.com/vietddude/regionrouter/internal/infra/rpc"
	"github.com/vietddude/regionrouter/internal/infra/storage"
	"github.com/vietddude/regionrouter/internal/infra/storage/file"
	"github.com/vietddude/regionrouter/internal/infra/storage/memory"
	"github.com/vietddude/regionrouter/internal/infra/storage/postgres"
	"github.com/vietddude/regionrouter/internal/service/health"
	"github.com/vietddude/regionrouter/internal/service/metrics"
)

// App owns the registry, the dispatcher and everything that observes it.
type App struct {
	cfg Config

	registry *rpc.Registry
	invoker  rpc.Invoker
	client   *rpc.Client

	state         storage.StateRepository
	journal       storage.JournalRepository
	journalWriter *storage.JournalWriter
	persister     *statePersister
	pruner        *worker.Pruner
	metrics       *metrics.Observer

	healthMon    *health.Monitor
	healthServer *health.Server

	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(ctx context.Context, cfg Config) (*App, error) {
	app := &App{cfg: cfg, log: slog.Default()}

	// 1. Endpoints
	records := cfg.Endpoints
	if cfg.EndpointsFile != "" {
		repo := file.NewStateRepo(cfg.EndpointsFile)
		loaded, err := repo.Load(ctx)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, fmt.Errorf("endpoint file %s not found", cfg.EndpointsFile)
		}
		records = loaded
		if cfg.AutoUpdate {
			app.state = repo
		}
	}

	registry, err := rpc.NewRegistry(records)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	app.registry = registry
	app.log.Info("Loaded endpoints", "count", registry.Len(), "source", endpointSource(cfg))

	// 2. Collaborator
	app.invoker = cfg.Override
	if app.invoker == nil {
		inv, err := rpc.NewInvoker(cfg.Transport, cfg.Invoker)
		if err != nil {
			return nil, fmt.Errorf("failed to create invoker: %w", err)
		}
		app.invoker = inv
	}

	app.client = rpc.NewClient(registry, app.invoker, cfg.Routing, app.log)

	// 3. Journal
	if err := app.initJournal(ctx); err != nil {
		app.closeResources()
		return nil, err
	}

	// 4. Observers
	app.metrics = metrics.NewObserver(registry)
	app.client.AddObserver(app.metrics)
	app.client.AddObserver(app.journalWriter)
	if app.state != nil {
		app.persister = newStatePersister(registry, app.state, app.log)
		app.client.AddObserver(app.persister)
	}

	// 5. Health
	app.healthMon = health.NewMonitor(registry, app.client.Monitor())
	if app.db != nil {
		app.healthMon.AddChecker("postgres", app.db.Health)
	}
	if app.redisClient != nil {
		app.healthMon.AddChecker("redis", app.redisClient.Health)
	}
	if cfg.Port > 0 {
		app.healthServer = health.NewServer(app.healthMon, app.client, app.journal, cfg.Port, app.log)
		app.healthServer.SetAdmin(app)
	}

	return app, nil
}

func (a *App) initJournal(ctx context.Context) error {
	switch a.cfg.Journal.Backend {
	case "", JournalMemory:
		a.journal = memory.NewJournalRepo(memory.NewMemoryStorage(a.cfg.Journal.Limit))
		a.log.Info("Using memory journal", "limit", a.cfg.Journal.Limit)

	case JournalPostgres:
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate db: %w", err)
		}
		a.journal = postgres.NewJournalRepo(db)
		a.log.Info("Using PostgreSQL journal")

	case JournalRedis:
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		a.journal = redisclient.NewJournalRepo(client, a.cfg.Journal.Retention)
		a.log.Info("Using Redis journal")

	default:
		return fmt.Errorf("unknown journal backend %q", a.cfg.Journal.Backend)
	}

	a.journalWriter = storage.NewJournalWriter(a.journal, 0, a.log)
	if p, ok := a.journal.(worker.JournalPruner); ok && a.cfg.Journal.Retention > 0 {
		a.pruner = worker.NewPruner(a.cfg.Journal.Retention, p, a.log)
	}
	return nil
}

// Start launches the background workers and, when configured, the HTTP server.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.journalWriter.Start(ctx)
	}()

	if a.persister != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.persister.Start(ctx)
		}()
	}

	if a.pruner != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.pruner.Start(ctx)
		}()
	}

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	if a.healthServer != nil {
		go func() {
			if err := a.healthServer.Start(); err != nil {
				a.log.Error("Health server failed", "error", err)
			}
		}()
		a.log.Info("HTTP server listening", "port", a.cfg.Port)
	}

	a.metrics.RefreshCooling()
	return nil
}

// Stop shuts the server down, flushes the journal and persists the registry.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping router...")

	var errs []error
	if a.healthServer != nil {
		if err := a.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
		}
	}

	if a.cancel != nil {
		a.cancel()
		a.wg.Wait()
	}

	if written, dropped := a.journalWriter.Stats(); dropped > 0 {
		a.log.Warn("Journal dropped outcomes", "written", written, "dropped", dropped)
	}

	if a.state != nil {
		if err := a.state.Save(ctx, a.registry.Records()); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist endpoints: %w", err))
		}
	}

	a.closeResources()
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	if c, ok := a.invoker.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.log.Warn("Failed to close invoker", "error", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

// Client returns the routing client.
func (a *App) Client() *rpc.Client {
	return a.client
}

// Registry returns the endpoint registry.
func (a *App) Registry() *rpc.Registry {
	return a.registry
}

// Journal returns the configured journal.
func (a *App) Journal() storage.JournalRepository {
	return a.journal
}

// Health returns the health monitor.
func (a *App) Health() *health.Monitor {
	return a.healthMon
}

// ResetCooldowns makes every endpoint available again and persists the
// registry when state auto-update is on. It returns how many endpoints were
// cooling down.
func (a *App) ResetCooldowns(ctx context.Context) (int, error) {
	now := time.Now()
	cooling := 0
	for _, ep := range a.registry.AllEndpoints() {
		if !ep.IsAvailable(now) {
			cooling++
		}
	}

	a.registry.Reset()
	a.metrics.RefreshCooling()
	a.log.Info("Reset endpoint cool-downs", "cooling", cooling)

	if a.state != nil {
		if err := a.state.Save(ctx, a.registry.Records()); err != nil {
			return cooling, fmt.Errorf("failed to persist endpoints: %w", err)
		}
	}
	return cooling, nil
}

// ReloadState re-reads cool-downs from the endpoint file, picking up edits
// made while the router is running.
func (a *App) ReloadState(ctx context.Context) (int, error) {
	if a.cfg.EndpointsFile == "" {
		return 0, fmt.Errorf("no endpoints_file configured")
	}

	records, err := file.NewStateRepo(a.cfg.EndpointsFile).Load(ctx)
	if err != nil {
		return 0, err
	}

	restored := a.registry.Restore(records)
	a.metrics.RefreshCooling()
	a.log.Info("Reloaded endpoint state", "file", a.cfg.EndpointsFile, "restored", restored)
	return restored, nil
}

func endpointSource(cfg Config) string {
	if cfg.EndpointsFile != "" {
		return cfg.EndpointsFile
	}
	return "config"
}
