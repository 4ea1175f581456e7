package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vietddude/regionrouter/internal/core/config"
	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc"
	"github.com/vietddude/regionrouter/internal/infra/storage/file"
)

func throttleRegion(region string) rpc.Invoker {
	return rpc.InvokerFunc(func(_ context.Context, inv domain.Invocation) (any, error) {
		if inv.Region == region {
			return nil, &domain.InvokeError{Region: inv.Region, StatusCode: 429, Code: "ThrottlingException"}
		}
		return &rpc.Response{Region: inv.Region, API: rpc.APIConverse, Body: []byte(`{}`)}, nil
	})
}

func testConfig() Config {
	return Config{
		Endpoints: []domain.EndpointRecord{
			{Region: "us-east-1", Primary: true},
			{Region: "us-west-2"},
		},
		Routing:  rpc.DefaultConfig,
		Override: throttleRegion("us-east-1"),
		Journal:  config.JournalConfig{Backend: JournalMemory, Limit: 10},
	}
}

func TestNewConfig_FromAppConfig(t *testing.T) {
	appCfg, err := config.Parse([]byte(`
routing:
  max_total_retries: 3
  primary_distribution: fixed
collaborator:
  api: converse_stream
  model_id: anthropic.claude-3-haiku-20240307-v1:0
  cross_region_inference: true
endpoints:
  - region: us-east-1
    primary: true
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := NewConfig(appCfg)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Routing.MaxTotalRetries != 3 || cfg.Routing.PrimaryDistribution != rpc.DistributionFixed {
		t.Errorf("unexpected routing %+v", cfg.Routing)
	}
	if !cfg.Routing.CrossRegionInference || !cfg.Routing.MultiRegionRetry {
		t.Errorf("expected cross-region inference and multi-region retry on, got %+v", cfg.Routing)
	}
	if cfg.Invoker.API != rpc.APIConverseStream {
		t.Errorf("expected converse_stream, got %s", cfg.Invoker.API)
	}
}

func TestNewConfig_Rejects(t *testing.T) {
	tests := map[string]string{
		"bad distribution":         "routing:\n  primary_distribution: weighted\n",
		"bad api":                  "collaborator:\n  api: chat\n",
		"per-region > total":       "routing:\n  max_total_retries: 2\n  max_retries_per_region: 3\n",
		"auto update without file": "state:\n  auto_update: true\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			appCfg, err := config.Parse([]byte(doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if _, err := NewConfig(appCfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApp_InvokeAndJournal(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig())
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, err := app.Client().Call(ctx, map[string]string{"prompt": "hi"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.Region != "us-west-2" || len(out.FailedRegions) != 1 {
		t.Errorf("unexpected outcome region=%s failed=%v", out.Region, out.FailedRegions)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	summary, err := app.Journal().GetOutcome(ctx, out.RequestID)
	if err != nil {
		t.Fatalf("journal lookup: %v", err)
	}
	if summary.Kind != domain.OutcomeSuccess || summary.AttemptCount != 2 {
		t.Errorf("unexpected journal entry %+v", summary)
	}

	report := app.Health().CheckHealth(ctx)
	if report.SystemStatus != "degraded" {
		t.Errorf("expected degraded with us-east-1 cooling, got %s", report.SystemStatus)
	}
}

func TestApp_PersistsCooldowns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "endpoints.json")

	repo := file.NewStateRepo(path)
	if err := repo.Save(ctx, []domain.EndpointRecord{
		{Region: "us-east-1", Primary: true},
		{Region: "us-west-2"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := testConfig()
	cfg.Endpoints = nil
	cfg.EndpointsFile = path
	cfg.AutoUpdate = true

	app, err := NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	_ = app.Start(ctx)

	before := time.Now()
	if _, err := app.Client().Call(ctx, nil); err != nil {
		t.Fatalf("call: %v", err)
	}

	records := waitForRecords(t, repo, func(records []domain.EndpointRecord) bool {
		return records[0].NextAvailableTime >= before.Add(time.Hour).Unix()
	})
	if records[1].NextAvailableTime != 0 {
		t.Errorf("us-west-2 should stay available, got %+v", records[1])
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// A fresh app restores the cool-down from the file.
	restarted, err := NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.Registry().IsAvailable("us-east-1", time.Now()) {
		t.Error("expected us-east-1 to still be cooling down after restart")
	}
}

func waitForRecords(t *testing.T, repo *file.StateRepo, cond func([]domain.EndpointRecord) bool) []domain.EndpointRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		records, err := repo.Load(context.Background())
		if err == nil && len(records) > 0 && cond(records) {
			return records
		}
		if time.Now().After(deadline) {
			t.Fatalf("endpoint file never reached expected state, last %+v (%v)", records, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApp_CallDoesNotWaitOnLockedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "endpoints.json")
	repo := file.NewStateRepo(path)
	if err := repo.Save(ctx, []domain.EndpointRecord{
		{Region: "us-east-1", Primary: true},
		{Region: "us-west-2"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := testConfig()
	cfg.Endpoints = nil
	cfg.EndpointsFile = path
	cfg.AutoUpdate = true

	app, err := NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	_ = app.Start(ctx)

	// Another process holds the file.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		t.Fatalf("flock: %v", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := app.Client().Call(callCtx, nil)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("call: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call blocked on the endpoint file lock")
	}

	// Once released, the cool-down still reaches the file.
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
	waitForRecords(t, repo, func(records []domain.EndpointRecord) bool {
		return records[0].NextAvailableTime > 0
	})

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApp_UnknownJournalBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Journal.Backend = "sqlite"

	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown journal backend")
	}
}

func TestApp_ResetAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "endpoints.json")
	repo := file.NewStateRepo(path)
	_ = repo.Save(ctx, []domain.EndpointRecord{
		{Region: "us-east-1", Primary: true},
		{Region: "us-west-2"},
	})

	cfg := testConfig()
	cfg.Endpoints = nil
	cfg.EndpointsFile = path
	cfg.AutoUpdate = true

	app, err := NewApp(ctx, cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	// An operator edits the file while the router runs.
	until := time.Now().Add(time.Hour).Unix()
	_ = repo.Save(ctx, []domain.EndpointRecord{
		{Region: "us-east-1", Primary: true},
		{Region: "us-west-2", NextAvailableTime: until},
	})
	if _, err := app.ReloadState(ctx); err != nil {
		t.Fatalf("ReloadState: %v", err)
	}
	if app.Registry().IsAvailable("us-west-2", time.Now()) {
		t.Fatal("expected us-west-2 cooling after reload")
	}

	n, err := app.ResetCooldowns(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reset, got %d (%v)", n, err)
	}
	records, _ := repo.Load(ctx)
	if records[1].NextAvailableTime != 0 {
		t.Errorf("expected reset persisted, got %+v", records[1])
	}
}
