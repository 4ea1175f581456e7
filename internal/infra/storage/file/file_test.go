package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc/endpoint"
)

func TestStateRepo_MissingFile(t *testing.T) {
	repo := NewStateRepo(filepath.Join(t.TempDir(), "endpoints.json"))

	records, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records != nil {
		t.Errorf("expected no records, got %+v", records)
	}
}

func TestStateRepo_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "conf", "endpoints.json")
	repo := NewStateRepo(path)

	records := []domain.EndpointRecord{
		{Region: "us-east-1", Primary: true, ProfilePrefix: "us", NextAvailableTime: 1700000000},
		{Region: "eu-west-1", ProfilePrefix: "eu"},
	}
	if err := repo.Save(ctx, records); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// A shorter rewrite must not leave trailing bytes from the first one.
	if err := repo.Save(ctx, records[:1]); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 1 || got[0] != records[0] {
		t.Errorf("unexpected records %+v", got)
	}

	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), `"next_available_time": 1700000000`) {
		t.Errorf("file does not use the endpoint file format:\n%s", raw)
	}
}

func TestStateRepo_ResetCooldowns(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepo(filepath.Join(t.TempDir(), "endpoints.json"))

	_ = repo.Save(ctx, []domain.EndpointRecord{
		{Region: "a", NextAvailableTime: 10},
		{Region: "b"},
		{Region: "c", NextAvailableTime: 20},
	})

	n, err := repo.ResetCooldowns(ctx)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 resets, got %d", n)
	}

	got, _ := repo.Load(ctx)
	for _, r := range got {
		if r.NextAvailableTime != 0 {
			t.Errorf("region %s still cooling down", r.Region)
		}
	}
}

func TestStateRepo_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "endpoints.json")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo := NewStateRepo(path)
			_ = repo.Save(ctx, []domain.EndpointRecord{
				{Region: "us-east-1", NextAvailableTime: int64(i)},
				{Region: "us-west-2"},
			})
		}(i)
	}
	wg.Wait()

	reg, err := LoadRegistry(ctx, path)
	if err != nil {
		t.Fatalf("file corrupted by concurrent writes: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 endpoints, got %d", reg.Len())
	}
}

func TestStateRepo_ResetSingleRegion(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepo(filepath.Join(t.TempDir(), "endpoints.json"))

	_ = repo.Save(ctx, []domain.EndpointRecord{
		{Region: "a", NextAvailableTime: 10},
		{Region: "b", NextAvailableTime: 20},
	})

	if n, err := repo.ResetCooldowns(ctx, "b"); err != nil || n != 1 {
		t.Fatalf("expected 1 reset, got %d (%v)", n, err)
	}
	got, _ := repo.Load(ctx)
	if got[0].NextAvailableTime != 10 || got[1].NextAvailableTime != 0 {
		t.Errorf("unexpected records %+v", got)
	}

	if _, err := repo.ResetCooldowns(ctx, "missing"); !errors.Is(err, endpoint.ErrEndpointNotFound) {
		t.Errorf("expected ErrEndpointNotFound, got %v", err)
	}
}
