// Package file persists the endpoint list, including cool-down deadlines, in
// the JSON endpoint file the registry was loaded from.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc/endpoint"
)

const lockRetryInterval = 10 * time.Millisecond

// StateRepo reads and writes the endpoint file under an advisory flock so
// concurrent router processes never observe a partial write.
type StateRepo struct {
	path string
}

func NewStateRepo(path string) *StateRepo {
	return &StateRepo{path: path}
}

// Path returns the endpoint file location.
func (r *StateRepo) Path() string {
	return r.path
}

// Load reads the file under a shared lock. A missing file yields no records.
func (r *StateRepo) Load(ctx context.Context) ([]domain.EndpointRecord, error) {
	f, err := os.Open(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open endpoint file: %w", err)
	}
	defer f.Close()

	if err := lock(ctx, f, unix.LOCK_SH); err != nil {
		return nil, err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	var records []domain.EndpointRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse endpoint file: %w", err)
	}
	return records, nil
}

// Save rewrites the file in place under an exclusive lock.
func (r *StateRepo) Save(ctx context.Context, records []domain.EndpointRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal endpoints: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create endpoint dir: %w", err)
		}
	}

	f, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open endpoint file: %w", err)
	}
	defer f.Close()

	if err := lock(ctx, f, unix.LOCK_EX); err != nil {
		return err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	// Truncate only after the lock is held.
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate endpoint file: %w", err)
	}
	if _, err := f.WriteAt(append(data, '\n'), 0); err != nil {
		return fmt.Errorf("failed to write endpoint file: %w", err)
	}
	return f.Sync()
}

// ResetCooldowns clears next_available_time for the given regions, or for
// every endpoint when none are given, and returns how many were cleared.
func (r *StateRepo) ResetCooldowns(ctx context.Context, regions ...string) (int, error) {
	records, err := r.Load(ctx)
	if err != nil {
		return 0, err
	}
	if records == nil {
		return 0, fmt.Errorf("endpoint file %s not found", r.path)
	}

	selected := make(map[string]bool, len(regions))
	for _, region := range regions {
		selected[region] = true
	}

	reset := 0
	matched := 0
	for i := range records {
		if len(selected) > 0 && !selected[records[i].Region] {
			continue
		}
		matched++
		if records[i].NextAvailableTime != 0 {
			records[i].NextAvailableTime = 0
			reset++
		}
	}
	if len(selected) > 0 && matched < len(selected) {
		return 0, fmt.Errorf("%w: %v", endpoint.ErrEndpointNotFound, regions)
	}
	if reset == 0 {
		return 0, nil
	}
	return reset, r.Save(ctx, records)
}

// LoadRegistry builds a registry from the file.
func LoadRegistry(ctx context.Context, path string) (*endpoint.Registry, error) {
	records, err := NewStateRepo(path).Load(ctx)
	if err != nil {
		return nil, err
	}
	return endpoint.NewRegistry(records)
}

// lock takes a non-blocking flock, retrying until ctx is done.
func lock(ctx context.Context, f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			return fmt.Errorf("failed to lock endpoint file: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to lock endpoint file: %w", ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}
