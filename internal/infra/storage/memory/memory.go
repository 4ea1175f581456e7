package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/storage"
)

// MemoryStorage keeps the most recent outcomes and the endpoint state in
// process memory.
type MemoryStorage struct {
	mu sync.RWMutex

	limit    int
	order    []string // request ids, oldest first
	outcomes map[string]domain.OutcomeSummary
	attempts map[string][]domain.AttemptRecord

	endpoints []domain.EndpointRecord
}

// NewMemoryStorage creates a store holding at most limit outcomes.
func NewMemoryStorage(limit int) *MemoryStorage {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryStorage{
		limit:    limit,
		outcomes: make(map[string]domain.OutcomeSummary),
		attempts: make(map[string][]domain.AttemptRecord),
	}
}

// -----------------------------------------------------------------------------
// Journal Repository
// -----------------------------------------------------------------------------

type JournalRepo struct {
	store *MemoryStorage
}

func NewJournalRepo(store *MemoryStorage) *JournalRepo {
	return &JournalRepo{store: store}
}

func (r *JournalRepo) SaveOutcome(ctx context.Context, out *domain.Outcome) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.outcomes[out.RequestID]; !exists {
		r.store.order = append(r.store.order, out.RequestID)
	}
	r.store.outcomes[out.RequestID] = out.Summary()

	records := make([]domain.AttemptRecord, len(out.Attempts))
	for i, a := range out.Attempts {
		records[i] = a.Record()
	}
	r.store.attempts[out.RequestID] = records

	for len(r.store.order) > r.store.limit {
		oldest := r.store.order[0]
		r.store.order = r.store.order[1:]
		delete(r.store.outcomes, oldest)
		delete(r.store.attempts, oldest)
	}
	return nil
}

func (r *JournalRepo) RecentOutcomes(ctx context.Context, limit int) ([]domain.OutcomeSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if limit <= 0 || limit > len(r.store.order) {
		limit = len(r.store.order)
	}
	result := make([]domain.OutcomeSummary, 0, limit)
	for i := len(r.store.order) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.store.outcomes[r.store.order[i]])
	}
	return result, nil
}

func (r *JournalRepo) GetOutcome(ctx context.Context, requestID string) (*domain.OutcomeSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.outcomes[requestID]
	if !ok {
		return nil, storage.ErrOutcomeNotFound
	}
	return &s, nil
}

func (r *JournalRepo) GetAttempts(ctx context.Context, requestID string) ([]domain.AttemptRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if _, ok := r.store.outcomes[requestID]; !ok {
		return nil, storage.ErrOutcomeNotFound
	}
	return append([]domain.AttemptRecord(nil), r.store.attempts[requestID]...), nil
}

// Prune removes outcomes that finished before the cutoff.
func (r *JournalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.order[:0]
	var removed int64
	for _, id := range r.store.order {
		if r.store.outcomes[id].FinishedAt.Before(before) {
			delete(r.store.outcomes, id)
			delete(r.store.attempts, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.store.order = kept
	return removed, nil
}

// -----------------------------------------------------------------------------
// State Repository
// -----------------------------------------------------------------------------

type StateRepo struct {
	store *MemoryStorage
}

func NewStateRepo(store *MemoryStorage) *StateRepo {
	return &StateRepo{store: store}
}

func (r *StateRepo) Load(ctx context.Context) ([]domain.EndpointRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]domain.EndpointRecord(nil), r.store.endpoints...), nil
}

func (r *StateRepo) Save(ctx context.Context, records []domain.EndpointRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.endpoints = append([]domain.EndpointRecord(nil), records...)
	return nil
}
