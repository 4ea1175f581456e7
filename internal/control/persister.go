package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc"
	"github.com/vietddude/regionrouter/internal/infra/storage"
)

const persistTimeout = 5 * time.Second

// statePersister writes the registry back to the endpoint file whenever a
// request put a region into cool-down. Requests only raise a signal; the
// write happens in Start, and bursts of failures collapse into one save.
type statePersister struct {
	registry *rpc.Registry
	repo     storage.StateRepository
	log      *slog.Logger

	dirty chan struct{}
}

func newStatePersister(registry *rpc.Registry, repo storage.StateRepository, logger *slog.Logger) *statePersister {
	return &statePersister{
		registry: registry,
		repo:     repo,
		log:      logger,
		dirty:    make(chan struct{}, 1),
	}
}

func (p *statePersister) ObserveAttempt(domain.AttemptResult) {}

func (p *statePersister) ObserveOutcome(out *domain.Outcome) {
	if len(out.FailedRegions) == 0 {
		return
	}
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Start saves the registry each time it is marked dirty, until ctx is done.
// The final save on shutdown belongs to App.Stop.
func (p *statePersister) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.dirty:
			p.save(ctx)
		}
	}
}

func (p *statePersister) save(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	if err := p.repo.Save(ctx, p.registry.Records()); err != nil {
		p.log.Error("Failed to persist endpoint state", "error", err)
	}
}
