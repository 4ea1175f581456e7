package worker

import (
	"context"
	"log/slog"
	"time"
)

// JournalPruner deletes journaled outcomes finished before a cutoff.
type JournalPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Pruner deletes old journal entries based on a retention period.
type Pruner struct {
	retention time.Duration
	journal   JournalPruner
	logger    *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, journal JournalPruner, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		retention: retention,
		journal:   journal,
		logger:    logger,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// 10% of the retention period, clamped to [1m, 1h]
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := time.Now().Add(-p.retention)

	n, err := p.journal.Prune(ctx, threshold)
	if err != nil {
		p.logger.Error("Failed to prune journal", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("Pruned journal", "removed", n, "before", threshold.Format(time.RFC3339))
	}
}
