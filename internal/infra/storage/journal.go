package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/service/metrics"
)

const defaultJournalBuffer = 256

// JournalWriter persists outcomes off the request path. It satisfies the
// dispatcher's observer interface; outcomes are dropped, not blocked on,
// when the buffer is full.
type JournalWriter struct {
	repo JournalRepository
	log  *slog.Logger

	queue chan *domain.Outcome

	mu      sync.Mutex
	dropped int
	written int

	done chan struct{}
}

// NewJournalWriter creates a writer with the given buffer size.
func NewJournalWriter(repo JournalRepository, buffer int, logger *slog.Logger) *JournalWriter {
	if buffer <= 0 {
		buffer = defaultJournalBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalWriter{
		repo:  repo,
		log:   logger,
		queue: make(chan *domain.Outcome, buffer),
		done:  make(chan struct{}),
	}
}

// ObserveAttempt is a no-op; attempts are written with their outcome.
func (w *JournalWriter) ObserveAttempt(domain.AttemptResult) {}

// ObserveOutcome enqueues the outcome for writing.
func (w *JournalWriter) ObserveOutcome(out *domain.Outcome) {
	select {
	case w.queue <- out:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		metrics.JournalDropped.Inc()
		w.log.Warn("Journal buffer full, dropping outcome", "request_id", out.RequestID)
	}
}

// Start drains the queue until ctx is cancelled, then flushes what is left.
func (w *JournalWriter) Start(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case out := <-w.queue:
			w.write(ctx, out)
		}
	}
}

// Wait blocks until Start has returned.
func (w *JournalWriter) Wait() {
	<-w.done
}

// Stats returns how many outcomes were written and dropped.
func (w *JournalWriter) Stats() (written, dropped int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.dropped
}

func (w *JournalWriter) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case out := <-w.queue:
			w.write(ctx, out)
		default:
			return
		}
	}
}

func (w *JournalWriter) write(ctx context.Context, out *domain.Outcome) {
	if err := w.repo.SaveOutcome(ctx, out); err != nil {
		w.log.Error("Failed to journal outcome", "request_id", out.RequestID, "error", err)
		return
	}
	w.mu.Lock()
	w.written++
	w.mu.Unlock()
}
