package storage

import (
	"context"
	"errors"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

var (
	// ErrOutcomeNotFound is returned when a request id has no journaled outcome.
	ErrOutcomeNotFound = errors.New("outcome not found")
)

// JournalRepository records finished logical requests.
type JournalRepository interface {
	// SaveOutcome stores the outcome summary together with its attempts
	SaveOutcome(ctx context.Context, out *domain.Outcome) error

	// RecentOutcomes returns up to limit outcomes, newest first
	RecentOutcomes(ctx context.Context, limit int) ([]domain.OutcomeSummary, error)

	// GetOutcome returns a single outcome summary
	GetOutcome(ctx context.Context, requestID string) (*domain.OutcomeSummary, error)

	// GetAttempts returns the attempts of one request in order
	GetAttempts(ctx context.Context, requestID string) ([]domain.AttemptRecord, error)
}

// StateRepository persists endpoint cool-down state between runs.
type StateRepository interface {
	// Load returns the persisted endpoint records, in load order
	Load(ctx context.Context) ([]domain.EndpointRecord, error)

	// Save replaces the persisted endpoint records
	Save(ctx context.Context, records []domain.EndpointRecord) error
}
