package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/storage"
)

// JournalRepo implements storage.JournalRepository using PostgreSQL.
type JournalRepo struct {
	db *DB
}

// NewJournalRepo creates a new PostgreSQL journal repository.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

type outcomeRow struct {
	domain.OutcomeSummary
	FailedRegions pq.StringArray `db:"failed_regions"`
}

// SaveOutcome writes the request row and its attempts in one transaction.
func (r *JournalRepo) SaveOutcome(ctx context.Context, out *domain.Outcome) error {
	s := out.Summary()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO routing_requests
			(request_id, kind, region, failed_regions, attempt_count, error_msg, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			region = EXCLUDED.region,
			failed_regions = EXCLUDED.failed_regions,
			attempt_count = EXCLUDED.attempt_count,
			error_msg = EXCLUDED.error_msg,
			finished_at = EXCLUDED.finished_at
	`,
		s.RequestID,
		string(s.Kind),
		s.Region,
		pq.Array(s.FailedRegions),
		s.AttemptCount,
		s.Error,
		s.StartedAt,
		s.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}

	for _, a := range out.Attempts {
		rec := a.Record()
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO routing_attempts
				(request_id, attempt, region, success, class, error_msg, latency_ms, attempted_at)
			VALUES (:request_id, :attempt, :region, :success, :class, :error_msg, :latency_ms, :attempted_at)
			ON CONFLICT (request_id, attempt) DO NOTHING
		`, rec)
		if err != nil {
			return fmt.Errorf("failed to save attempt %d: %w", rec.Attempt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns the newest outcomes first.
func (r *JournalRepo) RecentOutcomes(ctx context.Context, limit int) ([]domain.OutcomeSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outcomeRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT request_id, kind, region, failed_regions, attempt_count, error_msg, started_at, finished_at
		FROM routing_requests
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}

	result := make([]domain.OutcomeSummary, len(rows))
	for i, row := range rows {
		result[i] = row.summary()
	}
	return result, nil
}

// GetOutcome returns a single journaled outcome.
func (r *JournalRepo) GetOutcome(ctx context.Context, requestID string) (*domain.OutcomeSummary, error) {
	var row outcomeRow
	err := r.db.GetContext(ctx, &row, `
		SELECT request_id, kind, region, failed_regions, attempt_count, error_msg, started_at, finished_at
		FROM routing_requests
		WHERE request_id = $1
	`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrOutcomeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	s := row.summary()
	return &s, nil
}

// GetAttempts returns the attempts of a request in order.
func (r *JournalRepo) GetAttempts(ctx context.Context, requestID string) ([]domain.AttemptRecord, error) {
	if _, err := r.GetOutcome(ctx, requestID); err != nil {
		return nil, err
	}

	var attempts []domain.AttemptRecord
	err := r.db.SelectContext(ctx, &attempts, `
		SELECT request_id, attempt, region, success, class, error_msg, latency_ms, attempted_at
		FROM routing_attempts
		WHERE request_id = $1
		ORDER BY attempt
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	return attempts, nil
}

// Prune deletes outcomes finished before the cutoff.
func (r *JournalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM routing_requests WHERE finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", err)
	}
	return res.RowsAffected()
}

func (row outcomeRow) summary() domain.OutcomeSummary {
	s := row.OutcomeSummary
	s.FailedRegions = []string(row.FailedRegions)
	return s
}
