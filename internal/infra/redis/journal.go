package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/storage"
)

const defaultOutcomeTTL = 24 * time.Hour

// RegionFailure is the last retryable failure recorded for a region. It
// expires together with the region's cool-down.
type RegionFailure struct {
	Region    string    `json:"region"`
	RequestID string    `json:"request_id"`
	Error     string    `json:"error_msg"`
	At        time.Time `json:"at"`
	Until     time.Time `json:"until"`
}

// JournalRepo implements storage.JournalRepository using Redis.
type JournalRepo struct {
	client *Client
	ttl    time.Duration
}

// NewJournalRepo creates a Redis-backed journal. ttl bounds how long
// outcomes are kept. Per-region failure entries live until the cool-down
// recorded on the attempt ends.
func NewJournalRepo(client *Client, ttl time.Duration) *JournalRepo {
	if ttl <= 0 {
		ttl = defaultOutcomeTTL
	}
	return &JournalRepo{client: client, ttl: ttl}
}

// regionFailures returns the last cool-down set per region by out, in
// attempt order.
func regionFailures(out *domain.Outcome) []RegionFailure {
	var failures []RegionFailure
	index := make(map[string]int)
	for _, a := range out.Attempts {
		if a.CooldownUntil.IsZero() {
			continue
		}
		rf := RegionFailure{
			Region:    a.Region,
			RequestID: out.RequestID,
			Error:     a.ErrorMessage(),
			At:        a.At,
			Until:     a.CooldownUntil,
		}
		if i, ok := index[a.Region]; ok {
			failures[i] = rf
			continue
		}
		index[a.Region] = len(failures)
		failures = append(failures, rf)
	}
	return failures
}

// SaveOutcome stores the summary, the attempt list and the recency index.
func (r *JournalRepo) SaveOutcome(ctx context.Context, out *domain.Outcome) error {
	rdb := r.client.rdb

	data, err := json.Marshal(out.Summary())
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	attempts := make([]any, 0, len(out.Attempts))
	for _, a := range out.Attempts {
		b, err := json.Marshal(a.Record())
		if err != nil {
			return fmt.Errorf("failed to marshal attempt: %w", err)
		}
		attempts = append(attempts, b)
	}

	pipe := rdb.TxPipeline()
	pipe.Set(ctx, r.client.outcomeKey(out.RequestID), data, r.ttl)
	attemptsKey := r.client.attemptsKey(out.RequestID)
	pipe.Del(ctx, attemptsKey)
	if len(attempts) > 0 {
		pipe.RPush(ctx, attemptsKey, attempts...)
		pipe.Expire(ctx, attemptsKey, r.ttl)
	}
	pipe.ZAdd(ctx, r.client.recentKey(), redis.Z{
		Score:  float64(out.FinishedAt.UnixMilli()),
		Member: out.RequestID,
	})

	now := time.Now()
	for _, rf := range regionFailures(out) {
		ttl := rf.Until.Sub(now)
		if ttl <= 0 {
			continue
		}
		data, err := json.Marshal(rf)
		if err != nil {
			return fmt.Errorf("failed to marshal region failure: %w", err)
		}
		pipe.Set(ctx, r.client.regionFailureKey(rf.Region), data, ttl)
		pipe.ZAdd(ctx, r.client.regionFailuresKey(), redis.Z{
			Score:  float64(rf.Until.Unix()),
			Member: rf.Region,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns the newest outcomes first.
func (r *JournalRepo) RecentOutcomes(ctx context.Context, limit int) ([]domain.OutcomeSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	ids, err := r.client.rdb.ZRevRange(ctx, r.client.recentKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	result := make([]domain.OutcomeSummary, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetOutcome(ctx, id)
		if err == storage.ErrOutcomeNotFound {
			// Data expired but ID still indexed, remove it
			r.client.rdb.ZRem(ctx, r.client.recentKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, nil
}

// GetOutcome returns a single journaled outcome.
func (r *JournalRepo) GetOutcome(ctx context.Context, requestID string) (*domain.OutcomeSummary, error) {
	data, err := r.client.rdb.Get(ctx, r.client.outcomeKey(requestID)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrOutcomeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	var s domain.OutcomeSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}
	return &s, nil
}

// GetAttempts returns the attempts of a request in order.
func (r *JournalRepo) GetAttempts(ctx context.Context, requestID string) ([]domain.AttemptRecord, error) {
	if _, err := r.GetOutcome(ctx, requestID); err != nil {
		return nil, err
	}

	raw, err := r.client.rdb.LRange(ctx, r.client.attemptsKey(requestID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	attempts := make([]domain.AttemptRecord, 0, len(raw))
	for _, item := range raw {
		var a domain.AttemptRecord
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// Prune removes outcomes that finished before the cutoff.
func (r *JournalRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := strconv.FormatInt(before.UnixMilli()-1, 10)

	ids, err := r.client.rdb.ZRangeByScore(ctx, r.client.recentKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		keys = append(keys, r.client.outcomeKey(id), r.client.attemptsKey(id))
	}

	pipe := r.client.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByScore(ctx, r.client.recentKey(), "-inf", cutoff)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to prune outcomes: %w", err)
	}
	return int64(len(ids)), nil
}

// RegionFailures returns the regions whose last failure has not expired yet.
func (r *JournalRepo) RegionFailures(ctx context.Context) ([]RegionFailure, error) {
	rdb := r.client.rdb
	indexKey := r.client.regionFailuresKey()

	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := rdb.ZRemRangeByScore(ctx, indexKey, "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("zremrangebyscore failed: %w", err)
	}

	regions, err := rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	failures := make([]RegionFailure, 0, len(regions))
	for _, region := range regions {
		data, err := rdb.Get(ctx, r.client.regionFailureKey(region)).Bytes()
		if err == redis.Nil {
			rdb.ZRem(ctx, indexKey, region)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get region failure: %w", err)
		}

		var rf RegionFailure
		if err := json.Unmarshal(data, &rf); err != nil {
			continue
		}
		failures = append(failures, rf)
	}
	return failures, nil
}
