package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc/endpoint"
)

var (
	// ErrExhausted is matched by failures that consumed the retry budget.
	ErrExhausted = errors.New("retry budget exhausted")

	// ErrNonRetryable is matched by failures the collaborator marked fatal.
	ErrNonRetryable = errors.New("non-retryable failure")

	// ErrCanceled is matched by requests abandoned by the caller.
	ErrCanceled = errors.New("request canceled")
)

// Invoker performs one inference attempt against one regional endpoint.
type Invoker interface {
	Invoke(ctx context.Context, inv domain.Invocation) (any, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, inv domain.Invocation) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, inv domain.Invocation) (any, error) {
	return f(ctx, inv)
}

// Registry is the endpoint state the dispatcher reads and updates.
type Registry interface {
	EndpointSource
	endpoint.CooldownMarker
}

// RoutingError is returned for every terminal failure of a logical request.
type RoutingError struct {
	Kind          domain.OutcomeKind
	FailedRegions []string
	Err           error // terminal error from the last attempt
}

func (e *RoutingError) Error() string {
	regions := strings.Join(e.FailedRegions, ",")
	if e.Err == nil {
		return fmt.Sprintf("%s (failed regions: [%s])", e.Kind, regions)
	}
	return fmt.Sprintf("%s (failed regions: [%s]): %v", e.Kind, regions, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *RoutingError) Is(target error) bool {
	switch target {
	case ErrExhausted:
		return e.Kind == domain.OutcomeExhausted
	case ErrNonRetryable:
		return e.Kind == domain.OutcomeNonRetryable
	case ErrCanceled:
		return e.Kind == domain.OutcomeCanceled
	}
	return false
}

// Dispatcher executes logical requests against the registry's endpoints.
// It is safe for concurrent use; the registry and the policy's rotator are
// the only shared state.
type Dispatcher struct {
	registry Registry
	policy   *Policy
	invoker  Invoker
	observer Observer
	logger   *slog.Logger

	nowFunc func() time.Time
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry Registry, invoker Invoker, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		policy:   NewPolicy(registry),
		invoker:  invoker,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// SetObserver sets the observer notified of attempts and outcomes.
func (d *Dispatcher) SetObserver(obs Observer) {
	d.observer = obs
}

// Execute runs one logical request to completion or exhaustion.
//
// On success the outcome carries the response and the regions that failed
// along the way. Any other terminal state returns the outcome together with
// a *RoutingError. Invalid configuration and an empty registry return a nil
// outcome.
func (d *Dispatcher) Execute(ctx context.Context, payload any, cfg Config) (*domain.Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := &domain.Outcome{
		RequestID:     uuid.NewString(),
		FailedRegions: []string{},
		StartedAt:     d.nowFunc(),
	}

	candidates, err := d.policy.Rank(cfg.PrimaryDistribution, out.StartedAt)
	if err != nil {
		return nil, err
	}

	log := d.logger.With("request_id", out.RequestID)
	log.Debug("Ranked candidates", "regions", regionsOf(candidates))

	var (
		cursor    int
		perRegion int
		total     int
		failed    = make(map[string]bool, len(candidates))
	)

	for {
		if err := ctx.Err(); err != nil {
			return d.finish(out, domain.OutcomeCanceled, err)
		}

		ep := candidates[cursor]
		total++

		attemptStart := d.nowFunc()
		resp, err := d.invoker.Invoke(ctx, domain.Invocation{
			RequestID:            out.RequestID,
			Region:               ep.Region,
			ProfilePrefix:        ep.ProfilePrefix,
			CrossRegionInference: cfg.CrossRegionInference,
			Payload:              payload,
		})
		res := domain.AttemptResult{
			RequestID: out.RequestID,
			Region:    ep.Region,
			Attempt:   total,
			Success:   err == nil,
			Err:       err,
			Latency:   d.nowFunc().Sub(attemptStart),
			At:        attemptStart,
		}

		if err == nil {
			d.recordAttempt(out, res)
			out.Response = resp
			out.Region = ep.Region
			return d.finish(out, domain.OutcomeSuccess, nil)
		}

		// The caller went away mid-attempt; the endpoint is not at fault.
		if ctx.Err() != nil {
			res.Class = domain.FailureNonRetryable
			d.recordAttempt(out, res)
			return d.finish(out, domain.OutcomeCanceled, err)
		}

		res.Class = ClassifyError(err)
		d.recordAttempt(out, res)

		if !failed[ep.Region] {
			failed[ep.Region] = true
			out.FailedRegions = append(out.FailedRegions, ep.Region)
		}

		if res.Class == domain.FailureNonRetryable {
			log.Warn("Non-retryable failure", "region", ep.Region, "attempt", total, "error", err)
			return d.finish(out, domain.OutcomeNonRetryable, err)
		}

		until, recErr := endpoint.RecordFailure(d.registry, ep.Region, d.nowFunc(), cfg.FailureBackoff)
		if recErr != nil {
			log.Error("Failed to record cool-down", "region", ep.Region, "error", recErr)
		} else if cfg.FailureBackoff > 0 {
			out.Attempts[len(out.Attempts)-1].CooldownUntil = until
		}
		log.Debug("Retryable failure",
			"region", ep.Region,
			"attempt", total,
			"next_available_at", until,
			"error", err,
		)

		perRegion++
		if total >= cfg.MaxTotalRetries {
			return d.finish(out, domain.OutcomeExhausted, err)
		}
		if perRegion < cfg.MaxRetriesPerRegion {
			continue
		}
		if !cfg.MultiRegionRetry {
			return d.finish(out, domain.OutcomeExhausted, err)
		}

		cursor++
		perRegion = 0
		if cursor >= len(candidates) {
			return d.finish(out, domain.OutcomeExhausted, err)
		}
	}
}

func (d *Dispatcher) recordAttempt(out *domain.Outcome, res domain.AttemptResult) {
	out.Attempts = append(out.Attempts, res)
	if d.observer != nil {
		d.observer.ObserveAttempt(res)
	}
}

func (d *Dispatcher) finish(out *domain.Outcome, kind domain.OutcomeKind, err error) (*domain.Outcome, error) {
	out.Kind = kind
	out.Err = err
	out.FinishedAt = d.nowFunc()

	if d.observer != nil {
		d.observer.ObserveOutcome(out)
	}

	if kind == domain.OutcomeSuccess {
		return out, nil
	}

	d.logger.Info("Request failed",
		"request_id", out.RequestID,
		"kind", kind,
		"failed_regions", out.FailedRegions,
		"error", err,
	)
	return out, &RoutingError{
		Kind:          kind,
		FailedRegions: append([]string(nil), out.FailedRegions...),
		Err:           err,
	}
}

func regionsOf(endpoints []domain.Endpoint) []string {
	regions := make([]string, len(endpoints))
	for i, e := range endpoints {
		regions[i] = e.Region
	}
	return regions
}
