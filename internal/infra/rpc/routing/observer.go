package routing

import "github.com/vietddude/regionrouter/internal/core/domain"

// Observer receives attempt and outcome notifications from the dispatcher.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ObserveAttempt(domain.AttemptResult)
	ObserveOutcome(*domain.Outcome)
}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) ObserveAttempt(res domain.AttemptResult) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveAttempt(res)
		}
	}
}

func (o Observers) ObserveOutcome(out *domain.Outcome) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveOutcome(out)
		}
	}
}
