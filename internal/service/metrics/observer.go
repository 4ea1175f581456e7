package metrics

import (
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

// AvailabilitySource reports endpoint availability for the cooling gauge.
type AvailabilitySource interface {
	AllEndpoints() []domain.Endpoint
}

// Observer records dispatcher observations as Prometheus metrics.
type Observer struct {
	source  AvailabilitySource
	nowFunc func() time.Time
}

// NewObserver creates an observer. source may be nil, in which case the
// cooling gauge is not maintained.
func NewObserver(source AvailabilitySource) *Observer {
	return &Observer{source: source, nowFunc: time.Now}
}

func (o *Observer) ObserveAttempt(a domain.AttemptResult) {
	result := "success"
	if !a.Success {
		result = string(a.Class)
	}
	AttemptsTotal.WithLabelValues(a.Region, result).Inc()
	AttemptLatency.WithLabelValues(a.Region).Observe(a.Latency.Seconds())
}

func (o *Observer) ObserveOutcome(out *domain.Outcome) {
	OutcomesTotal.WithLabelValues(string(out.Kind)).Inc()
	FailoverDepth.Observe(float64(len(out.FailedRegions)))
	o.RefreshCooling()
}

// RefreshCooling updates the per-region cooling gauge from the source.
func (o *Observer) RefreshCooling() {
	if o.source == nil {
		return
	}
	now := o.nowFunc()
	for _, ep := range o.source.AllEndpoints() {
		v := 0.0
		if !ep.IsAvailable(now) {
			v = 1
		}
		RegionCooling.WithLabelValues(ep.Region).Set(v)
	}
}
