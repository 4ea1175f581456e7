package endpoint

import "time"

// CooldownMarker is the registry capability the failure tracker needs.
type CooldownMarker interface {
	MarkUnavailableUntil(region string, t time.Time) error
}

// RecordFailure pushes region into cool-down until now+backoff.
// Retry counting is not its concern.
func RecordFailure(reg CooldownMarker, region string, now time.Time, backoff time.Duration) (time.Time, error) {
	until := now.Add(backoff)
	if err := reg.MarkUnavailableUntil(region, until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}
