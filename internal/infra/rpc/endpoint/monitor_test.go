package endpoint

import (
	"errors"
	"testing"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

func TestMonitor_Accumulation(t *testing.T) {
	reg, _ := NewRegistry(testRecords())
	m := NewMonitor(reg)

	m.ObserveAttempt(domain.AttemptResult{Region: "us-east-1", Success: true, Latency: 100 * time.Millisecond})
	for i := 0; i < 3; i++ {
		m.ObserveAttempt(domain.AttemptResult{
			Region: "us-west-2",
			Class:  domain.FailureRetryable,
			Err:    errors.New("throttled"),
		})
	}
	m.ObserveAttempt(domain.AttemptResult{
		Region: "eu-west-1",
		Class:  domain.FailureNonRetryable,
		Err:    errors.New("bad request"),
	})

	stats := m.Stats()
	if len(stats) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(stats))
	}

	if stats[0].Successes != 1 || stats[0].Status != "healthy" {
		t.Errorf("unexpected us-east-1 stats %+v", stats[0])
	}
	if stats[0].AverageLatency != 100*time.Millisecond {
		t.Errorf("unexpected latency %v", stats[0].AverageLatency)
	}
	if stats[1].Retryable != 3 || stats[1].Status != "degraded" {
		t.Errorf("unexpected us-west-2 stats %+v", stats[1])
	}
	if stats[1].LastError != "throttled" {
		t.Errorf("unexpected last error %q", stats[1].LastError)
	}
	if stats[2].NonRetryable != 1 {
		t.Errorf("unexpected eu-west-1 stats %+v", stats[2])
	}
}

func TestMonitor_CoolingStatus(t *testing.T) {
	reg, _ := NewRegistry(testRecords())
	m := NewMonitor(reg)
	now := time.Unix(1_700_000_000, 0)
	m.nowFunc = func() time.Time { return now }

	_ = reg.MarkUnavailableUntil("us-west-2", now.Add(time.Hour))

	if got := m.RegionStatus("us-west-2"); got != StatusCooling {
		t.Errorf("expected cooling, got %s", got)
	}
	if got := m.RegionStatus("us-east-1"); got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}

	stats := m.Stats()
	if stats[1].Status != "cooling" || !stats[1].NextAvailableAt.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected stats %+v", stats[1])
	}
}

func TestMonitor_UnregisteredRegionListedLast(t *testing.T) {
	reg, _ := NewRegistry(testRecords())
	m := NewMonitor(reg)
	m.ObserveAttempt(domain.AttemptResult{Region: "ap-south-1", Success: true})

	stats := m.Stats()
	if len(stats) != 4 || stats[3].Region != "ap-south-1" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMonitor_CountsThrottles(t *testing.T) {
	reg, _ := NewRegistry(testRecords())
	m := NewMonitor(reg)

	m.ObserveAttempt(domain.AttemptResult{
		Region: "us-east-1",
		Class:  domain.FailureRetryable,
		Err:    &domain.InvokeError{StatusCode: 429, Code: "ThrottlingException"},
	})
	m.ObserveAttempt(domain.AttemptResult{
		Region: "us-east-1",
		Class:  domain.FailureRetryable,
		Err:    &domain.InvokeError{StatusCode: 503, Code: "ServiceUnavailableException"},
	})

	stats := m.Stats()
	if stats[0].Retryable != 2 || stats[0].Throttles != 1 {
		t.Errorf("expected 2 retryable with 1 throttle, got %+v", stats[0])
	}
}
