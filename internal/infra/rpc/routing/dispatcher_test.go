package routing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/regionrouter/internal/core/domain"
)

var (
	errThrottled = &domain.InvokeError{Code: "ThrottlingException", StatusCode: 429, Message: "slow down"}
	errInvalid   = &domain.InvokeError{Code: "ValidationException", StatusCode: 400, Message: "bad input"}
)

// scriptedInvoker returns the queued errors for a region in order, then succeeds.
type scriptedInvoker struct {
	mu     sync.Mutex
	script map[string][]error
	always map[string]error
	calls  []domain.Invocation
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{
		script: make(map[string][]error),
		always: make(map[string]error),
	}
}

func (s *scriptedInvoker) Invoke(_ context.Context, inv domain.Invocation) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, inv)
	if err, ok := s.always[inv.Region]; ok {
		return nil, err
	}
	if queue := s.script[inv.Region]; len(queue) > 0 {
		s.script[inv.Region] = queue[1:]
		return nil, queue[0]
	}
	return "response from " + inv.Region, nil
}

func (s *scriptedInvoker) regions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	regions := make([]string, len(s.calls))
	for i, c := range s.calls {
		regions[i] = c.Region
	}
	return regions
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []domain.AttemptResult
	outcomes []*domain.Outcome
}

func (r *recordingObserver) ObserveAttempt(res domain.AttemptResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, res)
}

func (r *recordingObserver) ObserveOutcome(out *domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, out)
}

func newTestDispatcher(reg Registry, inv Invoker) *Dispatcher {
	d := NewDispatcher(reg, inv, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.nowFunc = func() time.Time { return testNow }
	return d
}

func fixedConfig(total, perRegion int, multi bool) Config {
	return Config{
		MaxTotalRetries:     total,
		MultiRegionRetry:    multi,
		MaxRetriesPerRegion: perRegion,
		FailureBackoff:      time.Minute,
		PrimaryDistribution: DistributionFixed,
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExecute_FailoverToNormal(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), primary("B"), normal("C"))
	inv := newScriptedInvoker()
	inv.always["A"] = errThrottled
	inv.always["B"] = errThrottled
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(context.Background(), "payload", fixedConfig(4, 1, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Succeeded() || out.Region != "C" {
		t.Fatalf("expected success via C, got %+v", out)
	}
	if out.Response != "response from C" {
		t.Errorf("unexpected response %v", out.Response)
	}
	if !equalStrings(out.FailedRegions, []string{"A", "B"}) {
		t.Errorf("expected failed regions [A B], got %v", out.FailedRegions)
	}
	for _, r := range []string{"A", "B"} {
		if reg.IsAvailable(r, testNow) {
			t.Errorf("%s should be cooling down", r)
		}
	}
	if !reg.IsAvailable("C", testNow) {
		t.Error("C should remain available")
	}
	if len(out.Attempts) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(out.Attempts))
	}
}

func TestExecute_ExhaustedAcrossAllRegions(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), primary("B"), normal("C"))
	inv := newScriptedInvoker()
	for _, r := range []string{"A", "B", "C"} {
		inv.always[r] = errThrottled
	}
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(context.Background(), nil, fixedConfig(3, 1, true))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if errors.Is(err, ErrNonRetryable) {
		t.Error("exhaustion must be distinguishable from non-retryable")
	}
	if out.Kind != domain.OutcomeExhausted {
		t.Errorf("unexpected kind %s", out.Kind)
	}
	if !equalStrings(out.FailedRegions, []string{"A", "B", "C"}) {
		t.Errorf("expected failed regions [A B C], got %v", out.FailedRegions)
	}

	var routingErr *RoutingError
	if !errors.As(err, &routingErr) || !equalStrings(routingErr.FailedRegions, out.FailedRegions) {
		t.Fatalf("expected RoutingError carrying failed regions, got %v", err)
	}
	var invokeErr *domain.InvokeError
	if !errors.As(err, &invokeErr) || invokeErr.Code != "ThrottlingException" {
		t.Errorf("terminal error detail not preserved: %v", err)
	}
}

func TestExecute_ListExhaustedBeforeBudget(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), normal("B"))
	inv := newScriptedInvoker()
	inv.always["A"] = errThrottled
	inv.always["B"] = errThrottled
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(context.Background(), nil, fixedConfig(10, 2, true))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if got := inv.regions(); !equalStrings(got, []string{"A", "A", "B", "B"}) {
		t.Errorf("unexpected attempt order %v", got)
	}
	if !equalStrings(out.FailedRegions, []string{"A", "B"}) {
		t.Errorf("regions should be listed once each, got %v", out.FailedRegions)
	}
}

func TestExecute_SingleRegionWhenMultiRegionDisabled(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), primary("B"), normal("C"))
	inv := newScriptedInvoker()
	inv.always["A"] = errThrottled
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(context.Background(), nil, fixedConfig(5, 2, false))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if got := inv.regions(); !equalStrings(got, []string{"A", "A"}) {
		t.Errorf("expected only A to be tried twice, got %v", got)
	}
	if !equalStrings(out.FailedRegions, []string{"A"}) {
		t.Errorf("unexpected failed regions %v", out.FailedRegions)
	}
}

func TestExecute_RetrySameRegionThenSucceed(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), normal("B"))
	inv := newScriptedInvoker()
	inv.script["A"] = []error{errThrottled}
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(context.Background(), nil, fixedConfig(5, 2, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Region != "A" || !equalStrings(out.FailedRegions, []string{"A"}) {
		t.Errorf("unexpected outcome region=%s failed=%v", out.Region, out.FailedRegions)
	}
	if got := inv.regions(); !equalStrings(got, []string{"A", "A"}) {
		t.Errorf("unexpected attempt order %v", got)
	}
}

func TestExecute_NonRetryableStopsImmediately(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), primary("B"), normal("C"))
	inv := newScriptedInvoker()
	inv.always["A"] = errInvalid
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(context.Background(), nil, fixedConfig(5, 1, true))
	if !errors.Is(err, ErrNonRetryable) {
		t.Fatalf("expected ErrNonRetryable, got %v", err)
	}
	if out.Kind != domain.OutcomeNonRetryable {
		t.Errorf("unexpected kind %s", out.Kind)
	}
	if got := inv.regions(); !equalStrings(got, []string{"A"}) {
		t.Errorf("no other endpoint may be tried, got %v", got)
	}
	if !equalStrings(out.FailedRegions, []string{"A"}) {
		t.Errorf("unexpected failed regions %v", out.FailedRegions)
	}
	if !reg.IsAvailable("A", testNow) {
		t.Error("non-retryable failure must not cool the endpoint down")
	}
}

func TestExecute_CooldownWindow(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), normal("B"))
	inv := newScriptedInvoker()
	inv.script["A"] = []error{errThrottled}
	d := newTestDispatcher(reg, inv)

	cfg := fixedConfig(5, 1, true)
	if _, err := d.Execute(context.Background(), nil, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, offset := range []time.Duration{0, time.Second, cfg.FailureBackoff - time.Nanosecond} {
		if reg.IsAvailable("A", testNow.Add(offset)) {
			t.Errorf("A should be unavailable at +%v", offset)
		}
	}
	if !reg.IsAvailable("A", testNow.Add(cfg.FailureBackoff)) {
		t.Error("A should be available once the backoff has elapsed")
	}

	// The next request skips A while it cools down.
	out, _ := d.Execute(context.Background(), nil, cfg)
	if out.Region != "B" || len(out.FailedRegions) != 0 {
		t.Errorf("expected clean success via B, got region=%s failed=%v", out.Region, out.FailedRegions)
	}
}

func TestExecute_AttemptCarriesCooldownEnd(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), normal("B"))
	inv := newScriptedInvoker()
	inv.script["A"] = []error{errThrottled}
	d := newTestDispatcher(reg, inv)

	cfg := fixedConfig(5, 1, true)
	cfg.FailureBackoff = 90 * time.Second
	out, err := d.Execute(context.Background(), nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(out.Attempts))
	}
	if got := out.Attempts[0].CooldownUntil; !got.Equal(testNow.Add(90 * time.Second)) {
		t.Errorf("expected cool-down end from the request backoff, got %v", got)
	}
	if !out.Attempts[1].CooldownUntil.IsZero() {
		t.Errorf("successful attempt should carry no cool-down, got %v", out.Attempts[1].CooldownUntil)
	}
}

func TestExecute_LastResortWhenAllCooling(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), normal("B"))
	_ = reg.MarkUnavailableUntil("A", testNow.Add(2*time.Hour))
	_ = reg.MarkUnavailableUntil("B", testNow.Add(time.Hour))
	inv := newScriptedInvoker()
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(context.Background(), nil, fixedConfig(5, 1, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Region != "B" {
		t.Errorf("expected soonest-available B, got %s", out.Region)
	}
}

func TestExecute_RoundRobinAcrossRequests(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), primary("B"), primary("C"))
	inv := newScriptedInvoker()
	d := newTestDispatcher(reg, inv)

	cfg := fixedConfig(5, 1, true)
	cfg.PrimaryDistribution = DistributionRoundRobin

	var served []string
	for i := 0; i < 3; i++ {
		out, err := d.Execute(context.Background(), nil, cfg)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
		served = append(served, out.Region)
	}
	if !equalStrings(served, []string{"A", "B", "C"}) {
		t.Errorf("expected rotation A,B,C got %v", served)
	}
}

func TestExecute_PassesInvocationFields(t *testing.T) {
	reg := newTestRegistry(t, domain.EndpointRecord{Region: "us-east-1", Primary: true, ProfilePrefix: "us"})
	inv := newScriptedInvoker()
	d := newTestDispatcher(reg, inv)

	cfg := fixedConfig(1, 1, true)
	cfg.CrossRegionInference = true
	out, err := d.Execute(context.Background(), map[string]string{"prompt": "hi"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := inv.calls[0]
	if call.ProfilePrefix != "us" || !call.CrossRegionInference || call.RequestID != out.RequestID {
		t.Errorf("unexpected invocation %+v", call)
	}
	if call.Payload.(map[string]string)["prompt"] != "hi" {
		t.Error("payload not passed through")
	}
}

func TestExecute_CanceledBetweenAttempts(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), normal("B"))
	ctx, cancel := context.WithCancel(context.Background())
	inv := InvokerFunc(func(context.Context, domain.Invocation) (any, error) {
		cancel()
		return nil, errThrottled
	})
	d := newTestDispatcher(reg, inv)

	out, err := d.Execute(ctx, nil, fixedConfig(5, 1, true))
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if out.Kind != domain.OutcomeCanceled || len(out.Attempts) != 1 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if !reg.IsAvailable("A", testNow) {
		t.Error("a canceled request must not cool the endpoint down")
	}
}

func TestExecute_AlreadyCanceled(t *testing.T) {
	reg := newTestRegistry(t, primary("A"))
	inv := newScriptedInvoker()
	d := newTestDispatcher(reg, inv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Execute(ctx, nil, fixedConfig(5, 1, true))
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(inv.regions()) != 0 {
		t.Error("no attempt should be made")
	}
}

func TestExecute_SetupErrors(t *testing.T) {
	d := newTestDispatcher(newTestRegistry(t), newScriptedInvoker())
	if _, err := d.Execute(context.Background(), nil, fixedConfig(5, 1, true)); !errors.Is(err, ErrNoEndpoints) {
		t.Errorf("expected ErrNoEndpoints, got %v", err)
	}

	d = newTestDispatcher(newTestRegistry(t, primary("A")), newScriptedInvoker())
	if _, err := d.Execute(context.Background(), nil, fixedConfig(0, 1, true)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestExecute_NeverExceedsBudget(t *testing.T) {
	for total := 1; total <= 6; total++ {
		for perRegion := 1; perRegion <= total; perRegion++ {
			for _, multi := range []bool{true, false} {
				reg := newTestRegistry(t, primary("A"), primary("B"), normal("C"), normal("D"))
				inv := newScriptedInvoker()
				inv.script["A"] = []error{errThrottled, errThrottled, errThrottled}
				inv.script["B"] = []error{errThrottled, errThrottled}
				inv.always["C"] = errThrottled
				d := newTestDispatcher(reg, inv)

				out, _ := d.Execute(context.Background(), nil, fixedConfig(total, perRegion, multi))
				if len(out.Attempts) > total {
					t.Fatalf("total=%d perRegion=%d multi=%v: %d attempts", total, perRegion, multi, len(out.Attempts))
				}
			}
		}
	}
}

func TestExecute_EventuallySucceedsWithAvailableEndpoint(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), primary("B"), normal("C"))
	inv := newScriptedInvoker()
	inv.always["A"] = errThrottled
	inv.always["B"] = errThrottled
	d := newTestDispatcher(reg, inv)

	for i := 0; i < 5; i++ {
		out, err := d.Execute(context.Background(), nil, fixedConfig(3, 1, true))
		if err != nil || out.Region != "C" {
			t.Fatalf("request %d: expected success via C, got %v", i, err)
		}
	}
}

func TestExecute_NotifiesObserver(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), normal("B"))
	inv := newScriptedInvoker()
	inv.always["A"] = errThrottled
	d := newTestDispatcher(reg, inv)
	obs := &recordingObserver{}
	d.SetObserver(Observers{obs, nil})

	out, _ := d.Execute(context.Background(), nil, fixedConfig(5, 1, true))

	if len(obs.attempts) != 2 || len(obs.outcomes) != 1 {
		t.Fatalf("unexpected notifications: %d attempts, %d outcomes", len(obs.attempts), len(obs.outcomes))
	}
	if obs.attempts[0].Class != domain.FailureRetryable || obs.attempts[0].Attempt != 1 {
		t.Errorf("unexpected first attempt %+v", obs.attempts[0])
	}
	if !obs.attempts[1].Success || obs.outcomes[0] != out {
		t.Error("success not reported")
	}
}

func TestExecute_ConcurrentRequests(t *testing.T) {
	reg := newTestRegistry(t, primary("A"), primary("B"), normal("C"))
	inv := newScriptedInvoker()
	d := newTestDispatcher(reg, inv)
	cfg := fixedConfig(3, 1, true)
	cfg.PrimaryDistribution = DistributionRoundRobin

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Execute(context.Background(), nil, cfg); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	counts := make(map[string]int)
	for _, r := range inv.regions() {
		counts[r]++
	}
	if counts["A"] != 25 || counts["B"] != 25 || counts["C"] != 0 {
		t.Errorf("expected an even split across primaries, got %v", counts)
	}
}
