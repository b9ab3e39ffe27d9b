package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	eligiblePolicies = Lookup("claims_backend", "eligible_policies")
	submitClaim      = Submission("claims_backend", "submit_claim")
	analyzeReceipt   = Analysis("content_understanding", "analyze")
)

var errBackendDown = errors.New("claims backend unavailable")

func retryableFailures(err error) ErrorClassification {
	return ErrorClassification{
		Retryable:     errors.Is(err, errBackendDown),
		RecordFailure: true,
	}
}

func fastConfig(breaker bool) Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         2 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          breaker,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func TestLookupIsRetriedUntilItSucceeds(t *testing.T) {
	exec := NewExecutor(fastConfig(false))

	attempts := 0
	err := exec.Execute(context.Background(), eligiblePolicies, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBackendDown
		}
		return nil
	}, retryableFailures)
	if err != nil {
		t.Fatalf("expected eligible policies lookup to succeed after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestLookupDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(false))

	attempts := 0
	errUnknownClient := errors.New("client C404 not found")
	err := exec.Execute(context.Background(), eligiblePolicies, func(context.Context) error {
		attempts++
		return errUnknownClient
	}, retryableFailures)
	if !errors.Is(err, errUnknownClient) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestSubmissionRunsOnceEvenWhenRetryable(t *testing.T) {
	exec := NewExecutor(fastConfig(true))

	attempts := 0
	err := exec.Execute(context.Background(), submitClaim, func(context.Context) error {
		attempts++
		return errBackendDown
	}, retryableFailures)
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("a claim submission must not be repeated, got %d attempts", attempts)
	}
}

func TestSubmissionBreakerDoesNotBlockLookups(t *testing.T) {
	exec := NewExecutor(fastConfig(true))

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), submitClaim, func(context.Context) error {
			return errBackendDown
		}, retryableFailures)
		if !errors.Is(err, errBackendDown) {
			t.Fatalf("expected backend error on submission %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), submitClaim, func(context.Context) error {
		t.Fatalf("submit_claim breaker should be open and must not call the backend")
		return nil
	}, retryableFailures)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if state, ok := exec.BreakerState(submitClaim); !ok || state != gobreaker.StateOpen {
		t.Fatalf("expected submit_claim breaker open, got %s (known %t)", state, ok)
	}

	called := false
	err = exec.Execute(context.Background(), eligiblePolicies, func(context.Context) error {
		called = true
		return nil
	}, retryableFailures)
	if err != nil || !called {
		t.Fatalf("lookup must still reach the backend, err=%v called=%t", err, called)
	}
	if state, _ := exec.BreakerState(eligiblePolicies); state != gobreaker.StateClosed {
		t.Fatalf("expected eligible_policies breaker closed, got %s", state)
	}
}

func TestAnalysisRunsOnceOutsideBreaker(t *testing.T) {
	exec := NewExecutor(fastConfig(true))

	attempts := 0
	for i := 0; i < 5; i++ {
		_ = exec.Execute(context.Background(), analyzeReceipt, func(context.Context) error {
			attempts++
			return errBackendDown
		}, retryableFailures)
	}
	if attempts != 5 {
		t.Fatalf("expected one attempt per analyzed file, got %d", attempts)
	}
	if _, ok := exec.BreakerState(analyzeReceipt); ok {
		t.Fatalf("analysis must not be breaker-guarded")
	}
}

func TestUnknownKindRunsOnce(t *testing.T) {
	exec := NewExecutor(fastConfig(false))

	attempts := 0
	_ = exec.Execute(context.Background(), Operation{Service: "claims_backend", Name: "archive"}, func(context.Context) error {
		attempts++
		return errBackendDown
	}, retryableFailures)
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestLookupStopsRetryingWhenContextEnds(t *testing.T) {
	cfg := fastConfig(false)
	cfg.RetryInitialBackoff = time.Minute
	cfg.RetryMaxBackoff = time.Minute
	exec := NewExecutor(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := exec.Execute(ctx, eligiblePolicies, func(context.Context) error {
		attempts++
		cancel()
		return errBackendDown
	}, retryableFailures)
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("expected the last backend error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retry after cancellation, got %d attempts", attempts)
	}
}

func TestOperationNames(t *testing.T) {
	if got := submitClaim.String(); got != "claims_backend.submit_claim" {
		t.Fatalf("unexpected operation name %q", got)
	}
	if got := (Operation{Name: " get_run "}).normalize().String(); got != "get_run" {
		t.Fatalf("unexpected normalized name %q", got)
	}
	if eligiblePolicies.Retried() == submitClaim.Retried() {
		t.Fatalf("lookups and submissions must differ in retry policy")
	}
}

func TestNilExecutorRunsOnce(t *testing.T) {
	var exec *Executor

	attempts := 0
	err := exec.Execute(context.Background(), eligiblePolicies, func(context.Context) error {
		attempts++
		return errBackendDown
	}, retryableFailures)
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestWithRetriesKeepsDefaults(t *testing.T) {
	cfg := DefaultConfig().WithRetries(5, false)
	if cfg.RetryMaxAttempts != 5 || cfg.BreakerEnabled {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.RetryInitialBackoff != DefaultConfig().RetryInitialBackoff {
		t.Fatalf("expected default backoff to survive, got %s", cfg.RetryInitialBackoff)
	}

	cfg = DefaultConfig().WithRetries(0, true)
	if cfg.RetryMaxAttempts != DefaultConfig().RetryMaxAttempts {
		t.Fatalf("non-positive attempts must keep the default, got %d", cfg.RetryMaxAttempts)
	}
}
