package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Millisecond,
		RetryMaxDelay:    4 * time.Millisecond,
		BreakerEnabled:   false,
	}
}

func retryAlways(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(fastPolicy(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "upstream.call", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, retryAlways)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteStopsAtMaxAttempts(t *testing.T) {
	exec := NewExecutor(fastPolicy(), nil)

	boom := errors.New("still failing")
	attempts := 0
	err := exec.Execute(context.Background(), "upstream.call", func(context.Context) error {
		attempts++
		return boom
	}, retryAlways)
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	exec := NewExecutor(fastPolicy(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "upstream.call", func(context.Context) error {
		attempts++
		return errors.New("bad request")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if err == nil {
		t.Fatal("Execute() error = nil, want error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	exec := NewExecutor(Policy{
		RetryMaxAttempts: 5,
		RetryBaseDelay:   time.Hour,
		RetryMaxDelay:    time.Hour,
		BreakerEnabled:   false,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("transient")
	err := exec.Execute(ctx, "upstream.call", func(context.Context) error {
		cancel()
		return boom
	}, retryAlways)
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want the attempt error", err)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	exec := NewExecutor(Policy{
		RetryMaxAttempts:        1,
		RetryBaseDelay:          time.Millisecond,
		RetryMaxDelay:           time.Millisecond,
		BreakerEnabled:          true,
		BreakerMinRequests:      3,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}, nil)

	boom := errors.New("upstream down")
	fail := func(context.Context) error { return boom }

	var last error
	for i := 0; i < 10; i++ {
		last = exec.Execute(context.Background(), "upstream.call", fail, retryAlways)
	}
	if !IsCircuitOpen(last) {
		t.Fatalf("last error = %v, want open circuit", last)
	}
}

func TestBreakersAreScopedPerOperation(t *testing.T) {
	exec := NewExecutor(Policy{
		RetryMaxAttempts:    1,
		RetryBaseDelay:      time.Millisecond,
		RetryMaxDelay:       time.Millisecond,
		BreakerEnabled:      true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	}, nil)

	boom := errors.New("upstream down")
	for i := 0; i < 10; i++ {
		_ = exec.Execute(context.Background(), "broken.op", func(context.Context) error { return boom }, retryAlways)
	}

	err := exec.Execute(context.Background(), "healthy.op", func(context.Context) error { return nil }, retryAlways)
	if err != nil {
		t.Fatalf("healthy operation error = %v, want nil", err)
	}
}
