package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(failures, successes int, timeout time.Duration) *CircuitBreaker {
	return New(Config{
		Name:             "azure-openai",
		FailureThreshold: failures,
		SuccessThreshold: successes,
		Timeout:          timeout,
	})
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := newTestBreaker(3, 2, 100*time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("closed breaker call: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.GetState())
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb := newTestBreaker(3, 2, 100*time.Millisecond)
	provErr := errors.New("deployment throttled")

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return provErr }); err != provErr {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open after threshold", cb.GetState())
	}

	// open breaker sheds load without invoking the provider
	if err := cb.Call(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("open breaker call = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := newTestBreaker(2, 2, 50*time.Millisecond)
	provErr := errors.New("deployment throttled")

	cb.Call(func() error { return provErr })
	cb.Call(func() error { return provErr })
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	time.Sleep(60 * time.Millisecond)

	// half-open lets the call through, then two successes close it
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("half-open call: %v", err)
	}
	cb.Call(func() error { return nil })
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed after recovery", cb.GetState())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := newTestBreaker(2, 2, 50*time.Millisecond)
	provErr := errors.New("deployment throttled")

	cb.Call(func() error { return provErr })
	cb.Call(func() error { return provErr })
	time.Sleep(60 * time.Millisecond)

	cb.Call(func() error { return provErr })
	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want reopened", cb.GetState())
	}
}
