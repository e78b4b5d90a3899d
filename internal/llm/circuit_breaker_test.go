package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerPassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker()

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected result passthrough, got %v", result)
	}
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          2,
		Timeout:              time.Minute,
		HalfOpenMaxSuccesses: 1,
	})
	boom := errors.New("boom")
	fail := func() (interface{}, error) { return nil, boom }

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(context.Background(), fail); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected underlying error, got %v", i, err)
		}
	}

	called := false
	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		called = true
		return "ok", nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen after trip, got %v", err)
	}
	if called {
		t.Error("open circuit must not invoke fn")
	}
}

func TestCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:          1,
		Timeout:              20 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	if _, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return nil, errors.New("boom")
	}); err == nil {
		t.Fatal("expected failure")
	}

	time.Sleep(40 * time.Millisecond)

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("half-open trial call failed: %v", err)
	}
	if result != "recovered" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestCircuitBreakerHonoursCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) {
		t.Error("fn must not run with a cancelled context")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
