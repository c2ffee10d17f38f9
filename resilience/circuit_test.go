package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.SuccessThreshold != 1 {
		t.Errorf("SuccessThreshold = %d, want 1", cb.config.SuccessThreshold)
	}
	if cb.config.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.config.ResetTimeout)
	}
	if cb.config.FailureWindow != 60*time.Second {
		t.Errorf("FailureWindow = %v, want 60s", cb.config.FailureWindow)
	}
	if !cb.IsClosed() {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	testErr := errors.New("service down")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return testErr
		})
		if !cb.IsClosed() {
			t.Fatalf("after %d failures, state = %v, want closed", i+1, cb.State())
		}
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	if err != testErr {
		t.Fatalf("Execute() error = %v, want %v", err, testErr)
	}
	if !cb.IsOpen() {
		t.Fatalf("after 3 failures, state = %v, want open", cb.State())
	}

	// While open, the operation must not run.
	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("operation ran while circuit open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessBreaksFailureRun(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
	})

	testErr := errors.New("flaky")
	fail := func(ctx context.Context) error { return testErr }
	succeed := func(ctx context.Context) error { return nil }

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)

	// Failures were never consecutive: still closed.
	if !cb.IsClosed() {
		t.Errorf("state = %v, want closed", cb.State())
	}

	_ = cb.Execute(context.Background(), fail)
	if !cb.IsOpen() {
		t.Errorf("state = %v, want open after 2 consecutive failures", cb.State())
	}
}

func TestCircuitBreaker_SlidingWindowPrunesOldFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		FailureWindow:    20 * time.Millisecond,
	})

	testErr := errors.New("fail")
	fail := func(ctx context.Context) error { return testErr }

	_ = cb.Execute(context.Background(), fail)

	// Let the first failure age out of the window.
	time.Sleep(25 * time.Millisecond)

	_ = cb.Execute(context.Background(), fail)
	if !cb.IsClosed() {
		t.Errorf("state = %v, want closed: first failure aged out", cb.State())
	}

	_ = cb.Execute(context.Background(), fail)
	if !cb.IsOpen() {
		t.Errorf("state = %v, want open: 2 failures within window", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})
	if !cb.IsOpen() {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(15 * time.Millisecond)
	if !cb.IsHalfOpen() {
		t.Fatalf("state after reset timeout = %v, want half-open", cb.State())
	}

	// Successful trial call closes the circuit (SuccessThreshold 1).
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("trial call error = %v", err)
	}
	if !cb.IsClosed() {
		t.Errorf("state after trial success = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenNeedsConsecutiveSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		ResetTimeout:     5 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})
	time.Sleep(10 * time.Millisecond)

	succeed := func(ctx context.Context) error { return nil }

	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("first trial error = %v", err)
	}
	if !cb.IsHalfOpen() {
		t.Fatalf("state after 1 success = %v, want half-open", cb.State())
	}

	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("second trial error = %v", err)
	}
	if !cb.IsClosed() {
		t.Errorf("state after 2 successes = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		ResetTimeout:     5 * time.Millisecond,
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})
	time.Sleep(10 * time.Millisecond)

	// One success, then a failure: straight back to open.
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail again")
	})

	if !cb.IsOpen() {
		t.Fatalf("state = %v, want open after half-open failure", cb.State())
	}

	// The reset clock restarted: immediately after reopening the circuit
	// still rejects.
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_Fallback(t *testing.T) {
	fallbackErr := errors.New("fallback ran")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Fallback: func(ctx context.Context, err error) error {
			if !errors.Is(err, ErrCircuitOpen) {
				t.Errorf("fallback err = %v, want ErrCircuitOpen", err)
			}
			return fallbackErr
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("operation ran while circuit open")
		return nil
	})
	if err != fallbackErr {
		t.Errorf("Execute() error = %v, want fallback result", err)
	}
}

func TestCircuitBreaker_PerCallTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}

	// The timeout counted as a failure and tripped the breaker.
	if !cb.IsOpen() {
		t.Errorf("state = %v, want open after timeout failure", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	type transition struct{ from, to State }
	var transitions []transition

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     5 * time.Millisecond,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, transition{from, to})
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})
	time.Sleep(10 * time.Millisecond)
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })

	want := []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_ObserverCallbacks(t *testing.T) {
	var failures, successes int
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 10,
		OnFailure:        func(err error) { failures++ },
		OnSuccess:        func() { successes++ },
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})

	if successes != 1 {
		t.Errorf("OnSuccess calls = %d, want 1", successes)
	}
	if failures != 1 {
		t.Errorf("OnFailure calls = %d, want 1", failures)
	}
}

func TestCircuitBreaker_ManualOpenAndReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	cb.Open()
	if !cb.IsOpen() {
		t.Fatalf("state after Open() = %v, want open", cb.State())
	}

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}

	cb.Reset()
	if !cb.IsClosed() {
		t.Fatalf("state after Reset() = %v, want closed", cb.State())
	}

	// Reset is idempotent.
	cb.Reset()
	if !cb.IsClosed() {
		t.Errorf("state after second Reset() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 10})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	_ = cb.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})

	stats := cb.Stats()
	if stats.TotalCalls != 2 {
		t.Errorf("TotalCalls = %d, want 2", stats.TotalCalls)
	}
	if stats.TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", stats.TotalSuccesses)
	}
	if stats.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", stats.TotalFailures)
	}
	if stats.LastSuccess.IsZero() {
		t.Error("LastSuccess is zero, want recorded")
	}
	if stats.LastFailure.IsZero() {
		t.Error("LastFailure is zero, want recorded")
	}
	if stats.State != StateClosed {
		t.Errorf("State = %v, want closed", stats.State)
	}
}

func TestCircuitBreaker_IsFailurePredicate(t *testing.T) {
	benign := errors.New("benign")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, benign)
		},
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return benign })
	if !cb.IsClosed() {
		t.Errorf("state = %v, want closed: benign error is not a failure", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
