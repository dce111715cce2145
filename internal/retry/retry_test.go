package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1.5,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	errFlaky := errors.New("log not yet visible")
	calls := 0

	got, err := Do(context.Background(), zerolog.Nop(), fastPolicy(5), "find-escrow",
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errFlaky
			}
			return "0xescrow", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0xescrow" {
		t.Fatalf("got %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	errDown := errors.New("node unavailable")
	calls := 0

	_, err := Do(context.Background(), zerolog.Nop(), fastPolicy(3), "submit",
		func(context.Context) (int, error) {
			calls++
			return 0, errDown
		})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts=%d calls=%d", exhausted.Attempts, calls)
	}
	if !errors.Is(err, errDown) {
		t.Fatal("terminal error must embed the last underlying error")
	}
}

func TestDoPermanentShortCircuits(t *testing.T) {
	errFatal := errors.New("commitment mismatch")
	calls := 0

	_, err := Do(context.Background(), zerolog.Nop(), fastPolicy(5), "deploy-dst",
		func(context.Context) (int, error) {
			calls++
			return 0, Permanent(errFatal)
		})

	if !errors.Is(err, errFatal) {
		t.Fatalf("expected the fatal error, got %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatal("permanent errors must not be reported as retry exhaustion")
	}
	if calls != 1 {
		t.Fatalf("permanent error consumed retry budget: %d calls", calls)
	}
}

func TestDoRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, zerolog.Nop(), fastPolicy(5), "poll",
		func(context.Context) (int, error) {
			return 0, errors.New("transient")
		})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestWaitUntil(t *testing.T) {
	now := time.Now()

	if err := WaitUntil(context.Background(), func() time.Time { return now }, now.Add(-time.Hour)); err != nil {
		t.Fatalf("past deadline should return immediately: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitUntil(ctx, time.Now, time.Now().Add(time.Hour))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSleepCancellable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep did not honor cancellation promptly")
	}
}
