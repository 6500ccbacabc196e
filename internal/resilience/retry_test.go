package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Retry(context.Background(), RetryConfig{Name: "op", MaxAttempts: 3, Delay: time.Millisecond},
		func(context.Context) (string, Outcome, error) {
			calls++
			if calls < 3 {
				return "", OutcomeRetryable, errBoom
			}
			return "ok", OutcomeOK, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want %q after 3", got, calls, "ok")
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Retry(context.Background(), RetryConfig{Name: "op", MaxAttempts: 3, Delay: time.Millisecond},
		func(context.Context) (int, Outcome, error) {
			calls++
			return 0, OutcomeRetryable, errBoom
		})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("error should wrap the last attempt error, got: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_FatalStopsImmediately(t *testing.T) {
	t.Parallel()

	fatal := errors.New("bad request")
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{Name: "op", MaxAttempts: 5, Delay: time.Millisecond},
		func(context.Context) (int, Outcome, error) {
			calls++
			return 0, OutcomeFatal, fatal
		})
	if !errors.Is(err, fatal) {
		t.Fatalf("error = %v, want the fatal error", err)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("fatal error must not be wrapped as exhausted retries")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Retry(ctx, RetryConfig{Name: "op", MaxAttempts: 3, Delay: time.Millisecond},
		func(context.Context) (int, Outcome, error) {
			calls++
			return 0, OutcomeOK, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestRetry_CancelledDuringDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Retry(ctx, RetryConfig{Name: "op", MaxAttempts: 3, Delay: time.Hour},
			func(context.Context) (int, Outcome, error) {
				calls++
				return 0, OutcomeRetryable, errBoom
			})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
