package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.sleeps = append(r.sleeps, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) Durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}

func TestSimpleRetry_Success(t *testing.T) {
	sleeper := &recordingSleeper{}
	retry := NewSimpleRetry(3, 10*time.Millisecond).WithSleep(sleeper.Sleep)

	attempts := 0
	err := retry.Execute(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestSimpleRetry_MaxAttemptsExceeded(t *testing.T) {
	sleeper := &recordingSleeper{}
	retry := NewSimpleRetry(3, time.Second).WithSleep(sleeper.Sleep)

	attempts := 0
	err := retry.Execute(context.Background(), func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	sleeps := sleeper.Durations()
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("Expected backoff sleeps %v, got %v", want, sleeps)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestSimpleRetry_NonRetryableError(t *testing.T) {
	retry := NewSimpleRetry(3, 10*time.Millisecond)

	attempts := 0
	err := retry.Execute(context.Background(), func() error {
		attempts++
		return &statusError{StatusCode: 401, Body: "unauthorized"}
	})

	if err == nil {
		t.Error("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestSimpleRetry_RateLimitNotCounted(t *testing.T) {
	sleeper := &recordingSleeper{}
	retry := NewSimpleRetry(3, time.Second).
		WithRateLimit(60*time.Second, 10).
		WithSleep(sleeper.Sleep)

	calls := 0
	err := retry.Execute(context.Background(), func() error {
		calls++
		switch calls {
		case 1, 3:
			return errors.New("connection reset")
		case 2:
			return &rateLimitedError{RetryAfter: 5 * time.Second, HasRetryAfter: true}
		default:
			return nil
		}
	})

	if err != nil {
		t.Fatalf("Expected success on the 3rd counted attempt, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected 4 calls (3 counted + 1 rate limited), got %d", calls)
	}

	sleeps := sleeper.Durations()
	want := []time.Duration{time.Second, 5 * time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("Expected sleeps %v, got %v", want, sleeps)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestSimpleRetry_RateLimitDefaultAndBudget(t *testing.T) {
	sleeper := &recordingSleeper{}
	retry := NewSimpleRetry(3, time.Second).
		WithRateLimit(60*time.Second, 2).
		WithSleep(sleeper.Sleep)

	calls := 0
	err := retry.Execute(context.Background(), func() error {
		calls++
		return &rateLimitedError{}
	})

	var rl *rateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected the rate limit error once the wait budget is spent, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	for _, d := range sleeper.Durations() {
		if d != 60*time.Second {
			t.Errorf("Expected default retry-after of 60s, got %v", d)
		}
	}
}

func TestSimpleRetry_ContextCancellation(t *testing.T) {
	retry := NewSimpleRetry(3, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := retry.Execute(ctx, func() error {
		return errors.New("some error")
	})

	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
