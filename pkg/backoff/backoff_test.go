package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowsAndClamps(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: time.Second, Multiplier: 2.0, MaxDelay: 3 * time.Second}

	if got := p.Delay(0); got != time.Second {
		t.Fatalf("Delay(0) = %v, want 1s", got)
	}
	if got := p.Delay(1); got != 2*time.Second {
		t.Fatalf("Delay(1) = %v, want 2s", got)
	}
	// 4s exceeds the cap.
	if got := p.Delay(2); got != 3*time.Second {
		t.Fatalf("Delay(2) = %v, want clamp at 3s", got)
	}
}

func TestDelayJitterStaysBounded(t *testing.T) {
	t.Parallel()
	p := Policy{BaseDelay: time.Second, Multiplier: 2.0, JitterFactor: 0.5}
	for i := 0; i < 100; i++ {
		d := p.Delay(0)
		if d < time.Second || d > 1500*time.Millisecond {
			t.Fatalf("jittered delay %v out of [1s, 1.5s]", d)
		}
	}
}

func TestDoStopsAfterBudget(t *testing.T) {
	t.Parallel()
	calls := 0
	errBoom := errors.New("boom")
	p := Policy{Attempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Do error = %v, want %v", err, errBoom)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoRetryIfShortCircuits(t *testing.T) {
	t.Parallel()
	calls := 0
	fatal := errors.New("fatal")
	p := Policy{
		Attempts:  5,
		BaseDelay: time.Millisecond,
		RetryIf:   func(err error) bool { return !errors.Is(err, fatal) },
	}

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do error = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable)", calls)
	}
}

func TestDoRecoversMidway(t *testing.T) {
	t.Parallel()
	calls := 0
	p := Policy{Attempts: 3, BaseDelay: time.Millisecond}

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do error = %v, want nil", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestDoHonorsContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 10, BaseDelay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(context.Context) error {
			calls++
			return errors.New("transient")
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSleepReturnsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep error = %v, want context.Canceled", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Fatalf("Sleep(0) error = %v", err)
	}
}

func TestOnRetryReportsAttempts(t *testing.T) {
	t.Parallel()
	var seen []int
	p := Policy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		OnRetry:   func(attempt int, _ error, _ time.Duration) { seen = append(seen, attempt) },
	}
	_ = Do(context.Background(), p, func(context.Context) error { return errors.New("x") })
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("OnRetry attempts = %v, want [1 2]", seen)
	}
}
