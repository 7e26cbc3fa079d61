// Package backoff implements bounded retries with exponential backoff and
// jitter for transient failures (flaky network calls, busy databases).
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy describes a retry schedule:
//
//	delay(n) = min(BaseDelay * Multiplier^n + jitter, MaxDelay)
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// JitterFactor in [0,1]: random variation added to each delay to avoid
	// synchronized retries.
	JitterFactor float64

	// RetryIf decides whether an error is worth another attempt.
	// Nil means retry everything.
	RetryIf func(error) bool

	// OnRetry is invoked before each sleep. Attempt is 1-based.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Default matches the store contract: 3 attempts, 1s base delay doubling
// each attempt (1s, 2s between tries).
func Default() Policy {
	return Policy{
		Attempts:     3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Delay returns the sleep before try attempt+2 (attempt is 0-based).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2.0
	}
	d := time.Duration(float64(base) * math.Pow(mult, float64(attempt)))
	if p.JitterFactor > 0 {
		d += time.Duration(rand.Float64() * p.JitterFactor * float64(d))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, the attempt budget is spent, RetryIf
// rejects the error, or ctx is done. It returns the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if p.RetryIf != nil && !p.RetryIf(last) {
			return last
		}
		if i == attempts-1 {
			break
		}
		delay := p.Delay(i)
		if p.OnRetry != nil {
			p.OnRetry(i+1, last, delay)
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return last
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
