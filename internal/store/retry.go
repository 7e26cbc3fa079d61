package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"polynotify/pkg/backoff"
)

// Store operations retry transient backend failures 3 times with the base
// delay doubling each attempt. Integrity violations (duplicate keys) are
// handled inline by each driver and never retried.
const (
	retryAttempts  = 3
	retryBaseDelay = time.Second
)

// withRetry runs op under the store retry policy. On exhaustion it logs at
// error level with the attempt count and returns the zero value plus the
// last error; callers treat that as "nothing read / nothing saved" and keep
// the cycle alive.
func withRetry[T any](ctx context.Context, log zerolog.Logger, name string, transient func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	attempts := 0
	policy := backoff.Policy{
		Attempts:   retryAttempts,
		BaseDelay:  retryBaseDelay,
		Multiplier: 2.0,
		RetryIf:    transient,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn().Err(err).
				Str("op", name).
				Int("attempt", attempt).
				Int("max_attempts", retryAttempts).
				Dur("retry_in", delay).
				Msg("store operation failed; retrying")
		},
	}
	err := backoff.Do(ctx, policy, func(ctx context.Context) error {
		attempts++
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		log.Error().Err(err).
			Str("op", name).
			Int("attempts", attempts).
			Msg("store operation failed after retries")
		var zero T
		return zero, err
	}
	return out, nil
}
