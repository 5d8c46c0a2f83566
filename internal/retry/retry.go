// Package retry provides the exponential-backoff retry policy used around
// the VLM assessor call, whose rate-limit responses are recoverable with a
// short wait rather than a hard failure.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	gohypolog "gohypo/internal"
)

// Config describes one backoff policy. The zero value is not usable;
// construct via DefaultVLMConfig or populate explicitly from configuration.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultVLMConfig retries on rate-limit per the configured backoff for the
// VLM assessor call: a handful of attempts with a short initial wait,
// capped well under the surrounding request timeout.
func DefaultVLMConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     4 * time.Second,
		Multiplier:      2.0,
	}
}

// RetryableError marks an error as eligible for another attempt; anything
// else is treated as permanent and returned immediately.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string { return e.Cause.Error() }
func (e *RetryableError) Unwrap() error { return e.Cause }

// Retryable wraps an error so Do will retry it instead of failing fast.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Cause: err}
}

// Do runs fn under cfg's exponential backoff policy. fn signals a
// recoverable failure (e.g. an HTTP 429) by returning an error wrapped with
// Retryable; any other error is returned immediately without further
// attempts. label is used only for structured log lines.
func Do[T any](ctx context.Context, cfg Config, logger *gohypolog.Logger, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = gohypolog.DefaultLogger
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialInterval
	eb.MaxInterval = cfg.MaxInterval
	eb.Multiplier = cfg.Multiplier

	attempt := 0
	operation := func() (T, error) {
		attempt++
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}

		var retryable *RetryableError
		if !isRetryable(err, &retryable) {
			logger.Error("%s failed permanently on attempt %d: %v", label, attempt, err)
			return out, backoff.Permanent(err)
		}
		logger.Warn("%s attempt %d failed, retrying: %v", label, attempt, retryable.Cause)
		return out, retryable.Cause
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(cfg.MaxAttempts)))
}

func isRetryable(err error, target **RetryableError) bool {
	re, ok := err.(*RetryableError)
	if !ok {
		return false
	}
	*target = re
	return true
}
