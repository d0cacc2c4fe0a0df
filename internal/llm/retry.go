package llm

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// MaxRetries is the number of extra attempts made for retryable errors.
const MaxRetries = 3

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// Retrying retries the wrapped provider on *RetryableError.
type Retrying struct {
	next    Provider
	log     *slog.Logger
	retries int
	backoff func(int) time.Duration
}

// WithRetry wraps p so 429 and 5xx responses are retried up to MaxRetries
// times with jittered exponential backoff.
func WithRetry(p Provider, log *slog.Logger) *Retrying {
	return &Retrying{next: p, log: log, retries: MaxRetries, backoff: Backoff}
}

func (r *Retrying) Complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			wait := r.backoff(attempt - 1)
			r.log.Warn("retrying LLM call", "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		out, err := r.next.Complete(ctx, system, user)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}
