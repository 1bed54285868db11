package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes how a fallible call is retried: a bounded number of
// attempts with exponential backoff and jitter between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the delays used for all external provider calls:
// 3 attempts, 2s base delay doubling per attempt, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Do invokes fn until it succeeds, the attempts are exhausted, or the context
// is cancelled. It returns the last error observed. The attempt count that
// was actually used is returned so callers can report it.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
	return attempts, lastErr
}

// backoff computes the delay before the next attempt: base * 2^(attempt-1),
// capped at MaxDelay, with up to 25% random jitter added.
func (p Policy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
