package engine

import (
	"context"
	"errors"
	"time"

	"github.com/scenark/scenark/pkg/schema"
)

// RetryPolicy bounds step retries. Delays escalate as BaseDelay << attempt,
// so the defaults produce 1s, 2s, 4s between the four total attempts.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is the production retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Backoff returns the delay before the given retry (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay << attempt
}

// IsRetryable reports whether a step failure is worth retrying. Transport
// failures and 5xx/429 provider responses are retryable; other 4xx responses
// and local validation failures are terminal.
func IsRetryable(err error) bool {
	var serr *schema.ScenarkError
	if errors.As(err, &serr) {
		return serr.IsRetryable()
	}
	// Unclassified errors are treated as transient.
	return true
}

// waitBackoff sleeps for the given duration unless the context ends first.
func waitBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
