package common

import (
	"context"
	"log"
	"time"
)

// RetryPolicy controls exponential backoff for transient exchange failures.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultRetry matches the venue client defaults: 1s base, doubling, 3 attempts.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Second, Factor: 2, MaxAttempts: 3}
}

// Do runs fn with backoff, retrying only retryable structured errors.
// The last error is returned once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || i == attempts {
			return err
		}
		log.Printf("🔄 %s failed (attempt %d/%d), retrying in %s: %v", label, i, attempts, delay, err)
		select {
		case <-ctx.Done():
			return Wrap(CodeTimeout, ctx.Err(), "%s cancelled during backoff", label)
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}
	return err
}
