package common

import (
	"context"
	"testing"
	"time"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Millisecond, Factor: 2, MaxAttempts: 3}
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return E(CodeNetwork, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return E(CodeExchangeRejected, "margin insufficient")
	})
	if calls != 1 {
		t.Errorf("permanent errors must not be retried, got %d calls", calls)
	}
	if CodeOf(err) != CodeExchangeRejected {
		t.Errorf("expected EXCHANGE_REJECTED, got %s", CodeOf(err))
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return E(CodeTimeout, "deadline")
	})
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if err == nil {
		t.Fatal("expected final error after exhausting attempts")
	}
}
