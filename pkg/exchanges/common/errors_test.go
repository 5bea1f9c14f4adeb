package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	base := E(CodeRateLimited, "too fast")
	wrapped := fmt.Errorf("submit failed: %w", base)

	if CodeOf(base) != CodeRateLimited {
		t.Errorf("CodeOf(base) = %s", CodeOf(base))
	}
	if CodeOf(wrapped) != CodeRateLimited {
		t.Errorf("CodeOf(wrapped) = %s, want RATE_LIMITED through the chain", CodeOf(wrapped))
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Error("plain errors should map to CodeUnknown")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		code Code
		want bool
	}{
		{CodeRateLimited, true},
		{CodeNetwork, true},
		{CodeTimeout, true},
		{CodeMarkPriceUnavailable, true},
		{CodeValidation, false},
		{CodeExchangeRejected, false},
		{CodeUnsupportedSymbol, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(E(tc.code, "x")); got != tc.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeNetwork, cause, "GET /positions")
	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause via errors.Is")
	}
}
