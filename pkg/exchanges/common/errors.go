package common

import (
	"errors"
	"fmt"
)

// Code classifies failures across component boundaries.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeUnsupportedSymbol    Code = "UNSUPPORTED_SYMBOL"
	CodeSymbolFetchFailed    Code = "SYMBOL_FETCH_FAILED"
	CodeInsufficientNotional Code = "INSUFFICIENT_NOTIONAL"
	CodeMarkPriceUnavailable Code = "MARK_PRICE_UNAVAILABLE"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeExchangeRejected     Code = "EXCHANGE_REJECTED"
	CodeNetwork              Code = "NETWORK_ERROR"
	CodePositionNotFound     Code = "POSITION_NOT_FOUND"
	CodeOrderNotFound        Code = "ORDER_NOT_FOUND"
	CodeCooldownActive       Code = "COOLDOWN_ACTIVE"
	CodeOutOfRange           Code = "OUT_OF_RANGE"
	CodeAlreadyClosed        Code = "ALREADY_CLOSED"
	CodeDatabase             Code = "DATABASE_ERROR"
	CodeTimeout              Code = "TIMEOUT"
	CodeUnknown              Code = "UNKNOWN_ERROR"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// E builds a structured error.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a structured error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithMeta attaches a metadata key to the error and returns it.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// CodeOf extracts the structured code, defaulting to CodeUnknown.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether the failure is transient and worth a retry.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeRateLimited, CodeNetwork, CodeTimeout, CodeMarkPriceUnavailable:
		return true
	}
	return false
}
