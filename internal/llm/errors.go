package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a generation failure for retry and reporting
// decisions.
type ErrorKind string

const (
	ErrRateLimited    ErrorKind = "rate_limited"
	ErrTimeout        ErrorKind = "timeout"
	ErrAuthFailed     ErrorKind = "auth_failed"
	ErrInvalidRequest ErrorKind = "invalid_request"
	ErrUnknown        ErrorKind = "unknown"
)

// GenerationError wraps a provider failure with a kind the caller can
// switch on.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Retryable reports whether a retry with backoff may succeed.
func (e *GenerationError) Retryable() bool {
	return e.Kind == ErrRateLimited || e.Kind == ErrTimeout
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthFailed
	case code == http.StatusBadRequest:
		return ErrInvalidRequest
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrUnknown
	}
}

// genErr builds a GenerationError from a raw error, detecting context
// deadline failures as timeouts.
func genErr(kind ErrorKind, err error) *GenerationError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	return &GenerationError{Kind: kind, Err: err}
}
