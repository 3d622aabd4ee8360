package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: network faults, 5xx-equivalent
	// responses, bridge crashes.
	ErrTransient = errors.New("transient failure")
	// ErrRateLimited marks throttling responses. Use WrapRateLimited to carry
	// the server-supplied retry-after hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidRequest marks malformed requests that will never succeed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAuth marks authentication or authorization failures.
	ErrAuth = errors.New("authentication failure")
	// ErrNotFound marks missing remote resources (playlist, track).
	ErrNotFound = errors.New("not found")
	// ErrPermission marks insufficient-scope failures on mutating calls.
	ErrPermission = errors.New("permission denied")
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later retry classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// rateLimitError carries the server-supplied retry-after hint alongside the
// ErrRateLimited marker.
type rateLimitError struct {
	detail     string
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.detail, e.retryAfter)
}

func (e *rateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// WrapRateLimited tags an error as a throttling response with an explicit
// retry-after duration recoverable via RetryAfter.
func WrapRateLimited(step, operation string, retryAfter time.Duration, err error) error {
	detail := buildDetail(step, operation, "rate limited")
	wrapped := &rateLimitError{detail: detail, retryAfter: retryAfter}
	if err != nil {
		return fmt.Errorf("%w: %w", wrapped, err)
	}
	return wrapped
}

// RetryAfter extracts the server-supplied retry-after hint from a rate-limit
// error, reporting whether one was present.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return rl.retryAfter, true
	}
	return 0, false
}

// Retryable reports whether the error is worth another attempt. Unclassified
// errors are treated as transient so that external flakiness does not abort
// a run prematurely.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrAuth),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermission):
		return false
	}
	return true
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
