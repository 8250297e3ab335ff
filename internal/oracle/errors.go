package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RateLimitError signals a 429 from the oracle, distinct from other
// failures so callers can honor Retry-After before the next attempt.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError extracts a RateLimitError from an error chain.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// IsTransient reports whether an oracle failure is worth retrying: rate
// limits, timeouts, server-side errors, and connection drops. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if _, ok := IsRateLimitError(err); ok {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	for _, marker := range []string{
		"status 429", "rate limit",
		"status 500", "status 502", "status 503", "status 504",
		"timeout", "deadline exceeded",
		"connection refused", "connection reset", "EOF",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses a Retry-After header value (delta-seconds form).
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
