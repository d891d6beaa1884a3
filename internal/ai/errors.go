package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError is a non-2xx response from an upstream AI service. Keeping the
// status code lets callers separate transient failures (retryable) from
// permanent ones (malformed request, auth).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying: rate limits, timeouts
// and upstream 5xx. Anything else propagates immediately.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode == 408 || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
