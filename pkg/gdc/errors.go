package gdc

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyScope is returned when a query names no project, case or file.
var ErrEmptyScope = errors.New("no project_id or list of UUIDs provided")

// HTTPError represents a non-200 response from the GDC API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable returns true for server side errors and rate limiting.
func (e *HTTPError) IsRetryable() bool {
	return retryableStatus(e.StatusCode)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// Error wraps a failed GDC API operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gdc %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if err is an HTTP error worth retrying.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}
