package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrEmptyURL is returned when Fetch or Download is called without a URL.
var ErrEmptyURL = errors.New("empty URL")

// FetchError describes a failed request: a network error, a timeout, or a
// response outside the 2xx range. StatusCode is zero when no response was
// received.
type FetchError struct { //nolint:revive // fetch.FetchError reads better at call sites than fetch.Error
	URL        string
	StatusCode int
	Err        error

	// retryAfter is the raw Retry-After header of a 429 or 503 response.
	retryAfter string
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying transport error, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed: transport
// errors, timeouts, 408, 429 and 5xx responses.
func (e *FetchError) Retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, ErrEmptyURL) && !errors.Is(e.Err, context.Canceled)
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Timeout reports whether the failure was a timeout.
func (e *FetchError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// IsRetryable reports whether err is a FetchError worth retrying.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}

// StatusCode extracts the HTTP status from err, or zero.
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
