package gateway

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for 404s on resource lookups (stamps, references).
var ErrNotFound = errors.New("not found")

// NetworkError wraps transport-level failures: connection refused, timeouts,
// DNS. These are the only errors worth retrying blindly.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error calling %s: %s", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Retryable() bool { return true }

// StatusError is a non-2xx response other than the 402s handled by the
// payment flow. 5xx responses are transient from the client's point of view;
// 4xx are not.
type StatusError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: %s returned status %d: %s", e.Op, e.URL, e.StatusCode, body)
}

func (e *StatusError) Retryable() bool { return e.StatusCode >= 500 }
