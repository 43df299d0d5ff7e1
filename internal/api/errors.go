package api

import (
	"fmt"
	"time"
)

// Kind classifies an API failure for retry and reporting decisions.
type Kind string

const (
	// KindNetwork means no response was received at all (status 0).
	KindNetwork Kind = "network"
	// KindClient is a 4xx other than 429; never retried.
	KindClient Kind = "client"
	// KindRateLimited is a 429; retried using the server-supplied delay.
	KindRateLimited Kind = "rate_limited"
	// KindServer is a 5xx; retried for read calls only.
	KindServer Kind = "server"
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindParse is a malformed response body; never retried.
	KindParse Kind = "parse"
)

// Error is the typed error surfaced to callers after retries exhaust.
type Error struct {
	Status     int
	Kind       Kind
	Detail     string
	RequestID  string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: %s (status %d, request %s): %s", e.Kind, e.Status, e.RequestID, e.Detail)
	}
	return fmt.Sprintf("api: %s (status %d): %s", e.Kind, e.Status, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus implements the status hook consumed by pkg/retry.
func (e *Error) HTTPStatus() int {
	return e.Status
}

// Timeout reports whether the failure was a deadline expiry.
func (e *Error) Timeout() bool {
	return e.Kind == KindTimeout
}

// RetryAfterHint returns the server-supplied retry delay, if any.
func (e *Error) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// classify maps an HTTP status to an error kind.
func classify(status int) Kind {
	switch {
	case status == 0:
		return KindNetwork
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindClient
	default:
		return KindParse
	}
}
