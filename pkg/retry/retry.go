package retry

import (
	"context"
	"errors"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Class distinguishes read calls (safe to repeat) from write calls
// (repeating risks duplicated side effects).
type Class int

const (
	Read Class = iota
	Write
)

// Config holds retry configuration
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries uint
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		CapDelay:   30 * time.Second,
	}
}

// statuser is implemented by errors that carry an HTTP status.
// Status 0 means no response was received at all.
type statuser interface {
	HTTPStatus() int
}

// hinter is implemented by errors that carry a server-supplied
// retry-after hint (from a 429 response).
type hinter interface {
	RetryAfterHint() time.Duration
}

// Retryable reports whether err warrants another attempt for the given
// call class:
//
//	429               retried for both classes
//	5xx               retried for reads only
//	timeout           retried for both classes
//	no response (0)   retried for both classes, same as timeout
//	other 4xx         never retried
func Retryable(class Class, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var to interface{ Timeout() bool }
	if errors.As(err, &to) && to.Timeout() {
		return true
	}
	var st statuser
	if !errors.As(err, &st) {
		return false
	}
	switch status := st.HTTPStatus(); {
	case status == 429:
		return true
	case status == 0:
		return true
	case status >= 500:
		return class == Read
	default:
		return false
	}
}

// Delay computes the wait before retry number attempt (0-based).
// A positive server retry-after hint takes precedence over the
// exponential schedule; both are capped at cfg.CapDelay.
func Delay(cfg Config, attempt uint, err error) time.Duration {
	var h hinter
	if errors.As(err, &h) {
		if d := h.RetryAfterHint(); d > 0 {
			return minDelay(d, cfg.CapDelay)
		}
	}
	if attempt > 30 {
		attempt = 30
	}
	return minDelay(cfg.BaseDelay<<attempt, cfg.CapDelay)
}

func minDelay(a, b time.Duration) time.Duration {
	if b > 0 && a > b {
		return b
	}
	return a
}

// Do executes fn, retrying per the class policy with exponential backoff.
func Do(ctx context.Context, cfg Config, class Class, fn func() error) error {
	return retrygo.Do(
		fn,
		retrygo.Context(ctx),
		retrygo.Attempts(cfg.MaxRetries+1),
		retrygo.RetryIf(func(err error) bool {
			return Retryable(class, err)
		}),
		retrygo.DelayType(func(n uint, err error, _ *retrygo.Config) time.Duration {
			return Delay(cfg, n, err)
		}),
		retrygo.LastErrorOnly(true),
	)
}

// DoWithResult executes a function with retry and returns a result
func DoWithResult[T any](ctx context.Context, cfg Config, class Class, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, class, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
