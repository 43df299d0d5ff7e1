package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// DefaultRetryAfter is used when a 429 response omits a Retry-After value.
const DefaultRetryAfter = 30 * time.Second

// RateLimitState is a snapshot of the server's rate-limit bookkeeping,
// observed from the most recent 429 response.
type RateLimitState struct {
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
	ObservedAt time.Time
}

// CoolingDownUntil returns the instant the active cool-down ends.
func (s RateLimitState) CoolingDownUntil() time.Time {
	return s.ObservedAt.Add(s.RetryAfter)
}

// RateLimitCoordinator tracks server-imposed rate limiting so user-facing
// surfaces can reflect an active cool-down and the retry layer can honor
// the server's delay.
type RateLimitCoordinator struct {
	mu       sync.Mutex
	state    RateLimitState
	active   bool
	onChange func(RateLimitState)
	now      func() time.Time
}

// RateLimitOption configures a RateLimitCoordinator.
type RateLimitOption func(*RateLimitCoordinator)

// WithOnRateLimit registers an observer invoked on every 429 observation.
func WithOnRateLimit(fn func(RateLimitState)) RateLimitOption {
	return func(c *RateLimitCoordinator) { c.onChange = fn }
}

func NewRateLimitCoordinator(opts ...RateLimitOption) *RateLimitCoordinator {
	c := &RateLimitCoordinator{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Observe extracts rate-limit bookkeeping from a 429 response's headers
// and updates the coordinator. Returns the retry-after delay to use,
// falling back to DefaultRetryAfter when the server omits it.
func (c *RateLimitCoordinator) Observe(h http.Header) time.Duration {
	retryAfter := DefaultRetryAfter
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	c.mu.Lock()
	c.state = RateLimitState{
		Limit:      headerInt(h, "X-RateLimit-Limit"),
		Remaining:  headerInt(h, "X-RateLimit-Remaining"),
		RetryAfter: retryAfter,
		ObservedAt: c.now(),
	}
	if reset := headerInt(h, "X-RateLimit-Reset"); reset > 0 {
		c.state.Reset = time.Unix(int64(reset), 0)
	}
	c.active = true
	state := c.state
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
	return retryAfter
}

// State returns the last observed snapshot and whether a cool-down is
// still in effect.
func (c *RateLimitCoordinator) State() (RateLimitState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return RateLimitState{}, false
	}
	if c.now().After(c.state.CoolingDownUntil()) {
		c.active = false
		return c.state, false
	}
	return c.state, true
}

// Clear drops any recorded state, e.g. at session boundaries.
func (c *RateLimitCoordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = RateLimitState{}
	c.active = false
}

func headerInt(h http.Header, key string) int {
	v := h.Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
