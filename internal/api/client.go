package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulsedash/pulsedash-go/internal/observability"
	"github.com/pulsedash/pulsedash-go/pkg/retry"
)

const (
	// HeaderRequestID carries the backend-issued correlation id.
	HeaderRequestID = "X-Request-ID"
	// HeaderTraceID carries the backend's trace identifier.
	HeaderTraceID = "X-Trace-ID"

	headerAPIKey = "X-API-Key"

	maxErrorBody = 64 << 10
)

// errorBody is the structured failure payload the backend returns.
type errorBody struct {
	Detail string `json:"detail"`
}

// Client is the typed HTTP client for the Pulsedash backend. Every call
// goes through the per-class retry policy; 429 responses feed the rate
// limit coordinator and correlation ids are captured from every response.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	logger       zerolog.Logger
	retryCfg     retry.Config
	limits       *RateLimitCoordinator
	correlations *CorrelationStore
	tracer       trace.Tracer
	metrics      *observability.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func WithRetryConfig(cfg retry.Config) ClientOption {
	return func(c *Client) { c.retryCfg = cfg }
}

func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithRateLimitCoordinator substitutes the coordinator, e.g. one carrying
// a UI observer callback.
func WithRateLimitCoordinator(rl *RateLimitCoordinator) ClientOption {
	return func(c *Client) { c.limits = rl }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       zerolog.Nop(),
		retryCfg:     retry.DefaultConfig(),
		limits:       NewRateLimitCoordinator(),
		correlations: NewCorrelationStore(),
		tracer:       otel.Tracer("pulsedash.api"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correlations exposes the request-correlation store so the telemetry
// pipeline can stamp error entries.
func (c *Client) Correlations() *CorrelationStore {
	return c.correlations
}

// RateLimits exposes the rate-limit coordinator for UI state.
func (c *Client) RateLimits() *RateLimitCoordinator {
	return c.limits
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.call(ctx, retry.Read, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, retry.Write, http.MethodPost, path, in, out)
}

func (c *Client) call(ctx context.Context, class retry.Class, method, path string, in, out any) error {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("%s %s", method, path))
	defer span.End()

	attempt := 0
	err := retry.Do(ctx, c.retryCfg, class, func() error {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.APIRetriesTotal.WithLabelValues(classLabel(class)).Inc()
			}
			c.logger.Debug().Str("method", method).Str("path", path).Int("attempt", attempt).Msg("retrying request")
		}
		attempt++
		return c.do(ctx, method, path, in, out)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// do performs a single attempt: build, send, capture correlation headers,
// classify failures, decode the body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if id := resp.Header.Get(HeaderRequestID); id != "" {
		c.correlations.Record(path, id)
	} else {
		c.correlations.Record(path, resp.Header.Get(HeaderTraceID))
	}

	if c.metrics != nil {
		c.metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
		c.metrics.APIRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(path, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Status: resp.StatusCode,
			Kind:   KindParse,
			Detail: "malformed response body",
			Err:    err,
		}
	}
	return nil
}

// transportError classifies a failure where no response arrived.
func (c *Client) transportError(err error) error {
	kind := KindNetwork
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		kind = KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Status: 0, Kind: kind, Detail: err.Error(), Err: err}
}

func (c *Client) errorFromResponse(path string, resp *http.Response) error {
	apiErr := &Error{
		Status:    resp.StatusCode,
		Kind:      classify(resp.StatusCode),
		RequestID: resp.Header.Get(HeaderRequestID),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = c.limits.Observe(resp.Header)
		if c.metrics != nil {
			c.metrics.RateLimitActive.Set(1)
		}
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var parsed errorBody
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Detail != "" {
		apiErr.Detail = parsed.Detail
	} else {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("request_id", apiErr.RequestID).
		Msg("request failed")
	return apiErr
}

func classLabel(class retry.Class) string {
	if class == retry.Write {
		return "write"
	}
	return "read"
}
