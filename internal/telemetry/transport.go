package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Sender delivers telemetry to the backend. Implementations report
// failure through the returned error; they never panic into the caller.
type Sender interface {
	// SendBatch posts a whole payload as one document; it succeeds or
	// fails as a unit.
	SendBatch(ctx context.Context, payload BatchPayload) error
	// SendEntry posts a single entry.
	SendEntry(ctx context.Context, entry Entry) error
}

// HTTPTransport posts telemetry over HTTP. All sends pass through a
// circuit breaker so a dead backend short-circuits delivery attempts;
// an open breaker surfaces as an ordinary send failure and feeds the
// normal requeue policy.
type HTTPTransport struct {
	endpoint      string
	batchEndpoint string
	apiKey        string
	client        *http.Client
	breaker       *gobreaker.CircuitBreaker[struct{}]
	logger        zerolog.Logger
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

func WithTransportClient(hc *http.Client) TransportOption {
	return func(t *HTTPTransport) { t.client = hc }
}

func WithTransportAPIKey(key string) TransportOption {
	return func(t *HTTPTransport) { t.apiKey = key }
}

func WithTransportLogger(logger zerolog.Logger) TransportOption {
	return func(t *HTTPTransport) { t.logger = logger }
}

// NewHTTPTransport builds a transport posting entries to endpoint and
// batches to batchEndpoint. An empty batchEndpoint selects individual
// mode in the pipeline.
func NewHTTPTransport(endpoint, batchEndpoint string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoint:      endpoint,
		batchEndpoint: batchEndpoint,
		client:        &http.Client{Timeout: 10 * time.Second},
		logger:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	t.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "telemetry-delivery",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
	return t
}

func (t *HTTPTransport) SendBatch(ctx context.Context, payload BatchPayload) error {
	if t.batchEndpoint == "" {
		return fmt.Errorf("no batch endpoint configured")
	}
	return t.post(ctx, t.batchEndpoint, payload)
}

func (t *HTTPTransport) SendEntry(ctx context.Context, entry Entry) error {
	return t.post(ctx, t.endpoint, entry)
}

func (t *HTTPTransport) post(ctx context.Context, endpoint string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode telemetry: %w", err)
	}

	_, err = t.breaker.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			req.Header.Set("X-API-Key", t.apiKey)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return struct{}{}, fmt.Errorf("telemetry endpoint returned %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})
	return err
}
