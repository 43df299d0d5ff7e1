package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pulsedash/pulsedash-go/internal/observability"
)

// Config lists every recognized pipeline option and its default.
type Config struct {
	// Endpoint receives one POST per entry in individual mode.
	Endpoint string
	// BatchEndpoint, when set, switches delivery to batch mode.
	BatchEndpoint string
	// BatchSize is the queue depth that triggers an immediate flush.
	BatchSize int
	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration
	// MaxQueueSize bounds the buffer; overflow drops the oldest entry.
	MaxQueueSize int
	// Enabled gates the whole pipeline; when false Record is a no-op.
	Enabled bool
	// SessionID, when set, is attached to every batch payload.
	SessionID string
	// APIKey, when set, is sent on every delivery request.
	APIKey string
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:      "http://localhost:8090/v1/telemetry",
		BatchSize:     20,
		FlushInterval: 10 * time.Second,
		MaxQueueSize:  200,
		Enabled:       true,
	}
}

// CorrelationSource supplies the most recent backend request id, used to
// stamp outgoing error entries for cross-system log correlation.
type CorrelationSource interface {
	Last() string
}

// Pipeline buffers telemetry entries and delivers them in the background.
// Producers never block: overflow drops the oldest entry, and delivery
// failures are recovered locally — a flush never surfaces an error.
type Pipeline struct {
	cfg      Config
	queue    *BoundedQueue
	sender   Sender
	beacon   BeaconSender
	fallback *http.Client
	logger   zerolog.Logger
	metrics  *observability.Metrics
	corr     CorrelationSource
	notifier Notifier
	sub      Subscription
	senders  int

	kick      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithSender(s Sender) PipelineOption {
	return func(p *Pipeline) { p.sender = s }
}

func WithBeacon(b BeaconSender) PipelineOption {
	return func(p *Pipeline) { p.beacon = b }
}

func WithPipelineLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

func WithPipelineMetrics(m *observability.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func WithCorrelationSource(src CorrelationSource) PipelineOption {
	return func(p *Pipeline) { p.corr = src }
}

// WithNotifier subscribes the pipeline to host teardown notifications so
// the unload-safe flush runs before the process exits.
func WithNotifier(n Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// WithSendConcurrency caps concurrent posts in individual mode.
func WithSendConcurrency(n int) PipelineOption {
	return func(p *Pipeline) { p.senders = n }
}

// NewPipeline builds a pipeline from cfg. Zero-valued fields fall back
// to DefaultConfig.
func NewPipeline(cfg Config, opts ...PipelineOption) *Pipeline {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}

	p := &Pipeline{
		cfg:      cfg,
		queue:    NewBoundedQueue(cfg.MaxQueueSize),
		fallback: &http.Client{Timeout: beaconTimeout},
		logger:   zerolog.Nop(),
		senders:  8,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.sender == nil {
		p.sender = NewHTTPTransport(cfg.Endpoint, cfg.BatchEndpoint,
			WithTransportAPIKey(cfg.APIKey),
			WithTransportLogger(p.logger),
		)
	}
	if p.beacon == nil {
		p.beacon = newHTTPBeacon(cfg.APIKey)
	}
	return p
}

// Start launches the background scheduler and registers the teardown
// subscription. A disabled pipeline does nothing.
func (p *Pipeline) Start() {
	if !p.cfg.Enabled {
		return
	}
	p.wg.Add(1)
	go p.run()
	if p.notifier != nil {
		p.sub = p.notifier.Subscribe(p.Close)
	}
}

// RecordLog buffers a diagnostic log entry. Error entries are stamped
// with the last observed backend request id.
func (p *Pipeline) RecordLog(component string, severity Severity, message string, ctx map[string]string) {
	e := NewLogEntry(component, severity, message, ctx)
	if severity == SeverityError && p.corr != nil {
		e.RequestID = p.corr.Last()
	}
	p.push(e)
}

// RecordMetric buffers a performance metric sample.
func (p *Pipeline) RecordMetric(component, metric string, value float64, ctx map[string]string) {
	p.push(NewMetricEntry(component, metric, value, ctx))
}

// Record buffers a pre-built entry.
func (p *Pipeline) Record(e Entry) {
	p.push(e)
}

func (p *Pipeline) push(e Entry) {
	if !p.cfg.Enabled {
		return
	}
	if p.metrics != nil {
		if p.queue.Len() == p.queue.Cap() {
			p.metrics.EntriesDropped.WithLabelValues("overflow").Inc()
		}
		p.metrics.EntriesEnqueued.WithLabelValues(string(e.Kind)).Inc()
	}
	p.queue.Push(e)
	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(p.queue.Len()))
	}
	if p.queue.Len() >= p.cfg.BatchSize {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Flush(context.Background(), "interval")
		case <-p.kick:
			p.Flush(context.Background(), "threshold")
		case <-p.done:
			return
		}
	}
}

// Flush drains the queue and delivers its contents. It never returns an
// error: failures are requeued or dropped per the reconciliation policy.
// A second trigger racing an in-flight flush drains an empty queue and
// is a no-op.
func (p *Pipeline) Flush(ctx context.Context, trigger string) {
	entries := p.queue.DrainAll()
	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(p.queue.Len()))
	}
	if len(entries) == 0 {
		return
	}

	start := time.Now()
	var outcome string
	if p.cfg.BatchEndpoint != "" {
		outcome = p.flushBatch(ctx, entries)
	} else {
		outcome = p.flushIndividual(ctx, entries)
	}
	if p.metrics != nil {
		p.metrics.FlushesTotal.WithLabelValues(trigger, outcome).Inc()
		p.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	}
}

// flushBatch delivers the whole payload as a unit; there is no partial
// failure, the batch is requeued or dropped whole.
func (p *Pipeline) flushBatch(ctx context.Context, entries []Entry) string {
	err := p.sender.SendBatch(ctx, BatchPayload{Entries: entries, SessionID: p.cfg.SessionID})
	if err == nil {
		return "success"
	}
	if !p.requeue(entries) {
		return "dropped"
	}
	p.logger.Warn().
		Err(err).
		Int("failed", len(entries)).
		Int("total", len(entries)).
		Msg("telemetry delivery failed")
	return "failure"
}

// flushIndividual posts every entry concurrently and settles all
// outcomes before inspecting them, so one failed request never cancels
// the rest.
func (p *Pipeline) flushIndividual(ctx context.Context, entries []Entry) string {
	results := make([]error, len(entries))
	g := new(errgroup.Group)
	g.SetLimit(p.senders)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			results[i] = p.sender.SendEntry(ctx, e)
			return nil
		})
	}
	g.Wait()

	var failed []Entry
	for i, err := range results {
		if err != nil {
			failed = append(failed, entries[i])
		}
	}
	if len(failed) == 0 {
		return "success"
	}
	if !p.requeue(failed) {
		return "dropped"
	}
	p.logger.Warn().
		Int("failed", len(failed)).
		Int("total", len(entries)).
		Msg("telemetry delivery failed")
	if len(failed) == len(entries) {
		return "failure"
	}
	return "partial"
}

// requeue returns failed entries to the queue when capacity allows.
// Under sustained overload they are dropped instead; that loss is
// accepted and not reported per entry.
func (p *Pipeline) requeue(failed []Entry) bool {
	if p.queue.Len()+len(failed) > p.queue.Cap() {
		if p.metrics != nil {
			p.metrics.EntriesDropped.WithLabelValues("requeue_overflow").Add(float64(len(failed)))
		}
		return false
	}
	for _, e := range failed {
		p.queue.Push(e)
	}
	if p.metrics != nil {
		p.metrics.EntriesRequeued.Add(float64(len(failed)))
		p.metrics.QueueDepth.Set(float64(p.queue.Len()))
	}
	return true
}

// Close stops the scheduler, cancels the teardown subscription, lets any
// in-flight delivery finish on its own, and runs one unload-safe flush
// for whatever is left in the queue. Safe to call more than once.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		if p.sub != nil {
			p.sub.Cancel()
		}
		p.wg.Wait()
		p.beaconFlush()
	})
}

// beaconFlush drains synchronously and hands the serialized contents to
// the fire-and-forget primitive. No retries, no outcome inspection; if
// the primitive rejects the send, one keep-alive POST is attempted as a
// fallback.
func (p *Pipeline) beaconFlush() {
	entries := p.queue.DrainAll()
	if len(entries) == 0 {
		return
	}
	body, err := json.Marshal(BatchPayload{Entries: entries, SessionID: p.cfg.SessionID})
	if err != nil {
		return
	}
	endpoint := p.cfg.BatchEndpoint
	if endpoint == "" {
		endpoint = p.cfg.Endpoint
	}
	if err := p.beacon.Send(endpoint, body); err != nil {
		p.logger.Debug().Err(err).Msg("beacon send rejected, using keep-alive fallback")
		p.keepAliveFallback(endpoint, body)
	}
}

func (p *Pipeline) keepAliveFallback(endpoint string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "keep-alive")
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}
	resp, err := p.fallback.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
