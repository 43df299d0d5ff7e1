package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []Entry
	batches  []BatchPayload
	entryErr func(Entry) error
	batchErr error
	onSend   func(Entry)
}

func (s *fakeSender) SendEntry(_ context.Context, e Entry) error {
	s.mu.Lock()
	s.sent = append(s.sent, e)
	onSend := s.onSend
	s.mu.Unlock()
	if onSend != nil {
		onSend(e)
	}
	if s.entryErr != nil {
		return s.entryErr(e)
	}
	return nil
}

func (s *fakeSender) SendBatch(_ context.Context, payload BatchPayload) error {
	s.mu.Lock()
	s.batches = append(s.batches, payload)
	s.mu.Unlock()
	return s.batchErr
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeBeacon struct {
	mu        sync.Mutex
	bodies    [][]byte
	endpoints []string
	err       error
}

func (b *fakeBeacon) Send(endpoint string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints = append(b.endpoints, endpoint)
	b.bodies = append(b.bodies, append([]byte(nil), body...))
	return b.err
}

func (b *fakeBeacon) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bodies)
}

func newTestPipeline(cfg Config, sender Sender, beacon BeaconSender, logBuf *bytes.Buffer) *Pipeline {
	cfg.Enabled = true
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Hour
	}
	opts := []PipelineOption{WithSender(sender)}
	if beacon != nil {
		opts = append(opts, WithBeacon(beacon))
	}
	if logBuf != nil {
		opts = append(opts, WithPipelineLogger(zerolog.New(logBuf)))
	}
	return NewPipeline(cfg, opts...)
}

func failureLogCount(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), "telemetry delivery failed")
}

func TestFlush_AllSuccess(t *testing.T) {
	var buf bytes.Buffer
	sender := &fakeSender{}
	p := newTestPipeline(Config{}, sender, nil, &buf)

	for i := 0; i < 3; i++ {
		p.RecordLog("test", SeverityInfo, "ok", nil)
	}
	p.Flush(context.Background(), "test")

	if p.queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", p.queue.Len())
	}
	if sender.sentCount() != 3 {
		t.Fatalf("expected 3 sends, got %d", sender.sentCount())
	}
	if n := failureLogCount(&buf); n != 0 {
		t.Fatalf("expected no failure log, got %d", n)
	}
}

func TestFlush_PartialFailureRequeuesOnlyFailed(t *testing.T) {
	var buf bytes.Buffer
	sender := &fakeSender{
		entryErr: func(e Entry) error {
			if e.Message == "entry 2" {
				return io.ErrUnexpectedEOF
			}
			return nil
		},
	}
	p := newTestPipeline(Config{}, sender, nil, &buf)

	for i := 1; i <= 3; i++ {
		p.Record(logEntry(i))
	}
	p.Flush(context.Background(), "test")

	left := p.queue.DrainAll()
	if len(left) != 1 {
		t.Fatalf("expected 1 requeued entry, got %d", len(left))
	}
	if left[0].Message != "entry 2" {
		t.Fatalf("expected the failed entry to be requeued, got %q", left[0].Message)
	}
	if n := failureLogCount(&buf); n != 1 {
		t.Fatalf("expected exactly one aggregate failure log, got %d", n)
	}
	if !strings.Contains(buf.String(), `"failed":1`) || !strings.Contains(buf.String(), `"total":3`) {
		t.Fatalf("aggregate log missing failed/total counts: %s", buf.String())
	}
}

func TestFlush_AllFailureRequeuesAll(t *testing.T) {
	var buf bytes.Buffer
	sender := &fakeSender{entryErr: func(Entry) error { return io.ErrUnexpectedEOF }}
	p := newTestPipeline(Config{}, sender, nil, &buf)

	for i := 1; i <= 3; i++ {
		p.Record(logEntry(i))
	}
	p.Flush(context.Background(), "test")

	if p.queue.Len() != 3 {
		t.Fatalf("expected all 3 entries requeued, got %d", p.queue.Len())
	}
	if !strings.Contains(buf.String(), `"failed":3`) || !strings.Contains(buf.String(), `"total":3`) {
		t.Fatalf("aggregate log missing 3/3 counts: %s", buf.String())
	}
}

func TestFlush_RequeueCapacityGuardDropsFailed(t *testing.T) {
	var buf bytes.Buffer
	var p *Pipeline
	var once sync.Once
	sender := &fakeSender{entryErr: func(Entry) error { return io.ErrUnexpectedEOF }}
	// Producers keep pushing while the flush is in flight.
	sender.onSend = func(Entry) {
		once.Do(func() {
			p.Record(logEntry(101))
			p.Record(logEntry(102))
		})
	}
	p = newTestPipeline(Config{MaxQueueSize: 3, BatchSize: 100}, sender, nil, &buf)

	for i := 1; i <= 3; i++ {
		p.Record(logEntry(i))
	}
	p.Flush(context.Background(), "test")

	// 2 fresh entries + 3 failed would exceed capacity: the failed ones
	// are dropped and nothing is logged for them.
	left := p.queue.DrainAll()
	if len(left) != 2 {
		t.Fatalf("expected only the 2 fresh entries, got %d", len(left))
	}
	for _, e := range left {
		if e.Message != "entry 101" && e.Message != "entry 102" {
			t.Fatalf("unexpected surviving entry %q", e.Message)
		}
	}
	if n := failureLogCount(&buf); n != 0 {
		t.Fatalf("expected no aggregate failure log when dropped, got %d", n)
	}
}

func TestFlush_BatchMode(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPipeline(Config{BatchEndpoint: "http://example/batch", SessionID: "sess-1"}, sender, nil, nil)

	for i := 1; i <= 3; i++ {
		p.Record(logEntry(i))
	}
	p.Flush(context.Background(), "test")

	if len(sender.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(sender.batches))
	}
	if got := sender.batches[0]; len(got.Entries) != 3 || got.SessionID != "sess-1" {
		t.Fatalf("unexpected batch payload: %+v", got)
	}
	if p.queue.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", p.queue.Len())
	}
}

func TestFlush_BatchModeFailureRequeuesWholeBatch(t *testing.T) {
	var buf bytes.Buffer
	sender := &fakeSender{batchErr: io.ErrUnexpectedEOF}
	p := newTestPipeline(Config{BatchEndpoint: "http://example/batch"}, sender, nil, &buf)

	for i := 1; i <= 3; i++ {
		p.Record(logEntry(i))
	}
	p.Flush(context.Background(), "test")

	if p.queue.Len() != 3 {
		t.Fatalf("expected whole batch requeued, got %d", p.queue.Len())
	}
	if n := failureLogCount(&buf); n != 1 {
		t.Fatalf("expected one aggregate failure log, got %d", n)
	}
}

func TestFlush_EmptyQueueIsNoOp(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPipeline(Config{}, sender, nil, nil)

	p.Flush(context.Background(), "test")
	p.Flush(context.Background(), "test")

	if sender.sentCount() != 0 {
		t.Fatalf("expected no sends, got %d", sender.sentCount())
	}
}

func TestThresholdTriggersFlush(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPipeline(Config{BatchSize: 2}, sender, &fakeBeacon{}, nil)
	p.Start()
	defer p.Close()

	p.RecordLog("test", SeverityInfo, "one", nil)
	p.RecordLog("test", SeverityInfo, "two", nil)

	deadline := time.Now().Add(2 * time.Second)
	for sender.sentCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("threshold flush did not happen, sent %d", sender.sentCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIntervalTriggersFlush(t *testing.T) {
	sender := &fakeSender{}
	p := newTestPipeline(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, sender, &fakeBeacon{}, nil)
	p.Start()
	defer p.Close()

	p.RecordLog("test", SeverityInfo, "one", nil)

	deadline := time.Now().Add(2 * time.Second)
	for sender.sentCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("interval flush did not happen")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClose_BeaconFlushesRemaining(t *testing.T) {
	beacon := &fakeBeacon{}
	p := newTestPipeline(Config{Endpoint: "http://example/telemetry", SessionID: "sess-9"}, &fakeSender{}, beacon, nil)

	p.Record(logEntry(1))
	p.Record(logEntry(2))
	p.Close()

	if beacon.calls() != 1 {
		t.Fatalf("expected exactly one beacon send, got %d", beacon.calls())
	}
	var payload BatchPayload
	if err := json.Unmarshal(beacon.bodies[0], &payload); err != nil {
		t.Fatalf("beacon body is not a batch payload: %v", err)
	}
	if len(payload.Entries) != 2 || payload.SessionID != "sess-9" {
		t.Fatalf("unexpected beacon payload: %+v", payload)
	}
	if p.queue.Len() != 0 {
		t.Fatalf("expected drained queue, got %d", p.queue.Len())
	}

	// Close is idempotent: no second send.
	p.Close()
	if beacon.calls() != 1 {
		t.Fatalf("expected no further beacon sends, got %d", beacon.calls())
	}
}

func TestClose_EmptyQueueSendsNothing(t *testing.T) {
	beacon := &fakeBeacon{}
	p := newTestPipeline(Config{}, &fakeSender{}, beacon, nil)

	p.Close()
	if beacon.calls() != 0 {
		t.Fatalf("expected no beacon send on empty queue, got %d", beacon.calls())
	}
}

func TestClose_BeaconRejectedFallsBackToKeepAlivePost(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	beacon := &fakeBeacon{err: io.ErrClosedPipe}
	p := newTestPipeline(Config{Endpoint: srv.URL}, &fakeSender{}, beacon, nil)

	p.Record(logEntry(1))
	p.Close()

	select {
	case body := <-received:
		var payload BatchPayload
		if err := json.Unmarshal(body, &payload); err != nil || len(payload.Entries) != 1 {
			t.Fatalf("fallback body not the serialized queue: %v %s", err, body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive fallback POST never arrived")
	}
}

func TestNotifierDrivesTeardown(t *testing.T) {
	notifier := NewManualNotifier()
	beacon := &fakeBeacon{}
	p := newTestPipeline(Config{}, &fakeSender{}, beacon, nil)
	p.notifier = notifier
	p.Start()

	p.Record(logEntry(1))
	notifier.Notify()

	if beacon.calls() != 1 {
		t.Fatalf("expected teardown beacon send, got %d", beacon.calls())
	}
	if notifier.Active() != 0 {
		t.Fatalf("expected subscription cancelled, still %d active", notifier.Active())
	}
}

func TestDisabledPipelineDropsEverything(t *testing.T) {
	beacon := &fakeBeacon{}
	sender := &fakeSender{}
	p := NewPipeline(Config{Enabled: false}, WithSender(sender), WithBeacon(beacon))
	p.Start()

	p.RecordLog("test", SeverityInfo, "ignored", nil)
	if p.queue.Len() != 0 {
		t.Fatalf("disabled pipeline buffered an entry")
	}
	p.Close()
	if beacon.calls() != 0 || sender.sentCount() != 0 {
		t.Fatal("disabled pipeline sent telemetry")
	}
}

type staticCorrelation string

func (s staticCorrelation) Last() string { return string(s) }

func TestErrorEntriesStampedWithCorrelationID(t *testing.T) {
	p := newTestPipeline(Config{}, &fakeSender{}, nil, nil)
	p.corr = staticCorrelation("req-123")

	p.RecordLog("ui", SeverityError, "render failed", nil)
	p.RecordLog("ui", SeverityInfo, "render ok", nil)

	entries := p.queue.DrainAll()
	if entries[0].RequestID != "req-123" {
		t.Fatalf("error entry missing correlation id: %+v", entries[0])
	}
	if entries[1].RequestID != "" {
		t.Fatalf("non-error entry should not carry a correlation id: %+v", entries[1])
	}
}
