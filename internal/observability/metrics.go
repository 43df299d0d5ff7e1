package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Telemetry pipeline metrics
	EntriesEnqueued  *prometheus.CounterVec
	EntriesDropped   *prometheus.CounterVec
	EntriesRequeued  prometheus.Counter
	FlushesTotal     *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	DeliveryDuration prometheus.Histogram

	// API client metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIRetriesTotal    *prometheus.CounterVec
	RateLimitActive    prometheus.Gauge

	// Collector metrics
	IngestTotal    *prometheus.CounterVec
	IngestRejected prometheus.Counter
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		EntriesEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telemetry_entries_enqueued_total",
				Help:      "Total number of telemetry entries enqueued by kind",
			},
			[]string{"kind"},
		),
		EntriesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telemetry_entries_dropped_total",
				Help:      "Total number of telemetry entries dropped by reason",
			},
			[]string{"reason"},
		),
		EntriesRequeued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telemetry_entries_requeued_total",
				Help:      "Total number of failed entries returned to the queue",
			},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telemetry_flushes_total",
				Help:      "Total number of pipeline flushes by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "telemetry_queue_depth",
				Help:      "Current number of buffered telemetry entries",
			},
		),
		DeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "telemetry_delivery_duration_seconds",
				Help:      "Telemetry delivery duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by method and status",
			},
			[]string{"method", "status"},
		),
		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		APIRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_retries_total",
				Help:      "Total number of API call retries by call class",
			},
			[]string{"class"},
		),
		RateLimitActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "api_rate_limit_active",
				Help:      "Whether a server-imposed cool-down is in effect (0 or 1)",
			},
		),
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_entries_total",
				Help:      "Total number of telemetry entries received by mode",
			},
			[]string{"mode"},
		),
		IngestRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_rejected_total",
				Help:      "Total number of rejected ingest requests",
			},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.EntriesEnqueued,
		m.EntriesDropped,
		m.EntriesRequeued,
		m.FlushesTotal,
		m.QueueDepth,
		m.DeliveryDuration,
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.APIRetriesTotal,
		m.RateLimitActive,
		m.IngestTotal,
		m.IngestRejected,
	)

	return m
}
