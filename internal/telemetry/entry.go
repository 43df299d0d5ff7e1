package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two telemetry entry shapes.
type Kind string

const (
	KindLog    Kind = "log"
	KindMetric Kind = "metric"
)

// Severity levels for log entries.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Entry is one buffered unit of telemetry: a diagnostic log record or a
// performance metric sample. Entries are immutable once created.
type Entry struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Severity  Severity          `json:"severity,omitempty"`
	Message   string            `json:"message,omitempty"`
	Metric    string            `json:"metric,omitempty"`
	Value     float64           `json:"value,omitempty"`
	Component string            `json:"component"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// NewLogEntry builds a log entry stamped with the current time.
func NewLogEntry(component string, severity Severity, message string, ctx map[string]string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Kind:      KindLog,
		Severity:  severity,
		Message:   message,
		Component: component,
		Timestamp: time.Now().UTC(),
		Context:   ctx,
	}
}

// NewMetricEntry builds a metric sample stamped with the current time.
func NewMetricEntry(component, metric string, value float64, ctx map[string]string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Kind:      KindMetric,
		Metric:    metric,
		Value:     value,
		Component: component,
		Timestamp: time.Now().UTC(),
		Context:   ctx,
	}
}

// BatchPayload is the snapshot of drained entries sent in batch mode.
// Constructed at drain time, never mutated after.
type BatchPayload struct {
	Entries   []Entry `json:"entries"`
	SessionID string  `json:"session_id,omitempty"`
}
