package collector

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsedash/pulsedash-go/internal/observability"
	"github.com/pulsedash/pulsedash-go/internal/telemetry"
)

// Handler serves the collector's ingest and inspection endpoints.
type Handler struct {
	sink    Sink
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewHandler(sink Sink, logger zerolog.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{sink: sink, logger: logger, metrics: metrics}
}

// IngestEntry accepts one telemetry entry.
func (h *Handler) IngestEntry(w http.ResponseWriter, r *http.Request) {
	var e telemetry.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		h.reject(w, http.StatusBadRequest, "malformed entry body")
		return
	}
	if err := h.sink.Store(r.Context(), []telemetry.Entry{e}); err != nil {
		h.logger.Error().Err(err).Msg("sink store failed")
		h.reject(w, http.StatusInternalServerError, "failed to store entry")
		return
	}
	if h.metrics != nil {
		h.metrics.IngestTotal.WithLabelValues("individual").Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// IngestBatch accepts a whole batch payload. The unload-safe client path
// posts the same JSON document as an octet-stream blob, so the body is
// decoded regardless of content type.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var payload telemetry.BatchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.reject(w, http.StatusBadRequest, "malformed batch body")
		return
	}
	if err := h.sink.Store(r.Context(), payload.Entries); err != nil {
		h.logger.Error().Err(err).Msg("sink store failed")
		h.reject(w, http.StatusInternalServerError, "failed to store batch")
		return
	}
	if h.metrics != nil {
		h.metrics.IngestTotal.WithLabelValues("batch").Add(float64(len(payload.Entries)))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"accepted": len(payload.Entries),
	})
}

// Healthz reports collector liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListDashboards serves a canned dashboard list so the client can be
// exercised end to end against the collector during development.
func (h *Handler) ListDashboards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dashboards": []map[string]any{
			{
				"id":           "dev-overview",
				"name":         "Dev Overview",
				"slug":         "dev-overview",
				"widget_count": 4,
				"updated_at":   time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
}

func (h *Handler) reject(w http.ResponseWriter, status int, detail string) {
	if h.metrics != nil {
		h.metrics.IngestRejected.Inc()
	}
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
