package collector

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsedash/pulsedash-go/internal/api"
	"github.com/pulsedash/pulsedash-go/internal/config"
)

// rateLimitRetryAfter is the cool-down advertised on 429 responses.
const rateLimitRetryAfter = 30 * time.Second

// RouterDeps carries everything the collector router needs.
type RouterDeps struct {
	Handler       *Handler
	CORS          config.CORSConfig
	RatePerMinute int
	EnableMetrics bool
}

// NewRouter builds the collector's HTTP surface: ingest endpoints, a
// canned dashboard catalog, health, and Prometheus metrics. Ingest is
// rate limited per client IP; 429 responses carry Retry-After and
// rate-limit headers so the client stack sees the same contract as the
// real backend.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
		AllowCredentials: deps.CORS.AllowCredentials,
	}))

	r.Get("/healthz", deps.Handler.Healthz)
	if deps.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(deps.RatePerMinute))
		r.Post("/v1/telemetry", deps.Handler.IngestEntry)
		r.Post("/v1/telemetry/batch", deps.Handler.IngestBatch)
		r.Get("/v1/dashboards", deps.Handler.ListDashboards)
	})

	return r
}

// requestID stamps every response with a fresh correlation id, the
// header the client's correlation store captures.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(api.HeaderRequestID, uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func rateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitRetryAfter.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"detail":      "rate limit exceeded",
				"code":        "rate_limit",
				"retry_after": int(rateLimitRetryAfter.Seconds()),
			})
		}),
	)
}
