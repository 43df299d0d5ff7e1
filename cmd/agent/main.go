package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsedash/pulsedash-go/internal/api"
	"github.com/pulsedash/pulsedash-go/internal/bootstrap"
	"github.com/pulsedash/pulsedash-go/internal/telemetry"
	"github.com/pulsedash/pulsedash-go/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "pulsedash-agent", "pulsedash_agent")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	// --- API client ---
	limits := api.NewRateLimitCoordinator(api.WithOnRateLimit(func(st api.RateLimitState) {
		app.Logger.Warn().
			Time("until", st.CoolingDownUntil()).
			Int("limit", st.Limit).
			Msg("backend rate limit active")
	}))
	client := api.NewClient(cfg.API.BaseURL,
		api.WithAPIKey(cfg.API.APIKey),
		api.WithLogger(app.Logger),
		api.WithMetrics(app.Metrics),
		api.WithRateLimitCoordinator(limits),
		api.WithRetryConfig(retry.Config{
			MaxRetries: cfg.API.MaxRetries,
			BaseDelay:  cfg.API.BaseDelay,
			CapDelay:   cfg.API.CapDelay,
		}),
	)

	// --- Telemetry pipeline ---
	pipeline := telemetry.NewPipeline(telemetry.Config{
		Endpoint:      cfg.Telemetry.Endpoint,
		BatchEndpoint: cfg.Telemetry.BatchEndpoint,
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval,
		MaxQueueSize:  cfg.Telemetry.MaxQueueSize,
		Enabled:       cfg.Telemetry.Enabled,
		SessionID:     cfg.Telemetry.SessionID,
		APIKey:        cfg.API.APIKey,
	},
		telemetry.WithPipelineLogger(app.Logger),
		telemetry.WithPipelineMetrics(app.Metrics),
		telemetry.WithCorrelationSource(client.Correlations()),
		telemetry.WithNotifier(telemetry.NewSignalNotifier()),
	)
	pipeline.Start()

	if dashboards, err := client.ListDashboards(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to list dashboards")
		pipeline.RecordLog("agent", telemetry.SeverityError, "dashboard list failed: "+err.Error(), nil)
	} else {
		app.Logger.Info().Int("count", len(dashboards)).Msg("Connected to backend")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	app.Logger.Info().Str("instance", cfg.InstanceID).Msg("Agent running")
	for {
		select {
		case <-heartbeat.C:
			start := time.Now()
			if err := client.Health(ctx); err != nil {
				pipeline.RecordLog("agent", telemetry.SeverityError,
					"backend health check failed: "+err.Error(),
					map[string]string{"instance": cfg.InstanceID})
				continue
			}
			pipeline.RecordMetric("agent", "health_check_latency_ms",
				float64(time.Since(start).Milliseconds()),
				map[string]string{"instance": cfg.InstanceID})
		case <-quit:
			app.Logger.Info().Msg("Shutting down agent...")
			pipeline.Close()
			app.Logger.Info().Msg("Agent exited")
			return
		}
	}
}
