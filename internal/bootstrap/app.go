package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/pulsedash/pulsedash-go/internal/config"
	"github.com/pulsedash/pulsedash-go/internal/observability"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	if cfg.Observability.EnableMetrics {
		app.Metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	return app, nil
}

func (a *App) Close() {
	if a.tracer != nil {
		observability.Shutdown(context.Background(), a.tracer)
	}
}
