package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/pulsedash/pulsedash-go/internal/bootstrap"
	"github.com/pulsedash/pulsedash-go/internal/collector"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "pulsedash-collector", "pulsedash_collector")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()
	cfg := app.Config

	// --- Sink selection ---
	var sink collector.Sink = collector.NewLogSink(app.Logger)
	if cfg.Collector.RedisSink.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Collector.RedisSink.RedisAddr(),
			DB:       cfg.Collector.RedisSink.DB,
			Password: cfg.Collector.RedisSink.Password,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			app.Logger.Fatal().Err(err).Msg("Failed to connect to Redis sink")
		}
		defer client.Close()
		sink = collector.NewRedisSink(client, cfg.Collector.RedisSink.Stream)
		app.Logger.Info().Str("stream", cfg.Collector.RedisSink.Stream).Msg("Redis sink enabled")
	}

	// --- Router ---
	handler := collector.NewHandler(sink, app.Logger, app.Metrics)
	router := collector.NewRouter(collector.RouterDeps{
		Handler:       handler,
		CORS:          cfg.Collector.CORS,
		RatePerMinute: cfg.Collector.RequestsPerMinute,
		EnableMetrics: cfg.Observability.EnableMetrics,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Collector.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Collector.ReadTimeout,
		WriteTimeout: cfg.Collector.WriteTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting collector")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start collector")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down collector...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Collector.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Collector forced to shutdown")
	}
	app.Logger.Info().Msg("Collector exited")
}
