package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pulsedash/pulsedash-go/internal/telemetry"
)

// Sink receives telemetry entries accepted by the collector.
type Sink interface {
	Store(ctx context.Context, entries []telemetry.Entry) error
}

// LogSink writes received entries to the collector log. Default sink for
// the dev loop.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Store(_ context.Context, entries []telemetry.Entry) error {
	for _, e := range entries {
		s.logger.Info().
			Str("id", e.ID).
			Str("kind", string(e.Kind)).
			Str("component", e.Component).
			Str("message", e.Message).
			Str("metric", e.Metric).
			Float64("value", e.Value).
			Msg("telemetry received")
	}
	return nil
}

// RedisSink appends received entries to a Redis stream so downstream
// consumers can replay them.
type RedisSink struct {
	client *redis.Client
	stream string
}

func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream}
}

func (s *RedisSink) Store(ctx context.Context, entries []telemetry.Entry) error {
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry %s: %w", e.ID, err)
		}

		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]any{
				"entry_id":  e.ID,
				"kind":      string(e.Kind),
				"component": e.Component,
				"payload":   string(payload),
				"timestamp": e.Timestamp.Unix(),
			},
		}
		if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
			return fmt.Errorf("failed to append entry to stream: %w", err)
		}
	}
	return nil
}
