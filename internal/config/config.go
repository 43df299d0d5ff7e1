package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Collector     CollectorConfig     `mapstructure:"collector"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

// APIConfig holds the dashboard backend client configuration
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries uint          `mapstructure:"max_retries" validate:"max=10"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	CapDelay   time.Duration `mapstructure:"cap_delay" validate:"gt=0"`
}

// TelemetryConfig holds the delivery pipeline configuration. Every
// recognized option is listed here with a default; nothing is
// duck-typed at runtime.
type TelemetryConfig struct {
	Endpoint      string        `mapstructure:"endpoint" validate:"required,url"`
	BatchEndpoint string        `mapstructure:"batch_endpoint" validate:"omitempty,url"`
	BatchSize     int           `mapstructure:"batch_size" validate:"min=1"`
	FlushInterval time.Duration `mapstructure:"flush_interval" validate:"gt=0"`
	MaxQueueSize  int           `mapstructure:"max_queue_size" validate:"min=1"`
	Enabled       bool          `mapstructure:"enabled"`
	SessionID     string        `mapstructure:"session_id"`
}

// CollectorConfig holds the local dev ingest server configuration
type CollectorConfig struct {
	Port              int             `mapstructure:"port"`
	RequestsPerMinute int             `mapstructure:"requests_per_minute"`
	ReadTimeout       time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration   `mapstructure:"shutdown_timeout"`
	CORS              CORSConfig      `mapstructure:"cors"`
	RedisSink         RedisSinkConfig `mapstructure:"redis_sink"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RedisSinkConfig holds the optional Redis stream sink for received
// telemetry. Disabled by default; the collector logs entries instead.
type RedisSinkConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Stream   string `mapstructure:"stream"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PULSEDASH")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pulsedash")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields have valid values.
func (c *Config) Validate() error {
	var errs []error

	if err := validator.New().Struct(c); err != nil {
		errs = append(errs, err)
	}
	if c.Collector.Port <= 0 || c.Collector.Port > 65535 {
		errs = append(errs, fmt.Errorf("collector.port must be between 1 and 65535, got %d", c.Collector.Port))
	}
	if c.Collector.RequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("collector.requests_per_minute must be positive"))
	}
	if c.Collector.RedisSink.Enabled && c.Collector.RedisSink.Host == "" {
		errs = append(errs, fmt.Errorf("collector.redis_sink.host is required when the sink is enabled"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// API client defaults
	v.SetDefault("api.base_url", "http://localhost:8090")
	v.SetDefault("api.api_key", "")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.base_delay", "500ms")
	v.SetDefault("api.cap_delay", "30s")

	// Telemetry pipeline defaults
	v.SetDefault("telemetry.endpoint", "http://localhost:8090/v1/telemetry")
	v.SetDefault("telemetry.batch_endpoint", "")
	v.SetDefault("telemetry.batch_size", 20)
	v.SetDefault("telemetry.flush_interval", "10s")
	v.SetDefault("telemetry.max_queue_size", 200)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.session_id", "")

	// Collector defaults
	v.SetDefault("collector.port", 8090)
	v.SetDefault("collector.requests_per_minute", 600)
	v.SetDefault("collector.read_timeout", "15s")
	v.SetDefault("collector.write_timeout", "15s")
	v.SetDefault("collector.shutdown_timeout", "30s")
	v.SetDefault("collector.cors.allowed_origins", []string{"*"})
	v.SetDefault("collector.cors.allow_credentials", false)
	v.SetDefault("collector.redis_sink.enabled", false)
	v.SetDefault("collector.redis_sink.host", "localhost")
	v.SetDefault("collector.redis_sink.port", 6379)
	v.SetDefault("collector.redis_sink.db", 0)
	v.SetDefault("collector.redis_sink.password", "")
	v.SetDefault("collector.redis_sink.stream", "pulsedash:telemetry")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Instance ID
	v.SetDefault("instance_id", "pulsedash-1")
}

// RedisAddr returns the Redis sink address
func (c *RedisSinkConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
