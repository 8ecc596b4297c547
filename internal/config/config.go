package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
)

// Config is the root configuration of the covenantwatch service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Model       ModelConfig       `mapstructure:"model"`
	Prediction  PredictionConfig  `mapstructure:"prediction"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Log         LogConfig         `mapstructure:"log"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	GRPCPort     int      `mapstructure:"grpc_port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int      `mapstructure:"write_timeout"` // in seconds
	EnablePprof  bool     `mapstructure:"enable_pprof"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// HTTPAddr returns host:port for the HTTP listener.
func (c *ServerConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddr returns host:port for the gRPC listener.
func (c *ServerConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres | sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"`  // in minutes
	MaxConnIdleTime int    `mapstructure:"max_conn_idle_time"` // in minutes
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Addresses    []string `mapstructure:"addresses"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	// SigningKey, when set, adds an HMAC signature header to each message.
	SigningKey string `mapstructure:"signing_key"`

	// ChecksTopic, when set, is consumed for covenant check measurements
	// reported by upstream monitoring systems.
	ChecksTopic   string `mapstructure:"checks_topic"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

// LedgerConfig configures the breach ledger bridge.
type LedgerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
	RetryMax  int    `mapstructure:"retry_max"`
}

// Timeout returns the per-notification deadline.
func (c *LedgerConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return constants.LedgerNotifyTimeout
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ModelConfig points at the versioned model parameters. An empty path means
// the built-in default parameters are used.
type ModelConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

type PredictionConfig struct {
	NoiseMode       string `mapstructure:"noise_mode"`
	DefaultHorizons []int  `mapstructure:"default_horizons"`
	MaxHorizonDays  int    `mapstructure:"max_horizon_days"`
	PersistHistory  bool   `mapstructure:"persist_history"`
}

// Mode returns the configured noise mode as a typed constant.
func (c *PredictionConfig) Mode() constants.NoiseMode {
	return constants.NoiseMode(strings.ToLower(c.NoiseMode))
}

type CacheConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	TTLSeconds      int  `mapstructure:"ttl_seconds"`
	CleanupSeconds  int  `mapstructure:"cleanup_seconds"`
	UseRedisBacking bool `mapstructure:"use_redis_backing"`
}

// TTL returns the prediction cache lifetime.
func (c *CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return constants.PredictionCacheTTL
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type MonitoringConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPath    string `mapstructure:"metrics_path"`
}

// RateLimitConfig throttles the prediction endpoints per caller.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// IdempotencyConfig deduplicates write requests carrying an Idempotency-Key header.
type IdempotencyConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	TTLSeconds int  `mapstructure:"ttl_seconds"`
}

// TTL returns how long a seen idempotency key is remembered.
func (c *IdempotencyConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.ErrInvalidRequest(fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return errors.ErrInvalidRequest(fmt.Sprintf("server.grpc_port out of range: %d", c.Server.GRPCPort))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.ErrInvalidRequest(fmt.Sprintf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}

	if !c.Prediction.Mode().IsValid() {
		return errors.ErrInvalidRequest(fmt.Sprintf("prediction.noise_mode must be stochastic, seeded or off, got %q", c.Prediction.NoiseMode))
	}
	for _, h := range c.Prediction.DefaultHorizons {
		if h <= 0 || h > c.Prediction.MaxHorizonDays {
			return errors.ErrInvalidRequest(fmt.Sprintf("prediction.default_horizons contains invalid horizon %d", h))
		}
	}

	if c.Ledger.Enabled && c.Ledger.BaseURL == "" {
		return errors.ErrInvalidRequest("ledger.base_url is required when the ledger is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.ErrInvalidRequest("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return errors.ErrInvalidRequest("rate_limit.requests_per_minute must be positive when rate limiting is enabled")
	}
	if c.Redis.Enabled && len(c.Redis.Addresses) == 0 {
		return errors.ErrInvalidRequest("redis.addresses is required when redis is enabled")
	}
	return nil
}
