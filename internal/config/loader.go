package config

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/turtacn/covenantwatch/pkg/constants"
	"github.com/turtacn/covenantwatch/pkg/errors"
)

// LoadConfig loads the configuration from file and environment variables.
// configFile may be empty, in which case config.yaml is searched for in
// /etc/covenantwatch/ and the working directory.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/covenantwatch/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, errors.WrapError(err, errors.ErrCodeServerError, "failed to read config file")
		}
	}

	// COVWATCH_PREDICTION_NOISE_MODE overrides prediction.noise_mode, etc.
	v.SetEnvPrefix("COVWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeServerError, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.enable_pprof", false)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "covenantwatch")
	v.SetDefault("database.database", "covenantwatch")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "covenantwatch.db")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 30)
	v.SetDefault("database.max_conn_idle_time", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "covenantwatch.audit")
	v.SetDefault("kafka.consumer_group", "covenantwatch-checks")

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.base_url", "http://localhost:8000")
	v.SetDefault("ledger.timeout_ms", int(constants.LedgerNotifyTimeout.Milliseconds()))
	v.SetDefault("ledger.retry_max", 1)

	v.SetDefault("model.path", "")
	v.SetDefault("model.watch", false)

	v.SetDefault("prediction.noise_mode", string(constants.NoiseModeStochastic))
	v.SetDefault("prediction.default_horizons", constants.DefaultHorizons)
	v.SetDefault("prediction.max_horizon_days", constants.MaxHorizonDays)
	v.SetDefault("prediction.persist_history", true)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_seconds", int(constants.PredictionCacheTTL.Seconds()))
	v.SetDefault("cache.cleanup_seconds", 600)
	v.SetDefault("cache.use_redis_backing", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("monitoring.metrics_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("idempotency.ttl_seconds", 86400)
}
