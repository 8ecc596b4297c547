package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/covenantwatch/pkg/constants"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, constants.NoiseModeStochastic, cfg.Prediction.Mode())
	assert.Equal(t, []int{30, 60, 90}, cfg.Prediction.DefaultHorizons)
	assert.Equal(t, constants.LedgerNotifyTimeout, cfg.Ledger.Timeout())
	assert.Equal(t, constants.PredictionCacheTTL, cfg.Cache.TTL())
	assert.False(t, cfg.Ledger.Enabled)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
prediction:
  noise_mode: seeded
ledger:
  enabled: true
  base_url: http://ledger.internal:8000
  timeout_ms: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("COVWATCH_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, constants.NoiseModeSeeded, cfg.Prediction.Mode())
	assert.Equal(t, "http://ledger.internal:8000", cfg.Ledger.BaseURL)
	assert.Equal(t, int64(500), cfg.Ledger.Timeout().Milliseconds())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 8080, GRPCPort: 50051},
			Database:   DatabaseConfig{Driver: "sqlite"},
			Prediction: PredictionConfig{NoiseMode: "off", DefaultHorizons: []int{30}, MaxHorizonDays: 3650},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"bad noise mode", func(c *Config) { c.Prediction.NoiseMode = "random" }, true},
		{"bad horizon", func(c *Config) { c.Prediction.DefaultHorizons = []int{0} }, true},
		{"ledger without url", func(c *Config) { c.Ledger.Enabled = true }, true},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
		{"redis without address", func(c *Config) { c.Redis.Enabled = true }, true},
		{"rate limit without budget", func(c *Config) { c.RateLimit.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
