package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Simulate)
	assert.Equal(t, 30*time.Second, cfg.Bluetooth.DiscoveryTimeout)
	assert.Equal(t, 10*time.Second, cfg.Bluetooth.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.Bluetooth.ReadTimeout)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Plan.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Plan.Timeout)
	assert.Equal(t, "127.0.0.1:8787", cfg.API.Addr)
	assert.Equal(t, 7, cfg.API.ChartSeed)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "fitness", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "json", cfg.MQTT.Encoding)

	assert.Equal(t, 30, cfg.Profile.Age)
	assert.Equal(t, "general_fitness", cfg.Profile.FitnessGoal)
}

func TestLoad_Layering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fitlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
bluetooth:
  connect_timeout: 3s
  selector:
    custom_service: fff0
    custom_characteristic: fff1
plan:
  base_url: https://plans.example.test
profile:
  age: 52
mqtt:
  enabled: true
  qos: 1
`), 0o600))

	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FITLINK_MQTT_USERNAME=from-dotenv\nFITLINK_API_ADDR=127.0.0.1:9000\n"), 0o600))

	t.Setenv("FITLINK_API_ADDR", "0.0.0.0:9999")
	t.Setenv("FITLINK_CONNECT_TIMEOUT", "4s")
	t.Cleanup(func() { _ = os.Unsetenv("FITLINK_MQTT_USERNAME") })

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "yaml MUST override defaults")
	assert.Equal(t, 4*time.Second, cfg.Bluetooth.ConnectTimeout, "env MUST override yaml")
	assert.Equal(t, 30*time.Second, cfg.Bluetooth.DiscoveryTimeout, "unset keys MUST keep defaults")
	assert.Equal(t, "fff0", cfg.Bluetooth.Selector.CustomServiceID)
	assert.Equal(t, "https://plans.example.test", cfg.Plan.BaseURL)
	assert.Equal(t, 52, cfg.Profile.Age)
	assert.Equal(t, "Male", cfg.Profile.Gender)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, "from-dotenv", cfg.MQTT.Username)
	assert.Equal(t, "0.0.0.0:9999", cfg.API.Addr, "dotenv MUST NOT override the real environment")

	opts := cfg.SessionOptions()
	assert.Equal(t, 4*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 5*time.Second, opts.ReadTimeout)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "nope.env"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("bluetooth: [1, 2"), 0o600))
		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("FITLINK_READ_TIMEOUT", "soon")
		t.Setenv("FITLINK_SIMULATE", "maybe")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FITLINK_READ_TIMEOUT")
		assert.Contains(t, err.Error(), "FITLINK_SIMULATE")
	})

	t.Run("invalid selector", func(t *testing.T) {
		t.Setenv("FITLINK_CUSTOM_SERVICE", "xyz")
		_, err := Load("")
		assert.ErrorContains(t, err, "bluetooth.selector")
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv("FITLINK_LOG_LEVEL", "loud")
		_, err := Load("")
		assert.ErrorContains(t, err, "invalid log level: loud")
	})
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{"creates logger with debug level", "debug", logrus.DebugLevel},
		{"creates logger with info level", "info", logrus.InfoLevel},
		{"creates logger with warn level", "warn", logrus.WarnLevel},
		{"creates logger with error level", "error", logrus.ErrorLevel},
		{"falls back to info", "bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
