package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FITLINK_"

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`
	Simulate bool   `yaml:"simulate"`

	Bluetooth BluetoothConfig   `yaml:"bluetooth"`
	Plan      PlanConfig        `yaml:"plan"`
	Profile   telemetry.Profile `yaml:"profile"`
	API       APIConfig         `yaml:"api"`
	MQTT      MQTTConfig        `yaml:"mqtt"`
}

// BluetoothConfig configures the device session.
type BluetoothConfig struct {
	DiscoveryTimeout time.Duration          `yaml:"discovery_timeout" default:"30s"`
	ConnectTimeout   time.Duration          `yaml:"connect_timeout" default:"10s"`
	ReadTimeout      time.Duration          `yaml:"read_timeout" default:"5s"`
	Selector         device.ServiceSelector `yaml:"selector"`
}

// PlanConfig configures the plan generation endpoint.
type PlanConfig struct {
	BaseURL string        `yaml:"base_url" default:"http://127.0.0.1:8000"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout" default:"60s"`
}

// APIConfig configures the local status API.
type APIConfig struct {
	Addr      string `yaml:"addr" default:"127.0.0.1:8787"`
	ChartSeed int    `yaml:"chart_seed" default:"7"`
}

// MQTTConfig configures reading republishing.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker" default:"tcp://127.0.0.1:1883"`
	ClientID    string `yaml:"client_id" default:"fitlink"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix" default:"fitness"`
	Encoding    string `yaml:"encoding" default:"json"`
	QoS         int    `yaml:"qos"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load layers defaults, the optional YAML file at path and FITLINK_*
// environment variables, in that order. envFiles are loaded into the
// environment first without overriding variables already set; with none
// given, ./.env is loaded when present.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Simulate = getEnvBool("SIMULATE", c.Simulate, &errs)

	c.Bluetooth.DiscoveryTimeout = getEnvDuration("DISCOVERY_TIMEOUT", c.Bluetooth.DiscoveryTimeout, &errs)
	c.Bluetooth.ConnectTimeout = getEnvDuration("CONNECT_TIMEOUT", c.Bluetooth.ConnectTimeout, &errs)
	c.Bluetooth.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.Bluetooth.ReadTimeout, &errs)
	c.Bluetooth.Selector.CustomServiceID = getEnv("CUSTOM_SERVICE", c.Bluetooth.Selector.CustomServiceID)
	c.Bluetooth.Selector.CustomCharacteristicID = getEnv("CUSTOM_CHARACTERISTIC", c.Bluetooth.Selector.CustomCharacteristicID)

	c.Plan.BaseURL = getEnv("PLAN_URL", c.Plan.BaseURL)
	c.Plan.Token = getEnv("PLAN_TOKEN", c.Plan.Token)
	c.Plan.Timeout = getEnvDuration("PLAN_TIMEOUT", c.Plan.Timeout, &errs)

	c.API.Addr = getEnv("API_ADDR", c.API.Addr)
	c.API.ChartSeed = getEnvInt("CHART_SEED", c.API.ChartSeed, &errs)

	c.MQTT.Enabled = getEnvBool("MQTT_ENABLED", c.MQTT.Enabled, &errs)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)
	c.MQTT.Encoding = getEnv("MQTT_ENCODING", c.MQTT.Encoding)
	c.MQTT.QoS = getEnvInt("MQTT_QOS", c.MQTT.QoS, &errs)
	return errors.Join(errs...)
}

// Validate checks values that cannot be checked by parsing alone.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, _, err := c.Bluetooth.Selector.Normalized(); err != nil {
		return fmt.Errorf("bluetooth.selector: %w", err)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// SessionOptions returns the device session timeouts.
func (c *Config) SessionOptions() device.Options {
	return device.Options{
		DiscoveryTimeout: c.Bluetooth.DiscoveryTimeout,
		ConnectTimeout:   c.Bluetooth.ConnectTimeout,
		ReadTimeout:      c.Bluetooth.ReadTimeout,
	}
}

// ParseLogLevel accepts the logrus level names.
func ParseLogLevel(s string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", s)
	}
	return level, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}
	return d
}
