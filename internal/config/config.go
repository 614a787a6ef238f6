// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Access policy engines selectable with ACCESS_POLICY_ENGINE.
const (
	PolicyEngineNative = "native"
	PolicyEngineRego   = "rego"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint is the OpenTelemetry collector address. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// RedisAddr enables the Redis notification publisher when set (e.g. "localhost:6379").
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// EmailAPIURL and EmailAPIKey enable the HTTP mail client. When either is empty,
	// removal notices are only logged.
	EmailAPIURL string `mapstructure:"EMAIL_API_URL"`
	EmailAPIKey string `mapstructure:"EMAIL_API_KEY"`
	EmailSender string `mapstructure:"EMAIL_SENDER"`

	// AccessPolicyEngine selects the access decider: "native" (default) or "rego".
	AccessPolicyEngine string `mapstructure:"ACCESS_POLICY_ENGINE"`
	// AccessPolicyFile is an optional Rego file replacing the embedded policy. Requires the rego engine.
	AccessPolicyFile string `mapstructure:"ACCESS_POLICY_FILE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "project-tracker")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("EMAIL_API_URL", "")
	v.SetDefault("EMAIL_API_KEY", "")
	v.SetDefault("EMAIL_SENDER", "noreply@project-tracker.local")
	v.SetDefault("ACCESS_POLICY_ENGINE", PolicyEngineNative)
	v.SetDefault("ACCESS_POLICY_FILE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	case "":
		cfg.LogLevel = "info"
	default:
		return nil, fmt.Errorf("config: LOG_LEVEL %q must be one of debug, info, warn, error", cfg.LogLevel)
	}

	cfg.AccessPolicyEngine = strings.ToLower(strings.TrimSpace(cfg.AccessPolicyEngine))
	switch cfg.AccessPolicyEngine {
	case PolicyEngineNative, PolicyEngineRego:
	case "":
		cfg.AccessPolicyEngine = PolicyEngineNative
	default:
		return nil, fmt.Errorf("config: ACCESS_POLICY_ENGINE %q must be %q or %q", cfg.AccessPolicyEngine, PolicyEngineNative, PolicyEngineRego)
	}
	if cfg.AccessPolicyFile != "" && cfg.AccessPolicyEngine != PolicyEngineRego {
		return nil, errors.New("config: ACCESS_POLICY_FILE requires ACCESS_POLICY_ENGINE=rego")
	}

	if cfg.RedisDB < 0 {
		return nil, errors.New("config: REDIS_DB must not be negative")
	}

	return &cfg, nil
}

// EmailEnabled reports whether the HTTP mail client is configured.
func (c *Config) EmailEnabled() bool {
	return c != nil && c.EmailAPIURL != "" && c.EmailAPIKey != ""
}

// RedisEnabled reports whether notifications are also published to Redis.
func (c *Config) RedisEnabled() bool {
	return c != nil && strings.TrimSpace(c.RedisAddr) != ""
}
