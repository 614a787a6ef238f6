package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.ServiceName != "project-tracker" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "project-tracker")
	}
	if cfg.AccessPolicyEngine != PolicyEngineNative {
		t.Errorf("AccessPolicyEngine = %q, want %q", cfg.AccessPolicyEngine, PolicyEngineNative)
	}
	if cfg.RedisEnabled() {
		t.Error("Redis should be disabled by default")
	}
	if cfg.EmailEnabled() {
		t.Error("email should be disabled by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "DEBUG")
	os.Setenv("REDIS_ADDR", "localhost:6379")
	os.Setenv("REDIS_DB", "2")
	os.Setenv("EMAIL_API_URL", "https://mail.example.com/send")
	os.Setenv("EMAIL_API_KEY", "k")
	os.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if !cfg.RedisEnabled() || cfg.RedisDB != 2 {
		t.Errorf("Redis = %q db %d, want enabled db 2", cfg.RedisAddr, cfg.RedisDB)
	}
	if !cfg.EmailEnabled() {
		t.Error("email should be enabled with URL and key")
	}
	if !cfg.OTLPInsecure {
		t.Error("OTLPInsecure should be true")
	}
}

func TestLoad_Validation(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"unknown engine", map[string]string{"ACCESS_POLICY_ENGINE": "cedar"}},
		{"policy file without rego", map[string]string{"ACCESS_POLICY_FILE": "/etc/access.rego"}},
		{"negative redis db", map[string]string{"REDIS_DB": "-1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("GRPC_ADDR", ":8080")
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
		})
	}
}

func TestLoad_RegoPolicyFile(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":8080")
	os.Setenv("ACCESS_POLICY_ENGINE", "Rego")
	os.Setenv("ACCESS_POLICY_FILE", "/etc/access.rego")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessPolicyEngine != PolicyEngineRego {
		t.Errorf("AccessPolicyEngine = %q, want %q", cfg.AccessPolicyEngine, PolicyEngineRego)
	}
	if cfg.AccessPolicyFile != "/etc/access.rego" {
		t.Errorf("AccessPolicyFile = %q", cfg.AccessPolicyFile)
	}
}

func TestEmailEnabled_NeedsKey(t *testing.T) {
	cfg := &Config{EmailAPIURL: "https://mail.example.com/send"}
	if cfg.EmailEnabled() {
		t.Error("email should need an API key")
	}
	var nilCfg *Config
	if nilCfg.EmailEnabled() || nilCfg.RedisEnabled() {
		t.Error("nil config enables nothing")
	}
}
