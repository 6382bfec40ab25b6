package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Auth.TokenSecret = "test-secret"
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with a token secret should validate, got: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Server.Port = 0
	cfg.Backtest.InitialCapital = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"unknown mode", "server: port", "initial_capital"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q:\n%s", want, msg)
		}
	}
}

func TestValidateAuthSecret(t *testing.T) {
	cfg := Defaults()
	// Server enabled with no token secret must fail.
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "token_secret") {
		t.Fatalf("expected token_secret error, got: %v", err)
	}

	cfg.Server.Enabled = false
	cfg.Mode = "collect"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("headless collect mode should not require a token secret, got: %v", err)
	}
}

func TestValidateExchangeKeyPair(t *testing.T) {
	cfg := validConfig()
	cfg.Exchange.ApiKey = "key-without-secret"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api_key and api_secret") {
		t.Fatalf("expected key-pair error, got: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUANTFLOW_SERVER_PORT", "9100")
	t.Setenv("QUANTFLOW_AI_API_KEY", "sk-test")
	t.Setenv("QUANTFLOW_COLLECTOR_SYMBOLS", "BTCUSDT, SOLUSDT")
	t.Setenv("QUANTFLOW_AUTH_TOKEN_TTL", "2h")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.AI.ApiKey != "sk-test" {
		t.Errorf("AI.ApiKey = %q, want sk-test", cfg.AI.ApiKey)
	}
	if len(cfg.Collector.Symbols) != 2 || cfg.Collector.Symbols[1] != "SOLUSDT" {
		t.Errorf("Collector.Symbols = %v, want [BTCUSDT SOLUSDT]", cfg.Collector.Symbols)
	}
	if cfg.Auth.TokenTTL.Duration.Hours() != 2 {
		t.Errorf("Auth.TokenTTL = %v, want 2h", cfg.Auth.TokenTTL.Duration)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "hunter2"
	cfg.AI.ApiKey = "sk-live"

	red := RedactedConfig(&cfg)
	if red.Database.Password != "***" || red.AI.ApiKey != "***" || red.Auth.TokenSecret != "***" {
		t.Error("secrets not redacted")
	}
	// Original must be untouched.
	if cfg.Database.Password != "hunter2" {
		t.Error("RedactedConfig mutated the original")
	}
	if red.Database.Host != cfg.Database.Host {
		t.Error("non-secret field changed")
	}
}
