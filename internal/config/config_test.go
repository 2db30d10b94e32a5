package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DatabaseURL:           "postgres://localhost/glucoguide",
		JWTSecret:             "0123456789abcdef0123",
		JWTAlgorithm:          "HS256",
		LLMConnectTimeoutSecs: 10,
		LLMTimeoutSecs:        30,
		ChatHistoryLimit:      10,
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LLM_MODEL", "LLM_BASE_URL", "LLM_TIMEOUT_SECONDS", "LLM_CONNECT_TIMEOUT_SECONDS",
		"CHAT_HISTORY_LIMIT", "LLM_TEMPERATURE", "METRICS_ENABLED",
		"AUTO_APPLY_SCHEMA", "AUTO_ENABLE_PG_STAT_STATEMENTS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ChatHistoryLimit != 10 {
		t.Fatalf("expected history limit 10, got %d", cfg.ChatHistoryLimit)
	}
	if cfg.LLMConnectTimeoutSecs != 10 || cfg.LLMTimeoutSecs != 30 {
		t.Fatalf("unexpected LLM timeouts %d/%d", cfg.LLMConnectTimeoutSecs, cfg.LLMTimeoutSecs)
	}
	if cfg.LLMTemperature != 0.2 || !cfg.MetricsEnabled {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.APIPrefix != "/api/v1" {
		t.Fatalf("unexpected API prefix %q", cfg.APIPrefix)
	}
	if cfg.AutoApplySchema || cfg.AutoPGStatements {
		t.Fatalf("expected startup database actions to be off by default")
	}
}

func TestLoadStartupDatabaseFlags(t *testing.T) {
	t.Setenv("AUTO_APPLY_SCHEMA", "true")
	t.Setenv("AUTO_ENABLE_PG_STAT_STATEMENTS", "TRUE")

	cfg := Load()
	if !cfg.AutoApplySchema {
		t.Fatalf("expected AUTO_APPLY_SCHEMA to be read into the config")
	}
	if !cfg.AutoPGStatements {
		t.Fatalf("expected AUTO_ENABLE_PG_STAT_STATEMENTS to be read into the config")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LLM_API_KEY", "secret-key")
	t.Setenv("LLM_MODEL", "sonar-pro")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("LLM_TOP_P", "not-a-number")
	t.Setenv("CHAT_HISTORY_LIMIT", "4")
	t.Setenv("CORS_ALLOW_ORIGINS", " https://app.example.com , ,https://admin.example.com")

	cfg := Load()
	if cfg.LLMAPIKey != "secret-key" || cfg.LLMModel != "sonar-pro" {
		t.Fatalf("unexpected LLM settings %#v", cfg)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", cfg.LLMTemperature)
	}
	if cfg.LLMTopP != 0.9 {
		t.Fatalf("expected invalid top_p to fall back to 0.9, got %v", cfg.LLMTopP)
	}
	if cfg.ChatHistoryLimit != 4 {
		t.Fatalf("expected history limit 4, got %d", cfg.ChatHistoryLimit)
	}
	if len(cfg.CORSAllowOrigins) != 2 || cfg.CORSAllowOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSAllowOrigins)
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = " " }, want: "DATABASE_URL"},
		{name: "default secret", mutate: func(c *Config) { c.JWTSecret = "change-me-in-production" }, want: "insecure"},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, want: "too short"},
		{name: "connect not below request", mutate: func(c *Config) { c.LLMConnectTimeoutSecs = 30 }, want: "must be lower"},
		{name: "zero timeout", mutate: func(c *Config) { c.LLMTimeoutSecs = 0 }, want: "positive"},
		{name: "negative history", mutate: func(c *Config) { c.ChatHistoryLimit = -1 }, want: "CHAT_HISTORY_LIMIT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCompletionConfig(t *testing.T) {
	cfg := validConfig()
	cfg.LLMAPIKey = "k"
	cfg.LLMModel = "sonar"
	cfg.LLMBaseURL = "https://llm.example"
	cfg.LLMMaxTokens = 256

	got := cfg.CompletionConfig()
	if got.ConnectTimeout != 10*time.Second || got.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts %v/%v", got.ConnectTimeout, got.RequestTimeout)
	}
	if got.APIKey != "k" || got.Model != "sonar" || got.BaseURL != "https://llm.example" || got.MaxTokens != 256 {
		t.Fatalf("unexpected completion config %#v", got)
	}
}
