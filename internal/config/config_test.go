package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DEFAULT_MODEL", "AGENT_RECURSION_LIMIT", "SESSION_STORE", "HTTP_TIMEOUT", "LOG_LEVEL", "AGENT_WORKERS", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "IMAGE_DIR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Expected port 8000, got %s", cfg.Port)
	}
	if cfg.Agent.RecursionLimit != 50 {
		t.Errorf("Expected recursion limit 50, got %d", cfg.Agent.RecursionLimit)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.Store.Kind != "memory" {
		t.Errorf("Expected memory store, got %s", cfg.Store.Kind)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_STORE", "SQLite")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("AGENT_WORKERS", "8")
	t.Setenv("AGENT_QUEUE_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.Store.Kind != "sqlite" || cfg.Store.DBPath != "/tmp/x.db" {
		t.Errorf("Unexpected store config: %+v", cfg.Store)
	}
	if cfg.Agent.Workers != 8 || cfg.Agent.QueueTimeout != 5*time.Second {
		t.Errorf("Unexpected agent config: %+v", cfg.Agent)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", cfg.SlogLevel())
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("Expected fallback timeout for invalid value, got %s", cfg.HTTPTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:         "8000",
			DefaultModel: "gpt-4o",
			LogLevel:     "info",
			HTTPTimeout:  30 * time.Second,
			Agent:        AgentConfig{RecursionLimit: 50, Workers: 4},
			Images:       ImageConfig{Dir: "temp/images"},
			Store:        StoreConfig{Kind: "memory"},
			RateLimit:    RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"zero workers", func(c *Config) { c.Agent.Workers = 0 }, "AGENT_WORKERS"},
		{"zero recursion", func(c *Config) { c.Agent.RecursionLimit = 0 }, "AGENT_RECURSION_LIMIT"},
		{"unknown store", func(c *Config) { c.Store.Kind = "redis" }, "SESSION_STORE"},
		{"sqlite without path", func(c *Config) { c.Store = StoreConfig{Kind: "sqlite"} }, "DB_PATH"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:5173", true},
		{"https://lab.example.com", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.url}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q): expected %v, got %v", tt.url, tt.want, got)
		}
	}
}
