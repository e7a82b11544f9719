// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	LogLevel     string
	DefaultModel string
	HTTPTimeout  time.Duration
	Agent        AgentConfig
	LLM          LLMConfig
	Search       SearchConfig
	Images       ImageConfig
	Store        StoreConfig
	RateLimit    RateLimitConfig
}

// AgentConfig bounds agent runs.
type AgentConfig struct {
	RecursionLimit int
	MaxTokens      int
	Workers        int
	QueueTimeout   time.Duration
}

// LLMConfig holds language-model credentials.
type LLMConfig struct {
	OpenAIKey    string
	AnthropicKey string
	GoogleKey    string
	BaseURL      string
	Provider     string
}

// SearchConfig holds search provider keys.
type SearchConfig struct {
	SerpAPIKey string
	TavilyKey  string
}

// ImageConfig controls image generation.
type ImageConfig struct {
	ReplicateToken string
	Model          string
	Dir            string
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Kind   string // "memory" or "sqlite"
	DBPath string
}

// RateLimitConfig throttles generation requests per client address.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8000"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DefaultModel: getEnv("DEFAULT_MODEL", "gpt-4o"),
		HTTPTimeout:  getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		Agent: AgentConfig{
			RecursionLimit: getEnvInt("AGENT_RECURSION_LIMIT", 50),
			MaxTokens:      getEnvInt("AGENT_MAX_TOKENS", 8192),
			Workers:        getEnvInt("AGENT_WORKERS", 4),
			QueueTimeout:   getEnvDuration("AGENT_QUEUE_TIMEOUT", 0),
		},
		LLM: LLMConfig{
			OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
			AnthropicKey: getEnv("ANTHROPIC_API_KEY", ""),
			GoogleKey:    getEnv("GOOGLE_API_KEY", ""),
			BaseURL:      getEnv("LLM_BASE_URL", ""),
			Provider:     getEnv("LLM_PROVIDER", ""),
		},
		Search: SearchConfig{
			SerpAPIKey: getEnv("SERPAPI_API_KEY", ""),
			TavilyKey:  getEnv("TAVILY_API_KEY", ""),
		},
		Images: ImageConfig{
			ReplicateToken: getEnv("REPLICATE_API_TOKEN", ""),
			Model:          getEnv("IMAGE_MODEL", "google/nano-banana"),
			Dir:            getEnv("IMAGE_DIR", "temp/images"),
		},
		Store: StoreConfig{
			Kind:   strings.ToLower(getEnv("SESSION_STORE", "memory")),
			DBPath: getEnv("DB_PATH", "./data/sessions.db"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("DEFAULT_MODEL cannot be empty")
	}
	if c.Agent.RecursionLimit <= 0 {
		return fmt.Errorf("AGENT_RECURSION_LIMIT must be > 0")
	}
	if c.Agent.Workers <= 0 {
		return fmt.Errorf("AGENT_WORKERS must be > 0")
	}
	if c.Agent.QueueTimeout < 0 {
		return fmt.Errorf("AGENT_QUEUE_TIMEOUT cannot be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0")
	}
	switch c.Store.Kind {
	case "memory":
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when SESSION_STORE=sqlite")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be memory or sqlite, got %q", c.Store.Kind)
	}
	if c.Images.Dir == "" {
		return fmt.Errorf("IMAGE_DIR cannot be empty")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
