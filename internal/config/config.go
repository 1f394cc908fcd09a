// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// AI backends.
const (
	AIBackendREST  = "rest"
	AIBackendGenAI = "genai"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	LogLevel        slog.Level
	RefreshInterval time.Duration
	FiMCP           FiMCPConfig
	AI              AIConfig
}

// FiMCPConfig configures the remote financial data API.
type FiMCPConfig struct {
	BaseURL string
	Timeout time.Duration
	DemoOTP string
}

// AIConfig configures the analysis service. An empty APIKey disables the
// AI path and every analysis uses the fallback summary.
type AIConfig struct {
	Backend      string
	APIKey       string
	Endpoint     string
	Model        string
	Timeout      time.Duration
	HistoryLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/smartfi.db"),
		LogLevel:        parseLevel(getEnv("LOG_LEVEL", "info")),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 0),
		FiMCP: FiMCPConfig{
			BaseURL: strings.TrimSuffix(getEnv("FI_MCP_BASE_URL", "https://fi-mcp-dev-production.up.railway.app"), "/"),
			Timeout: getEnvDuration("FI_MCP_TIMEOUT", 15*time.Second),
			DemoOTP: getEnv("DEMO_OTP", "demo"),
		},
		AI: AIConfig{
			Backend:      strings.ToLower(getEnv("AI_BACKEND", AIBackendREST)),
			APIKey:       getEnv("GEMINI_API_KEY", ""),
			Endpoint:     getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"),
			Model:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout:      getEnvDuration("AI_TIMEOUT", 30*time.Second),
			HistoryLimit: getEnvInt("ANALYSIS_HISTORY_LIMIT", 50),
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
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.FiMCP.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("FI_MCP_BASE_URL must be an absolute URL, got %q", c.FiMCP.BaseURL)
	}
	if c.FiMCP.Timeout <= 0 {
		return fmt.Errorf("FI_MCP_TIMEOUT must be > 0")
	}
	if c.FiMCP.DemoOTP == "" {
		return fmt.Errorf("DEMO_OTP cannot be empty")
	}
	if c.AI.Backend != AIBackendREST && c.AI.Backend != AIBackendGenAI {
		return fmt.Errorf("AI_BACKEND must be %q or %q, got %q", AIBackendREST, AIBackendGenAI, c.AI.Backend)
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be > 0")
	}
	if c.AI.HistoryLimit <= 0 {
		return fmt.Errorf("ANALYSIS_HISTORY_LIMIT must be > 0")
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL cannot be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
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

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
