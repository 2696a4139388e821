// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
type Config struct {
	Port           string `validate:"required"`
	FrontendURL    string
	DBPath         string        `validate:"required"`
	GRPCHealthPort string        `validate:"omitempty,numeric"`
	SessionTTL     time.Duration `validate:"gt=0"`
	CatalogPath    string

	Completion CompletionConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Events     EventsConfig
	Log        LogConfig
}

// CompletionConfig selects and tunes the chat-completion backend.
type CompletionConfig struct {
	Provider         string `validate:"oneof=openai gemini grpc"`
	Model            string `validate:"required"`
	APIKey           string
	BaseURL          string `validate:"omitempty,url"`
	GeminiAPIKey     string
	SidecarAddr      string
	Encoding         string `validate:"oneof=structured marker"`
	Marker           string
	Timeout          time.Duration `validate:"gt=0"`
	Temperature      float64       `validate:"gte=0,lte=2"`
	MaxTokens        int           `validate:"gt=0"`
	SystemPromptPath string
}

// AuthConfig configures bearer-token identity.
type AuthConfig struct {
	// JWTSecret verifies HS256 access tokens. Empty means every visitor is a guest.
	JWTSecret string
}

// RateLimitConfig limits message submissions per user.
type RateLimitConfig struct {
	RequestsPerWindow int           `validate:"gt=0"`
	WindowDuration    time.Duration `validate:"gt=0"`
}

// EventsConfig controls where analytics events are sent.
type EventsConfig struct {
	Sinks        []string `validate:"dive,oneof=log ndjson kafka none"`
	Dir          string
	QueueSize    int `validate:"gt=0"`
	KafkaBrokers []string
	KafkaTopic   string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Format         string `validate:"oneof=json console"`
	Level          string `validate:"oneof=debug info warn error"`
	TelegramToken  string
	TelegramChatID string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("EVENT_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	apiKey := getEnv("COMPLETION_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("OPENAI_API_KEY", "")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         DBPathFromEnv(),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		CatalogPath:    getEnv("CATALOG_PATH", ""),
		Completion: CompletionConfig{
			Provider:         strings.ToLower(getEnv("COMPLETION_PROVIDER", "openai")),
			Model:            getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
			APIKey:           apiKey,
			BaseURL:          getEnv("COMPLETION_BASE_URL", ""),
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			SidecarAddr:      getEnv("AGENT_SIDECAR_ADDR", ""),
			Encoding:         strings.ToLower(getEnv("COMPLETION_ENCODING", "structured")),
			Marker:           getEnv("TRIGGER_MARKER", ""),
			Timeout:          getEnvDuration("COMPLETION_TIMEOUT", 30*time.Second),
			Temperature:      getEnvFloat("COMPLETION_TEMPERATURE", 0.7),
			MaxTokens:        getEnvInt("COMPLETION_MAX_TOKENS", 1000),
			SystemPromptPath: getEnv("SYSTEM_PROMPT_PATH", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Events: EventsConfig{
			Sinks:        getEnvList("EVENT_SINK", []string{"log"}),
			Dir:          getEnv("EVENT_LOG_DIR", "./data/events"),
			QueueSize:    queueSize,
			KafkaBrokers: getEnvList("KAFKA_BROKERS", nil),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "fitmind.chat-events"),
		},
		Log: LogConfig{
			Format:         strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Level:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
			TelegramToken:  getEnv("LOG_TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnv("LOG_TELEGRAM_CHAT_ID", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DBPathFromEnv returns DB_PATH or its default without loading the rest of
// the configuration.
func DBPathFromEnv() string {
	return getEnv("DB_PATH", "./data/fitmind.db")
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Completion.Provider {
	case "openai":
		if c.Completion.APIKey == "" && c.Completion.BaseURL == "" {
			return errors.New("COMPLETION_API_KEY or COMPLETION_BASE_URL must be set for the openai provider")
		}
	case "gemini":
		if c.Completion.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY cannot be empty for the gemini provider")
		}
	case "grpc":
		if c.Completion.SidecarAddr == "" {
			return errors.New("AGENT_SIDECAR_ADDR cannot be empty for the grpc provider")
		}
	}

	if c.HasSink("ndjson") && c.Events.Dir == "" {
		return errors.New("EVENT_LOG_DIR cannot be empty when the ndjson sink is enabled")
	}
	if c.HasSink("kafka") && len(c.Events.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS cannot be empty when the kafka sink is enabled")
	}
	if c.Log.TelegramToken != "" && c.Log.TelegramChatID == "" {
		return errors.New("LOG_TELEGRAM_CHAT_ID cannot be empty when LOG_TELEGRAM_TOKEN is set")
	}
	return nil
}

// HasSink reports whether the named event sink is enabled.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Events.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
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

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
