package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPLETION_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %q", cfg.Port)
	}
	if cfg.Completion.Model != "gpt-4o-mini" {
		t.Errorf("Expected default model, got %q", cfg.Completion.Model)
	}
	if cfg.Completion.Temperature != 0.7 || cfg.Completion.MaxTokens != 1000 {
		t.Errorf("Unexpected sampling defaults: %v %d", cfg.Completion.Temperature, cfg.Completion.MaxTokens)
	}
	if cfg.Completion.Encoding != "structured" {
		t.Errorf("Expected structured encoding, got %q", cfg.Completion.Encoding)
	}
	if cfg.RateLimit.RequestsPerWindow != 10 || cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("Unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if !cfg.HasSink("log") {
		t.Errorf("Expected log sink by default, got %v", cfg.Events.Sinks)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode without FRONTEND_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMPLETION_PROVIDER", "grpc")
	t.Setenv("AGENT_SIDECAR_ADDR", "localhost:50051")
	t.Setenv("COMPLETION_ENCODING", "marker")
	t.Setenv("COMPLETION_TIMEOUT", "5s")
	t.Setenv("EVENT_SINK", "log, ndjson")
	t.Setenv("FRONTEND_URL", "https://fitmind.example/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Completion.Timeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", cfg.Completion.Timeout)
	}
	if !cfg.HasSink("ndjson") || !cfg.HasSink("log") {
		t.Errorf("Expected log and ndjson sinks, got %v", cfg.Events.Sinks)
	}
	if cfg.IsDevelopment() {
		t.Error("Expected production mode")
	}
	if got := cfg.AllowedOrigins(); len(got) != 1 || got[0] != "https://fitmind.example" {
		t.Errorf("Unexpected origins: %v", got)
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	t.Setenv("COMPLETION_PROVIDER", "llama")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for unknown provider")
	}
}

func TestValidateRequiresProviderCredentials(t *testing.T) {
	t.Setenv("COMPLETION_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("Expected GEMINI_API_KEY error, got %v", err)
	}
}

func TestValidateKafkaNeedsBrokers(t *testing.T) {
	t.Setenv("COMPLETION_API_KEY", "sk-test")
	t.Setenv("EVENT_SINK", "kafka")
	t.Setenv("KAFKA_BROKERS", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "KAFKA_BROKERS") {
		t.Fatalf("Expected KAFKA_BROKERS error, got %v", err)
	}
}
