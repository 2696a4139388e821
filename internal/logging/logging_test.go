package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ashureev/fitmind/internal/config"
)

func TestNewHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(config.LogConfig{Format: "json", Level: "info"}, &buf))

	logger.Debug("hidden")
	logger.Info("chat started", "conversation_id", "c-1")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if got["msg"] != "chat started" || got["conversation_id"] != "c-1" {
		t.Errorf("Unexpected record: %v", got)
	}
}

func TestShouldAlert(t *testing.T) {
	errRecord := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	if !ShouldAlert(context.Background(), errRecord) {
		t.Error("Expected error records to alert")
	}

	info := slog.NewRecord(time.Now(), slog.LevelInfo, "fyi", 0)
	if ShouldAlert(context.Background(), info) {
		t.Error("Expected plain info records to stay local")
	}

	info.AddAttrs(slog.Bool(TelegramKey, true))
	if !ShouldAlert(context.Background(), info) {
		t.Error("Expected marked records to alert")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != slog.LevelDebug || ParseLevel("nope") != slog.LevelInfo {
		t.Error("Unexpected level mapping")
	}
}
