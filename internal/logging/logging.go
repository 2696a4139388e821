// Package logging builds the process-wide slog handler.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ashureev/fitmind/internal/config"
	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"
)

// TelegramKey marks a record for delivery to Telegram regardless of level.
const TelegramKey = "telegram"

// Setup installs the default logger described by cfg and returns it.
func Setup(cfg config.LogConfig) *slog.Logger {
	logger := slog.New(NewHandler(cfg, os.Stdout))
	slog.SetDefault(logger)
	return logger
}

// NewHandler returns the handler tree for cfg writing local output to w.
func NewHandler(cfg config.LogConfig, w io.Writer) slog.Handler {
	level := ParseLevel(cfg.Level)

	var local slog.Handler
	if cfg.Format == "console" {
		local = console.NewHandler(w, &console.HandlerOptions{
			AddSource: true,
			Level:     level,
		})
	} else {
		local = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	router := slogmulti.Router().Add(local)

	if cfg.TelegramToken != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:     slog.LevelDebug,
				Token:     cfg.TelegramToken,
				Username:  cfg.TelegramChatID,
				AddSource: true,
			}.NewTelegramHandler(),
			ShouldAlert,
		)
	}

	return router.Handler()
}

// ShouldAlert selects error records and records carrying TelegramKey.
func ShouldAlert(_ context.Context, r slog.Record) bool {
	if r.Level >= slog.LevelError {
		return true
	}
	marked := false
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == TelegramKey {
			marked = true
			return false
		}
		return true
	})
	return marked
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
