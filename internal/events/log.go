package events

import (
	"context"
	"log/slog"
	"sort"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. A nil logger selects slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "analytics")}
}

// RecordEvent implements Sink.
func (s *LogSink) RecordEvent(ctx context.Context, name string, attrs Attrs) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)+1)
	args = append(args, slog.String("event", name))
	for _, k := range keys {
		args = append(args, slog.Any(k, attrs[k]))
	}
	s.logger.InfoContext(ctx, "Analytics event", args...)
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }
