package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// NDJSONConfig controls the file sink.
type NDJSONConfig struct {
	Dir       string
	QueueSize int
}

// NDJSONSink appends events to <dir>/<user_id>/<conversation_id>.ndjson from
// a single background writer. Events are dropped when the queue is full.
type NDJSONSink struct {
	dir    string
	queue  chan Event
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NewNDJSONSink creates the directory and starts the writer goroutine.
func NewNDJSONSink(cfg NDJSONConfig, logger *slog.Logger) (*NDJSONSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}

	s := &NDJSONSink{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// RecordEvent implements Sink.
func (s *NDJSONSink) RecordEvent(_ context.Context, name string, attrs Attrs) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- newEvent(name, attrs):
	default:
		s.logger.Warn("Event queue full, dropping event", "event", name)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (s *NDJSONSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		if err := s.write(ev); err != nil {
			s.logger.Warn("Failed to write event", "event", ev.Name, "error", err)
		}
	}
}

func (s *NDJSONSink) write(ev Event) error {
	path := s.pathFor(ev)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create event directory: %w", err)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append event: %w", err)
	}
	return f.Close()
}

func (s *NDJSONSink) pathFor(ev Event) string {
	user := pathSegment(ev.Attrs.str("user_id"), "anonymous")
	conv := pathSegment(ev.Attrs.str("conversation_id"), "unscoped")
	return filepath.Join(s.dir, user, conv+".ndjson")
}

func pathSegment(v, fallback string) string {
	v = unsafePathChars.ReplaceAllString(v, "_")
	if v == "" || v == "." || v == ".." {
		return fallback
	}
	return v
}
