// Package completion talks to the hosted chat-completion model.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ashureev/fitmind/internal/domain"
)

var (
	// ErrUnavailable wraps every transport or provider failure.
	ErrUnavailable = errors.New("completion unavailable")
	// ErrEmptyResponse is returned when the provider answers without content.
	ErrEmptyResponse = errors.New("empty completion response")
)

// Turn is one prior message in the conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call.
type Request struct {
	SystemPrompt string
	History      []Turn
	Message      string
	// Structured asks the provider for a JSON object reply.
	Structured bool
}

// Response is the raw assistant reply.
type Response struct {
	Content string
	// Offer is set when the provider delivered a structured payload itself.
	Offer *bool
}

// Client is the chat-completion collaborator.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Options tunes a provider.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	SidecarAddr string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New builds the client selected by opts.Provider, bounded by opts.Timeout.
func New(ctx context.Context, opts Options, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		c   Client
		err error
	)
	switch opts.Provider {
	case "openai", "":
		c, err = NewOpenAI(opts, logger)
	case "gemini":
		c, err = NewGemini(ctx, opts)
	case "grpc":
		c, err = NewSidecar(opts.SidecarAddr, logger)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(c, opts.Timeout), nil
}

type timed struct {
	next    Client
	timeout time.Duration
}

// WithTimeout bounds every call of next. A non-positive timeout returns next.
func WithTimeout(next Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return next
	}
	return &timed{next: next, timeout: timeout}
}

func (t *timed) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}

// Close releases the wrapped client when it holds resources.
func (t *timed) Close() error {
	if c, ok := t.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// HistoryFrom converts transcript messages into completion turns.
func HistoryFrom(msgs []domain.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role(), Content: m.Text})
	}
	return turns
}

const defaultSystemPrompt = `You are FitMind, a friendly AI wellness guide. You help people with sleep, recovery, energy, stress and soreness.
Keep replies short and conversational, ask one question at a time, and never give medical diagnoses.`

// LoadSystemPrompt reads the prompt at path, or the built-in prompt when path
// is empty, and appends the reply format contract.
func LoadSystemPrompt(path, contract string) (string, error) {
	prompt := defaultSystemPrompt
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read system prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if contract == "" {
		return prompt, nil
	}
	return prompt + "\n\n" + contract, nil
}
