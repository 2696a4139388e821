package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// placeholderToken lets OpenAI-compatible local servers run without a key.
const placeholderToken = "unused"

// OpenAI calls an OpenAI-compatible chat completions API.
type OpenAI struct {
	llm         llms.Model
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAI builds a langchaingo OpenAI model from opts.
func NewOpenAI(opts Options, logger *slog.Logger) (*OpenAI, error) {
	token := opts.APIKey
	if token == "" {
		token = placeholderToken
	}

	llmOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(opts.Model),
		openai.WithCallback(LogCallbackHandler{Logger: logger}),
	}
	if opts.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}

	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	return &OpenAI{
		llm:         llm,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, t := range req.History {
		msgs = append(msgs, llms.TextParts(langchainRole(t.Role), t.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Message))

	callOpts := []llms.CallOption{
		llms.WithTemperature(o.temperature),
	}
	if o.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.maxTokens))
	}
	if req.Structured {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	errb := oops.In("completion").With("provider", "openai", "model", o.model)

	resp, err := o.llm.GenerateContent(ctx, msgs, callOpts...)
	if err != nil {
		return nil, errb.Wrapf(fmt.Errorf("%w: %w", ErrUnavailable, err), "generate content")
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return nil, errb.Wrapf(fmt.Errorf("%w: %w", ErrUnavailable, ErrEmptyResponse), "generate content")
	}

	return &Response{Content: resp.Choices[0].Content}, nil
}

func langchainRole(role string) llms.ChatMessageType {
	switch role {
	case "assistant":
		return llms.ChatMessageTypeAI
	case "system":
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}
