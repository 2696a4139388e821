package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"google.golang.org/genai"
)

// Gemini calls the Google Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGemini builds a Gemini client from opts.
func NewGemini(ctx context.Context, opts Options) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := opts.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Complete implements Client.
func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.temperature)),
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Structured {
		cfg.ResponseMIMEType = "application/json"
	}

	errb := oops.In("completion").With("provider", "gemini", "model", g.model)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(req), cfg)
	if err != nil {
		return nil, errb.Wrapf(fmt.Errorf("%w: %w", ErrUnavailable, err), "generate content")
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, errb.Wrapf(fmt.Errorf("%w: %w", ErrUnavailable, ErrEmptyResponse), "generate content")
	}
	return &Response{Content: text}, nil
}

func geminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
}
