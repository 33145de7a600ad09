package persona

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// AnyLLM implements Generator by wrapping github.com/mozilla-ai/any-llm-go.
type AnyLLM struct {
	backend anyllmlib.Provider
	model   string
}

// NewAnyLLM creates a Generator for the named backend. providerName is
// one of "gemini", "openai", "anthropic" or "ollama". An empty apiKey
// defers to the backend's environment variable.
func NewAnyLLM(providerName, model, apiKey string) (*AnyLLM, error) {
	if model == "" {
		return nil, fmt.Errorf("persona: model must not be empty")
	}

	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch strings.ToLower(providerName) {
	case "gemini":
		backend, err = gemini.New(opts...)
	case "openai":
		backend, err = anyllmoai.New(opts...)
	case "anthropic":
		backend, err = anthropic.New(opts...)
	case "ollama":
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("persona: unsupported provider %q", providerName)
	}
	if err != nil {
		return nil, fmt.Errorf("persona: create %q backend: %w", providerName, err)
	}

	return &AnyLLM{backend: backend, model: model}, nil
}

func (p *AnyLLM) Complete(ctx context.Context, req Request) (string, error) {
	var messages []anyllmlib.Message
	if req.SystemInstruction != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, turn := range req.Turns {
		messages = append(messages, anyllmlib.Message{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("persona: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("persona: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
