// Package anthropic provides a reasoning.Service backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Options configures the Anthropic reasoning adapter (model id, temperature,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	// System is prepended as the system prompt when non-empty.
	System string
}

// Service wraps the Anthropic Messages API behind the reasoning.Service
// interface. Calls are blocking and non-streaming; cancellation and timeout
// come from the caller's context.
type Service struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic reasoning service using the official client.
func New(optFns ...func(o *Options)) *Service {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Service{client: &client, opts: opts}
}

// NewFromClient creates a reasoning service from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Service {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{client: client, opts: opts}
}

// Generate implements reasoning.Service. The context window text is passed
// as a leading user turn so the model sees the session's working state ahead
// of the task itself.
func (s *Service) Generate(ctx context.Context, taskText string, contextWindow string) (string, error) {
	var messages []anthropic.MessageParam
	if contextWindow != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(contextWindow)))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(taskText)))

	params := anthropic.MessageNewParams{
		Model:       s.opts.Model,
		Messages:    messages,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: anthropic.Float(s.opts.Temperature),
	}
	if s.opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: s.opts.System}}
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("anthropic response contained no text content")
	}
	return text, nil
}
