// Package openai provides a reasoning.Service backed by the OpenAI Chat
// Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// Options configure the OpenAI reasoning adapter. Fields mirror a minimal
// subset of Chat Completion parameters; extend via functional options
// without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// System is prepended as the system message when non-empty.
	System string
}

// Service wraps the OpenAI Chat Completions API behind the reasoning.Service
// interface. Calls are blocking and non-streaming.
type Service struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI reasoning service using the official client.
func New(optFns ...func(o *Options)) *Service {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a reasoning service from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Service {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{client: client, opts: opts}
}

// Generate implements reasoning.Service.
func (s *Service) Generate(ctx context.Context, taskText string, contextWindow string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if s.opts.System != "" {
		messages = append(messages, openai.SystemMessage(s.opts.System))
	}
	if contextWindow != "" {
		messages = append(messages, openai.UserMessage(contextWindow))
	}
	messages = append(messages, openai.UserMessage(taskText))

	params := openai.ChatCompletionNewParams{
		Model:               s.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(s.opts.Temperature),
		MaxCompletionTokens: openai.Int(s.opts.MaxCompletionTokens),
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
