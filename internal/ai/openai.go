package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAICompleter implements Completer over the official OpenAI SDK
type OpenAICompleter struct {
	client openai.Client
}

// NewOpenAICompleter creates an OpenAI completer
func NewOpenAICompleter(apiKey string) *OpenAICompleter {
	return &OpenAICompleter{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

// ID returns the provider identifier
func (c *OpenAICompleter) ID() string {
	return "openai"
}

// Complete sends a single non-streaming chat completion request
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
