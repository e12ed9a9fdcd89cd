package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 256

// AnthropicCompleter implements Completer over the official Anthropic SDK
type AnthropicCompleter struct {
	client anthropic.Client
}

// NewAnthropicCompleter creates an Anthropic completer
func NewAnthropicCompleter(apiKey string) *AnthropicCompleter {
	return &AnthropicCompleter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// ID returns the provider identifier
func (c *AnthropicCompleter) ID() string {
	return "anthropic"
}

// Complete sends a single non-streaming message request
func (c *AnthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}
