package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaCompleter implements Completer over the official Ollama SDK
type OllamaCompleter struct {
	client *api.Client
}

// NewOllamaCompleter creates an Ollama completer. An empty baseURL uses the
// default local server.
func NewOllamaCompleter(baseURL string) *OllamaCompleter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}

	httpClient := &http.Client{
		Timeout: 2 * time.Minute, // local inference can be slow
	}

	return &OllamaCompleter{client: api.NewClient(parsedURL, httpClient)}
}

// ID returns the provider identifier
func (c *OllamaCompleter) ID() string {
	return "ollama"
}

// Complete sends a non-streaming generate request
func (c *OllamaCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	stream := false
	genReq := &api.GenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: &stream,
	}
	if req.MaxTokens > 0 {
		genReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	var sb strings.Builder
	err := c.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama completion: %w", err)
	}
	return sb.String(), nil
}
