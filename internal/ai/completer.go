package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CompletionRequest is a single-shot, non-streaming completion request
type CompletionRequest struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// Completer is the narrow provider interface used for one-shot completions
type Completer interface {
	// ID returns the provider family identifier (e.g. "anthropic", "openai")
	ID() string

	// Complete sends the request and returns the raw text output
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ModelRef is a resolved "provider/model" reference
type ModelRef struct {
	Provider string
	Model    string
}

// shorthand model names expanded to full provider/model refs
var shorthands = map[string]string{
	"haiku":  "anthropic/claude-3-5-haiku-latest",
	"sonnet": "anthropic/claude-sonnet-4-20250514",
	"opus":   "anthropic/claude-opus-4-20250514",
	"gpt":    "openai/gpt-4o-mini",
}

// supportedProviders is the fixed allow-list of provider families
var supportedProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"ollama":    true,
}

// ResolveModelRef parses a model reference. Bare shorthand names expand to
// "provider/model"; bare model ids are routed by prefix. Returns false when
// the ref is empty or names an unsupported provider family.
func ResolveModelRef(ref string) (ModelRef, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ModelRef{}, false
	}
	if full, ok := shorthands[strings.ToLower(ref)]; ok {
		ref = full
	}
	if i := strings.IndexByte(ref, '/'); i > 0 {
		provider := strings.ToLower(strings.TrimSpace(ref[:i]))
		model := strings.TrimSpace(ref[i+1:])
		if model == "" || !supportedProviders[provider] {
			return ModelRef{}, false
		}
		return ModelRef{Provider: provider, Model: model}, true
	}
	// Bare model id: route by prefix.
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return ModelRef{Provider: "anthropic", Model: ref}, true
	case strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3"):
		return ModelRef{Provider: "openai", Model: ref}, true
	case strings.HasPrefix(lower, "llama") || strings.HasPrefix(lower, "qwen") || strings.HasPrefix(lower, "mistral"):
		return ModelRef{Provider: "ollama", Model: ref}, true
	}
	return ModelRef{}, false
}

// APIKey returns the API key for a provider family, or "" when unset.
// Ollama is local and needs no key.
func APIKey(provider string) string {
	switch provider {
	case "anthropic":
		return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	case "openai":
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case "ollama":
		return "local"
	}
	return ""
}

// NewCompleter constructs the completer for a resolved model ref.
// Returns an error when the provider family has no credentials.
func NewCompleter(ref ModelRef) (Completer, error) {
	key := APIKey(ref.Provider)
	if key == "" {
		return nil, fmt.Errorf("no API key for provider %q", ref.Provider)
	}
	switch ref.Provider {
	case "anthropic":
		return NewAnthropicCompleter(key), nil
	case "openai":
		return NewOpenAICompleter(key), nil
	case "ollama":
		return NewOllamaCompleter(""), nil
	}
	return nil, fmt.Errorf("unsupported provider %q", ref.Provider)
}
