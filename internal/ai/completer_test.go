package ai

import "testing"

func TestResolveModelRef(t *testing.T) {
	tests := []struct {
		ref      string
		provider string
		model    string
		ok       bool
	}{
		{"anthropic/claude-3-5-haiku-latest", "anthropic", "claude-3-5-haiku-latest", true},
		{"openai/gpt-4o-mini", "openai", "gpt-4o-mini", true},
		{"ollama/llama3.2", "ollama", "llama3.2", true},
		{"haiku", "anthropic", "claude-3-5-haiku-latest", true},
		{"GPT", "openai", "gpt-4o-mini", true},
		{"claude-sonnet-4-20250514", "anthropic", "claude-sonnet-4-20250514", true},
		{"gpt-4o", "openai", "gpt-4o", true},
		{"o3-mini", "openai", "o3-mini", true},
		{"qwen2.5-coder", "ollama", "qwen2.5-coder", true},
		{"", "", "", false},
		{"   ", "", "", false},
		{"watsonx/granite", "", "", false},
		{"anthropic/", "", "", false},
		{"some-random-model", "", "", false},
	}
	for _, tt := range tests {
		ref, ok := ResolveModelRef(tt.ref)
		if ok != tt.ok {
			t.Errorf("ResolveModelRef(%q) ok = %v, want %v", tt.ref, ok, tt.ok)
			continue
		}
		if ref.Provider != tt.provider || ref.Model != tt.model {
			t.Errorf("ResolveModelRef(%q) = %+v, want %s/%s", tt.ref, ref, tt.provider, tt.model)
		}
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", " sk-ant-test ")
	if got := APIKey("anthropic"); got != "sk-ant-test" {
		t.Errorf("APIKey(anthropic) = %q", got)
	}
	if got := APIKey("ollama"); got != "local" {
		t.Errorf("APIKey(ollama) = %q, want local", got)
	}
	if got := APIKey("watsonx"); got != "" {
		t.Errorf("APIKey(watsonx) = %q, want empty", got)
	}
}
