package titles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parleybot/parley/internal/ai"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) ID() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, _ ai.CompletionRequest) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newTestGenerator(t *testing.T, completer *fakeCompleter) (*Generator, *time.Time) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	g := NewGenerator("anthropic/claude-haiku-test", 5*time.Second)
	g.newClient = func(ai.ModelRef) (ai.Completer, error) { return completer, nil }
	now := time.Unix(1724400000, 0)
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGenerateSanitizesOutput(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"Migrate Billing Database"`, "Migrate Billing Database"},
		{"# Investigate Login Errors", "Investigate Login Errors"},
		{"\n\n  Renew TLS  Certificates \nSecond line ignored", "Renew TLS Certificates"},
		{"“Postgres Batch Inserts in Go”", "Postgres Batch Inserts in Go"},
	}
	for _, tt := range tests {
		g, _ := newTestGenerator(t, &fakeCompleter{reply: tt.raw})
		title, ok := g.Generate(context.Background(), "seed text here", 60, "")
		if !ok {
			t.Errorf("Generate(%q) returned no title", tt.raw)
			continue
		}
		if title != tt.want {
			t.Errorf("Generate(%q) = %q, want %q", tt.raw, title, tt.want)
		}
	}
}

func TestGenerateRejectsShortOutput(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeCompleter{reply: "ok"})
	if title, ok := g.Generate(context.Background(), "seed text here", 60, ""); ok {
		t.Errorf("expected rejection of short output, got %q", title)
	}
}

func TestGenerateCooldownAfterFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream unavailable")}
	g, now := newTestGenerator(t, completer)

	if _, ok := g.Generate(context.Background(), "seed text here", 60, ""); ok {
		t.Fatal("expected failure")
	}
	if _, ok := g.Generate(context.Background(), "seed text here", 60, ""); ok {
		t.Fatal("expected cooldown skip")
	}
	if completer.calls != 1 {
		t.Errorf("completer called %d times during cooldown, want 1", completer.calls)
	}

	*now = now.Add(61 * time.Second)
	completer.err = nil
	completer.reply = "Investigate Upstream Outage"
	if _, ok := g.Generate(context.Background(), "seed text here", 60, ""); !ok {
		t.Error("expected retry after cooldown elapsed")
	}
}

func TestGenerateSkipsWithoutModel(t *testing.T) {
	g := NewGenerator("", 5*time.Second)
	if _, ok := g.Generate(context.Background(), "seed text here", 60, ""); ok {
		t.Error("expected skip with no model configured")
	}
}

func TestGenerateSkipsUnsupportedProvider(t *testing.T) {
	completer := &fakeCompleter{reply: "A Perfectly Fine Title"}
	g, _ := newTestGenerator(t, completer)
	if _, ok := g.Generate(context.Background(), "seed text here", 60, "watsonx/granite"); ok {
		t.Error("expected skip for unsupported provider")
	}
	if completer.calls != 0 {
		t.Errorf("completer called %d times, want 0", completer.calls)
	}
}

func TestGenerateSkipsWithoutAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	g := NewGenerator("openai/gpt-4o-mini", 5*time.Second)
	g.newClient = func(ai.ModelRef) (ai.Completer, error) { return &fakeCompleter{}, nil }
	if _, ok := g.Generate(context.Background(), "seed text here", 60, ""); ok {
		t.Error("expected skip with no API key")
	}
}

func TestGenerateModelOverride(t *testing.T) {
	completer := &fakeCompleter{reply: "Override Model Smoke Check"}
	g, _ := newTestGenerator(t, completer)
	title, ok := g.Generate(context.Background(), "seed text here", 60, "anthropic/claude-sonnet-test")
	if !ok || title != "Override Model Smoke Check" {
		t.Errorf("Generate with override = %q, %v", title, ok)
	}
}
