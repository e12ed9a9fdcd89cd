package titles

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/parleybot/parley/internal/ai"
	"github.com/parleybot/parley/internal/logging"
)

const (
	maxSeedChars  = 6000
	minTitleChars = 13

	// generateCooldown suppresses further generation attempts after a
	// provider failure so one unavailable provider does not slow every
	// unrelated thread.
	generateCooldown = 60 * time.Second
)

// Generator produces titles with a language model. Every failure path
// resolves to ok=false; it never returns an error to the caller.
type Generator struct {
	modelRef  string
	timeout   time.Duration
	newClient func(ref ai.ModelRef) (ai.Completer, error)
	now       func() time.Time

	mu            sync.Mutex
	cooldownUntil time.Time
}

// NewGenerator creates a generator with the configured default model ref and
// call timeout. The timeout is assumed pre-clamped by config normalization.
func NewGenerator(modelRef string, timeout time.Duration) *Generator {
	return &Generator{
		modelRef:  modelRef,
		timeout:   timeout,
		newClient: ai.NewCompleter,
		now:       time.Now,
	}
}

// Generate asks the model to summarize seed text into a short title.
// modelOverride takes precedence over the configured default. Returns false
// on any failure: no model, unsupported provider, missing key, timeout,
// unusable output, or an active failure cooldown.
func (g *Generator) Generate(ctx context.Context, seed string, maxChars int, modelOverride string) (string, bool) {
	if g == nil {
		return "", false
	}

	refStr := strings.TrimSpace(modelOverride)
	if refStr == "" {
		refStr = strings.TrimSpace(g.modelRef)
	}
	if refStr == "" {
		return "", false
	}
	ref, ok := ai.ResolveModelRef(refStr)
	if !ok {
		logging.Debugf("titles: unsupported model ref %q, skipping generation", refStr)
		return "", false
	}
	if ai.APIKey(ref.Provider) == "" {
		logging.Debugf("titles: no API key for %s, skipping generation", ref.Provider)
		return "", false
	}

	g.mu.Lock()
	inCooldown := g.now().Before(g.cooldownUntil)
	g.mu.Unlock()
	if inCooldown {
		logging.Debugf("titles: generation cooldown active, skipping")
		return "", false
	}

	client, err := g.newClient(ref)
	if err != nil {
		logging.Debugf("titles: completer init failed: %v", err)
		return "", false
	}

	seed = strings.TrimSpace(seed)
	if seed == "" {
		return "", false
	}
	seed = truncateRunes(seed, maxSeedChars)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := client.Complete(callCtx, ai.CompletionRequest{
		System:    titleSystemPrompt(maxChars),
		Prompt:    seed,
		Model:     ref.Model,
		MaxTokens: 64,
	})
	if err != nil {
		g.mu.Lock()
		g.cooldownUntil = g.now().Add(generateCooldown)
		g.mu.Unlock()
		logging.Debugf("titles: generation failed: %v", err)
		return "", false
	}

	title := sanitizeModelOutput(raw)
	title = strings.TrimRight(truncateRunes(title, maxChars), ".,;:!?-–— ")
	if len([]rune(title)) < minTitleLen {
		return "", false
	}
	return title, true
}

// titleSystemPrompt is a fixed few-shot instruction mapping casual requests
// to short action-oriented titles.
func titleSystemPrompt(maxChars int) string {
	return fmt.Sprintf(`You name chat conversations. Given the first messages of a conversation, output a short title for it.

Rules:
- %d to %d characters
- Title Case
- No quotes, no trailing punctuation, no emoji
- Abbreviations allowed: API, DB, CI, PR, K8s, AWS
- Output ONLY the title, nothing else

Examples:
"hey can you check why the login page 500s for some users" -> Investigate Login Page Errors
"remind me to renew the TLS certs next tuesday" -> Renew TLS Certificates
"whats the best way to batch insert into postgres from go" -> Postgres Batch Inserts in Go`, minTitleChars, maxChars)
}

// sanitizeModelOutput takes the first non-blank line, strips markdown headers
// and surrounding quotes, and collapses whitespace
func sanitizeModelOutput(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "# ")
		line = strings.Trim(line, `"'`+"`“”‘’")
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		return line
	}
	return ""
}
