package titles

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/parleybot/parley/internal/channels"
	"github.com/parleybot/parley/internal/logging"
)

// Result is the overall outcome of an engine call
type Result string

const (
	ResultApplied Result = "applied"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// Reason explains a skipped or failed outcome
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoCandidate       Reason = "no_candidate"
	ReasonProviderMismatch  Reason = "provider_mismatch"
	ReasonUnsupportedTarget Reason = "unsupported_target"
	ReasonDisabled          Reason = "disabled"
	ReasonCooldown          Reason = "cooldown"
	ReasonAlreadyApplied    Reason = "already_applied"
	ReasonExistingTitle     Reason = "existing_title_present"
	ReasonNotFirstMessage   Reason = "not_first_message"
	ReasonSetTitleFailed    Reason = "set_title_failed"
	ReasonTitleInFlight     Reason = "title_in_flight"
)

// Outcome is what callers observe; the engine never propagates an error
type Outcome struct {
	Result    Result `json:"result"`
	Reason    Reason `json:"reason,omitempty"`
	ThreadKey string `json:"thread_key,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Request asks the engine to title one thread
type Request struct {
	// SessionID scopes the persisted state entry
	SessionID string

	// Target identifies the thread on its platform
	Target channels.TitleTarget

	// Primary and Fallback are the candidate message texts, tried in order
	Primary  string
	Fallback string

	// Model overrides the configured generation model for this call
	Model string

	// FirstInThread marks the message as the first of its thread
	FirstInThread bool

	// FromSweep marks a sweeper-driven retry, exempt from the first-message gate
	FromSweep bool
}

// AdapterResolver looks up the title capability for a channel.
// *channels.Manager implements it.
type AdapterResolver interface {
	TitleSetter(channel string) channels.TitleSetter
}

// Options are the engine knobs, resolved from config
type Options struct {
	Strategy         string
	MaxChars         int
	AllowOverwrite   bool
	FirstMessageOnly bool
	Placeholders     []string
}

// Engine decides when and what title to set for a thread and records the
// outcome. All state flows through the injected store and caches; there is
// no package-level mutable state.
type Engine struct {
	store    StateStore
	adapters AdapterResolver
	gen      *Generator
	opts     Options
	cache    *AppliedCache
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
}

// NewEngine constructs the title engine. gen may be nil for deterministic-only
// deployments.
func NewEngine(store StateStore, adapters AdapterResolver, gen *Generator, opts Options) (*Engine, error) {
	cache, err := NewAppliedCache()
	if err != nil {
		return nil, err
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 60
	}
	if opts.Strategy == "" {
		opts.Strategy = "hybrid"
	}
	return &Engine{
		store:    store,
		adapters: adapters,
		gen:      gen,
		opts:     opts,
		cache:    cache,
		now:      time.Now,
		inflight: make(map[string]bool),
	}, nil
}

// Apply runs the full title decision for one inbound message. It returns an
// outcome record and never an error; every failure becomes a state
// transition or a reasoned skip.
func (e *Engine) Apply(ctx context.Context, req Request) Outcome {
	adapter := e.adapters.TitleSetter(req.Target.Channel)
	if adapter == nil {
		return Outcome{Result: ResultSkipped, Reason: ReasonProviderMismatch}
	}
	if adapter.Channel() != req.Target.Channel {
		return Outcome{Result: ResultSkipped, Reason: ReasonProviderMismatch}
	}

	key := resolveThreadKey(adapter, req.Target)
	if key == "" {
		return Outcome{Result: ResultSkipped, Reason: ReasonUnsupportedTarget}
	}

	if title, ok := e.cache.Get(key); ok {
		return Outcome{Result: ResultSkipped, Reason: ReasonAlreadyApplied, ThreadKey: key, Title: title}
	}

	// In-process dedup: a second concurrent caller for the same key drops
	// in favor of the running attempt.
	e.mu.Lock()
	if e.inflight[key] {
		e.mu.Unlock()
		return Outcome{Result: ResultSkipped, Reason: ReasonTitleInFlight, ThreadKey: key}
	}
	e.inflight[key] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}()

	return e.apply(ctx, adapter, key, req)
}

// apply runs under the in-flight claim for key
func (e *Engine) apply(ctx context.Context, adapter channels.TitleSetter, key string, req Request) Outcome {
	now := e.now()
	nowMs := now.UnixMilli()

	// Deterministic candidate first: it is pure, cheap, and doubles as the
	// "newly proposed title" for the early-retry comparison.
	candidate, candOK := Extract(req.Primary, req.Fallback, e.opts.MaxChars)
	if e.opts.Strategy == "deterministic" && !candOK {
		return Outcome{Result: ResultSkipped, Reason: ReasonNoCandidate, ThreadKey: key}
	}

	state, err := e.store.GetTitleState(ctx, req.SessionID, key)
	if err != nil {
		// State read failed: proceed as a new thread. The in-process claim
		// still serializes attempts within this process.
		logging.Warnf("titles: state read for %s failed: %v", key, err)
		state = nil
	}

	if state != nil {
		switch state.Status {
		case StatusDisabled:
			return Outcome{Result: ResultSkipped, Reason: ReasonDisabled, ThreadKey: key}
		case StatusApplied:
			e.cache.Put(key, state.AppliedTitle)
			return Outcome{Result: ResultSkipped, Reason: ReasonAlreadyApplied, ThreadKey: key, Title: state.AppliedTitle}
		case StatusPending:
			if nowMs < state.LastAttemptAt+leaseDuration.Milliseconds() {
				return Outcome{Result: ResultSkipped, Reason: ReasonTitleInFlight, ThreadKey: key}
			}
		case StatusRetryAfter:
			if nowMs < state.RetryAfter && !earlyRetry(state, candidate) {
				return Outcome{Result: ResultSkipped, Reason: ReasonCooldown, ThreadKey: key}
			}
		}
	}

	if e.opts.FirstMessageOnly && state == nil && !req.FirstInThread && !req.FromSweep {
		return Outcome{Result: ResultSkipped, Reason: ReasonNotFirstMessage, ThreadKey: key}
	}

	// Cross-session short circuit: another session may have already titled
	// the same underlying thread.
	if sibling, err := e.store.FindAppliedTitle(ctx, key); err == nil && sibling != nil {
		e.cache.Put(key, sibling.AppliedTitle)
		return Outcome{Result: ResultSkipped, Reason: ReasonAlreadyApplied, ThreadKey: key, Title: sibling.AppliedTitle}
	}

	// Claim the lease before any external call so a crash mid-attempt is
	// recoverable via lease expiry.
	prior := cloneState(state)
	if _, err := e.store.UpdateTitleState(ctx, req.SessionID, key, func(s *State) {
		s.Status = StatusPending
		s.Attempts++
		s.LastAttemptAt = nowMs
		s.LastProposedTitle = candidate
	}); err != nil {
		// Lease write failed: continue under the in-process claim only.
		logging.Warnf("titles: lease write for %s failed: %v", key, err)
	}

	// Optional pre-check: do not overwrite a human-set title.
	if reader, ok := adapter.(channels.TitleReader); ok && !e.opts.AllowOverwrite {
		current, err := reader.CurrentTitle(ctx, req.Target)
		if err != nil {
			// Probe failed: proceed as if the thread has no title.
			logging.Debugf("titles: current-title probe for %s failed: %v", key, err)
		} else if current != "" && !isPlaceholderTitle(current, e.opts.Placeholders) {
			e.writeExternal(ctx, req.SessionID, key, current, nowMs)
			e.cache.Put(key, current)
			return Outcome{Result: ResultSkipped, Reason: ReasonExistingTitle, ThreadKey: key, Title: current}
		}
	}

	title, ok := e.obtainTitle(ctx, req, candidate, candOK)
	if !ok {
		e.restorePrior(ctx, req.SessionID, key, prior)
		return Outcome{Result: ResultSkipped, Reason: ReasonNoCandidate, ThreadKey: key}
	}

	if err := adapter.SetTitle(ctx, req.Target, title); err != nil {
		return e.recordFailure(ctx, adapter, req.SessionID, key, title, err)
	}

	if _, err := e.store.UpdateTitleState(ctx, req.SessionID, key, func(s *State) {
		s.Status = StatusApplied
		s.AppliedAt = e.now().UnixMilli()
		s.AppliedTitle = title
		s.LastProposedTitle = title
		s.RetryAfter = 0
		s.LastErrorClass = ""
	}); err != nil {
		logging.Warnf("titles: applied-state write for %s failed: %v", key, err)
	}
	e.cache.Put(key, title)
	return Outcome{Result: ResultApplied, ThreadKey: key, Title: title}
}

// obtainTitle resolves the final title per strategy. LLM failures fall back
// to the deterministic candidate under hybrid and to nothing under llm.
func (e *Engine) obtainTitle(ctx context.Context, req Request, candidate string, candOK bool) (string, bool) {
	switch e.opts.Strategy {
	case "llm":
		if e.gen == nil {
			return "", false
		}
		return e.gen.Generate(ctx, seedText(req), e.opts.MaxChars, req.Model)
	case "hybrid":
		if e.gen != nil {
			if title, ok := e.gen.Generate(ctx, seedText(req), e.opts.MaxChars, req.Model); ok {
				return title, true
			}
		}
		return candidate, candOK
	default:
		return candidate, candOK
	}
}

// recordFailure classifies a set-title error and transitions the state.
// LastProposedTitle keeps the lease-time candidate; early retry compares
// new candidates against it.
func (e *Engine) recordFailure(ctx context.Context, adapter channels.TitleSetter, sessionID, key, title string, cause error) Outcome {
	class := channels.ErrClassUnknown
	if clf, ok := adapter.(channels.ErrorClassifier); ok {
		class = clf.ClassifyTitleError(cause)
	} else {
		class = ClassifyError(cause)
	}

	var attempts int
	if state, err := e.store.GetTitleState(ctx, sessionID, key); err == nil && state != nil {
		attempts = state.Attempts
	}
	if attempts < 1 {
		attempts = 1
	}

	delay := retryDelay(class, attempts)
	if hinter, ok := adapter.(channels.RetryHinter); ok {
		if hint := hinter.RetryAfter(cause, class); hint > 0 {
			delay = hint
		}
	}

	if class == channels.ErrClassPermission || delay <= 0 {
		logging.Infof("titles: disabling %s after %s error: %v", key, class, cause)
		if _, err := e.store.UpdateTitleState(ctx, sessionID, key, func(s *State) {
			s.Status = StatusDisabled
			s.LastErrorClass = class
			s.RetryAfter = 0
		}); err != nil {
			logging.Warnf("titles: disabled-state write for %s failed: %v", key, err)
		}
		return Outcome{Result: ResultFailed, Reason: ReasonSetTitleFailed, ThreadKey: key, Title: title}
	}

	retryAt := e.now().Add(delay).UnixMilli()
	logging.Debugf("titles: %s failed with %s, retry after %s", key, class, delay)
	if _, err := e.store.UpdateTitleState(ctx, sessionID, key, func(s *State) {
		s.Status = StatusRetryAfter
		s.LastErrorClass = class
		s.RetryAfter = retryAt
	}); err != nil {
		logging.Warnf("titles: retry-state write for %s failed: %v", key, err)
	}
	return Outcome{Result: ResultFailed, Reason: ReasonSetTitleFailed, ThreadKey: key, Title: title}
}

// restorePrior undoes a claimed lease when no title could be produced;
// nothing was attempted against the platform, so no retry scheduling applies
func (e *Engine) restorePrior(ctx context.Context, sessionID, key string, prior *State) {
	if prior == nil {
		if err := e.store.DeleteTitleState(ctx, sessionID, key); err != nil {
			logging.Warnf("titles: lease cleanup for %s failed: %v", key, err)
		}
		return
	}
	p := *prior
	if _, err := e.store.UpdateTitleState(ctx, sessionID, key, func(s *State) {
		s.Status = p.Status
		s.Attempts = p.Attempts
		s.LastAttemptAt = p.LastAttemptAt
		s.RetryAfter = p.RetryAfter
		s.LastErrorClass = p.LastErrorClass
		s.LastProposedTitle = p.LastProposedTitle
	}); err != nil {
		logging.Warnf("titles: lease cleanup for %s failed: %v", key, err)
	}
}

// writeExternal records a title the platform already carries as final
func (e *Engine) writeExternal(ctx context.Context, sessionID, key, title string, nowMs int64) {
	if _, err := e.store.UpdateTitleState(ctx, sessionID, key, func(s *State) {
		s.Status = StatusApplied
		s.AppliedAt = nowMs
		s.AppliedTitle = title
		s.RetryAfter = 0
		s.LastErrorClass = ""
	}); err != nil {
		logging.Warnf("titles: external-title write for %s failed: %v", key, err)
	}
}

// earlyRetry reports whether an unexpired retry_after entry may be retried
// anyway: an unknown-class failure with a changed proposed title is new
// input, not a repeat of the same failure
func earlyRetry(state *State, candidate string) bool {
	if state.LastErrorClass != channels.ErrClassUnknown {
		return false
	}
	if strings.TrimSpace(candidate) == "" {
		return false
	}
	return candidate != state.LastProposedTitle
}

// resolveThreadKey prefers the adapter's platform-specific derivation
func resolveThreadKey(adapter channels.TitleSetter, target channels.TitleTarget) string {
	if r, ok := adapter.(channels.ThreadKeyResolver); ok {
		return r.ResolveThreadKey(target)
	}
	return channels.DefaultThreadKey(target)
}

// seedText concatenates primary and fallback text for generation
func seedText(req Request) string {
	primary := strings.TrimSpace(req.Primary)
	fallback := strings.TrimSpace(req.Fallback)
	switch {
	case primary == "":
		return fallback
	case fallback == "":
		return primary
	default:
		return primary + "\n" + fallback
	}
}

func cloneState(s *State) *State {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
