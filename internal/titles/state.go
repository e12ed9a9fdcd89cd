package titles

import (
	"context"
	"strings"
	"time"

	"github.com/parleybot/parley/internal/channels"
)

// Status is the persisted title-application status of a thread
type Status string

const (
	// StatusPending marks an attempt in flight; the record doubles as a lease
	StatusPending Status = "pending"
	// StatusApplied is final: the title was set (here or externally)
	StatusApplied Status = "applied"
	// StatusDisabled is terminal: no further automatic attempts
	StatusDisabled Status = "disabled"
	// StatusRetryAfter schedules a later attempt
	StatusRetryAfter Status = "retry_after"
)

// State is the per-thread-key title-application record.
// Timestamps are epoch milliseconds.
type State struct {
	ThreadKey         string              `json:"thread_key"`
	Status            Status              `json:"status"`
	Attempts          int                 `json:"attempts"`
	LastAttemptAt     int64               `json:"last_attempt_at,omitempty"`
	AppliedAt         int64               `json:"applied_at,omitempty"`
	AppliedTitle      string              `json:"applied_title,omitempty"`
	LastProposedTitle string              `json:"last_proposed_title,omitempty"`
	RetryAfter        int64               `json:"retry_after,omitempty"`
	LastErrorClass    channels.ErrorClass `json:"last_error_class,omitempty"`
}

// DueRetry identifies a retry_after entry whose cooldown has elapsed
type DueRetry struct {
	SessionID string
	ThreadKey string
	State     State
}

// StateStore is the persistence contract consumed by the engine. Every write
// goes through UpdateTitleState (read-modify-write in one transaction) so
// concurrent in-process callers cannot lose updates.
type StateStore interface {
	GetTitleState(ctx context.Context, sessionID, threadKey string) (*State, error)
	UpdateTitleState(ctx context.Context, sessionID, threadKey string, fn func(*State)) (*State, error)
	DeleteTitleState(ctx context.Context, sessionID, threadKey string) error

	// FindAppliedTitle scans all sessions for an applied record with the same
	// thread key (cross-session short circuit).
	FindAppliedTitle(ctx context.Context, threadKey string) (*State, error)

	// ListDueRetries returns retry_after entries with retry_after <= now
	ListDueRetries(ctx context.Context, now int64) ([]DueRetry, error)
}

const (
	// leaseDuration bounds how long a pending record blocks a new attempt.
	// A crash mid-attempt is recovered by lease expiry, not a stuck lock.
	leaseDuration = 60 * time.Second

	rateLimitDelay   = 60 * time.Second
	notFoundDelay    = 30 * time.Minute
	unknownBaseDelay = 60 * time.Second
	unknownMaxDelay  = time.Hour
)

// retryDelay computes the default backoff for a classified failure.
// Zero means no retry (permanent disable).
func retryDelay(class channels.ErrorClass, attempts int) time.Duration {
	switch class {
	case channels.ErrClassPermission:
		return 0
	case channels.ErrClassRateLimit:
		return rateLimitDelay
	case channels.ErrClassNotFound:
		return notFoundDelay
	default:
		d := unknownBaseDelay
		for i := 1; i < attempts; i++ {
			d *= 2
			if d >= unknownMaxDelay {
				return unknownMaxDelay
			}
		}
		return d
	}
}

// ClassifyError is the fallback error classifier used when an adapter does
// not provide its own: substring matching against known error codes and
// phrases across the supported platforms.
func ClassifyError(err error) channels.ErrorClass {
	if err == nil {
		return channels.ErrClassUnknown
	}
	msg := strings.ToLower(err.Error())

	for _, kw := range []string{
		"missing_scope", "not_allowed_token_type", "forbidden", "permission",
		"not enough rights", "unauthorized", "401", "403", "missing access",
	} {
		if strings.Contains(msg, kw) {
			return channels.ErrClassPermission
		}
	}
	for _, kw := range []string{
		"rate_limited", "rate limit", "retry after", "too many requests", "429",
	} {
		if strings.Contains(msg, kw) {
			return channels.ErrClassRateLimit
		}
	}
	for _, kw := range []string{
		"not_found", "not found", "thread not found", "topic not found", "404",
	} {
		if strings.Contains(msg, kw) {
			return channels.ErrClassNotFound
		}
	}
	return channels.ErrClassUnknown
}

// defaultPlaceholders is the recognized vocabulary of platform default titles.
// The engine never treats a thread carrying one of these as already-named.
// Coverage is heuristic; deployments extend it via config.
var defaultPlaceholders = []string{
	"new conversation",
	"untitled",
	"general",
	"no title",
	"new chat",
	"new topic",
}

// isPlaceholderTitle reports whether a current platform title is one of the
// recognized defaults (case-insensitive)
func isPlaceholderTitle(title string, extra []string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return true
	}
	for _, p := range defaultPlaceholders {
		if t == p {
			return true
		}
	}
	for _, p := range extra {
		if t == strings.ToLower(strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}
