package channels

import (
	"context"
	"strings"
	"time"
)

// ErrorClass is the normalized failure category that every platform-specific
// title error is mapped into.
type ErrorClass string

const (
	ErrClassPermission ErrorClass = "permission"
	ErrClassRateLimit  ErrorClass = "rate_limit"
	ErrClassNotFound   ErrorClass = "not_found"
	ErrClassUnknown    ErrorClass = "unknown"
)

// TitleTarget identifies a conversation or thread on a channel.
// It is constructed per call and never persisted.
type TitleTarget struct {
	Channel        string `json:"channel"`
	AccountID      string `json:"account_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ThreadID       string `json:"thread_id,omitempty"`
	To             string `json:"to,omitempty"`
}

// TitleSetter is the one required title capability of a channel adapter.
// SetTitle returns an error on failure; the caller classifies it.
type TitleSetter interface {
	Channel() string
	SetTitle(ctx context.Context, target TitleTarget, title string) error
}

// ThreadKeyResolver lets an adapter apply platform-specific validity rules
// when deriving the stable thread key (e.g. Telegram rejects non-forum
// "general" topic ids). Returning "" marks the target unsupported.
type ThreadKeyResolver interface {
	ResolveThreadKey(target TitleTarget) string
}

// TitleReader reports the title currently set on the platform, or "" when
// the thread has none.
type TitleReader interface {
	CurrentTitle(ctx context.Context, target TitleTarget) (string, error)
}

// ErrorClassifier maps an adapter's native error into the four-class taxonomy.
type ErrorClassifier interface {
	ClassifyTitleError(err error) ErrorClass
}

// RetryHinter lets an adapter override the default backoff, typically from a
// platform-reported retry-after value. Zero means no hint.
type RetryHinter interface {
	RetryAfter(err error, class ErrorClass) time.Duration
}

// DefaultThreadKey derives the generic thread key "{channel}:{conv|to}:{thread}".
// All three components must be non-empty; otherwise the target is unsupported.
func DefaultThreadKey(target TitleTarget) string {
	channel := strings.TrimSpace(target.Channel)
	conv := strings.TrimSpace(target.ConversationID)
	if conv == "" {
		conv = strings.TrimSpace(target.To)
	}
	thread := strings.TrimSpace(target.ThreadID)
	if channel == "" || conv == "" || thread == "" {
		return ""
	}
	return channel + ":" + conv + ":" + thread
}
