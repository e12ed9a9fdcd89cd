package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/parleybot/parley/internal/channels"
)

// Slack has no per-thread titles; the adapter names the conversation by
// setting its topic, which is what the workspace UI surfaces.

// SetTitle sets the conversation topic
func (a *Adapter) SetTitle(ctx context.Context, target channels.TitleTarget, title string) error {
	if a.client == nil {
		return fmt.Errorf("slack bot not connected")
	}
	conv := strings.TrimSpace(target.ConversationID)
	if conv == "" {
		return fmt.Errorf("missing conversation id")
	}
	_, err := a.client.SetTopicOfConversationContext(ctx, conv, title)
	return err
}

// CurrentTitle reads the current conversation topic
func (a *Adapter) CurrentTitle(ctx context.Context, target channels.TitleTarget) (string, error) {
	if a.client == nil {
		return "", fmt.Errorf("slack bot not connected")
	}
	info, err := a.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: strings.TrimSpace(target.ConversationID),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(info.Topic.Value), nil
}

// ClassifyTitleError maps Slack API errors into the four-class taxonomy.
// Slack reports failures as short error codes in the response body.
func (a *Adapter) ClassifyTitleError(err error) channels.ErrorClass {
	if err == nil {
		return channels.ErrClassUnknown
	}
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return channels.ErrClassRateLimit
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg,
		"missing_scope", "not_allowed_token_type", "restricted_action",
		"forbidden", "not_authed", "invalid_auth", "token_revoked", "no_permission"):
		return channels.ErrClassPermission
	case containsAny(msg, "rate_limited", "ratelimited", "429", "retry after"):
		return channels.ErrClassRateLimit
	case containsAny(msg,
		"channel_not_found", "thread_not_found", "not_in_channel", "is_archived"):
		return channels.ErrClassNotFound
	default:
		return channels.ErrClassUnknown
	}
}

// RetryAfter honors the platform-reported retry-after for rate limits
func (a *Adapter) RetryAfter(err error, class channels.ErrorClass) time.Duration {
	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		return rateErr.RetryAfter
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
