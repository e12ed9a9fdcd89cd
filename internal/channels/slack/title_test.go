package slack

import (
	"errors"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/parleybot/parley/internal/channels"
)

func TestClassifyTitleError(t *testing.T) {
	a := New()

	tests := []struct {
		err  error
		want channels.ErrorClass
	}{
		{nil, channels.ErrClassUnknown},
		{errors.New("missing_scope"), channels.ErrClassPermission},
		{errors.New("not_allowed_token_type"), channels.ErrClassPermission},
		{errors.New("invalid_auth"), channels.ErrClassPermission},
		{errors.New("restricted_action"), channels.ErrClassPermission},
		{&slack.RateLimitedError{RetryAfter: 30 * time.Second}, channels.ErrClassRateLimit},
		{errors.New("rate_limited"), channels.ErrClassRateLimit},
		{errors.New("channel_not_found"), channels.ErrClassNotFound},
		{errors.New("is_archived"), channels.ErrClassNotFound},
		{errors.New("internal_error"), channels.ErrClassUnknown},
	}
	for _, tt := range tests {
		if got := a.ClassifyTitleError(tt.err); got != tt.want {
			t.Errorf("ClassifyTitleError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	a := New()

	err := &slack.RateLimitedError{RetryAfter: 45 * time.Second}
	if got := a.RetryAfter(err, channels.ErrClassRateLimit); got != 45*time.Second {
		t.Errorf("RetryAfter = %s, want 45s", got)
	}
	if got := a.RetryAfter(errors.New("rate_limited"), channels.ErrClassRateLimit); got != 0 {
		t.Errorf("RetryAfter without platform hint = %s, want 0", got)
	}
}
