package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/parleybot/parley/internal/channels"
)

// SetTitle renames a forum topic via editForumTopic
func (a *Adapter) SetTitle(ctx context.Context, target channels.TitleTarget, title string) error {
	topicID, err := strconv.ParseInt(target.ThreadID, 10, 64)
	if err != nil {
		return errors.New("telegram: thread id is not a topic id")
	}
	_, err = a.call(ctx, "editForumTopic", map[string]any{
		"chat_id":           target.ConversationID,
		"message_thread_id": topicID,
		"name":              title,
	})
	var apiErr *apiError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "TOPIC_NOT_MODIFIED") {
		// the topic already carries this name
		return nil
	}
	return err
}

// ResolveThreadKey rejects targets that are not real forum topics. Topic id 1
// is the "General" topic and ids below that are regular chat messages, and
// neither can be renamed through editForumTopic.
func (a *Adapter) ResolveThreadKey(target channels.TitleTarget) string {
	topicID, err := strconv.ParseInt(target.ThreadID, 10, 64)
	if err != nil || topicID <= 1 {
		return ""
	}
	return channels.DefaultThreadKey(target)
}

// ClassifyTitleError maps a Bot API failure to a title error class
func (a *Adapter) ClassifyTitleError(err error) channels.ErrorClass {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		switch {
		case apiErr.Code == 429 || strings.Contains(desc, "retry after") || strings.Contains(desc, "too many requests"):
			return channels.ErrClassRateLimit
		case apiErr.Code == 403 || strings.Contains(desc, "not enough rights") || strings.Contains(desc, "forbidden") ||
			strings.Contains(desc, "bot was kicked") || strings.Contains(desc, "have no rights"):
			return channels.ErrClassPermission
		case strings.Contains(desc, "topic not found") || strings.Contains(desc, "chat not found") ||
			strings.Contains(desc, "message thread not found") || strings.Contains(desc, "topic_deleted"):
			return channels.ErrClassNotFound
		}
	}
	return channels.ErrClassUnknown
}

// RetryAfter surfaces the rate-limit hint from the Bot API response
func (a *Adapter) RetryAfter(err error, class channels.ErrorClass) time.Duration {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
