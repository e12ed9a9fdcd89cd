package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/parleybot/parley/internal/channels"
)

// SetTitle renames a Discord thread. Renaming to the name the thread already
// carries is a no-op on the platform, so duplicate identical calls are safe.
func (a *Adapter) SetTitle(ctx context.Context, target channels.TitleTarget, title string) error {
	if a.session == nil {
		return fmt.Errorf("discord bot not connected")
	}
	threadID := strings.TrimSpace(target.ThreadID)
	if threadID == "" {
		return fmt.Errorf("missing thread id")
	}
	_, err := a.session.ChannelEdit(threadID, &discordgo.ChannelEdit{
		Name: title,
	}, discordgo.WithContext(ctx))
	return err
}

// CurrentTitle reads the thread's current name
func (a *Adapter) CurrentTitle(ctx context.Context, target channels.TitleTarget) (string, error) {
	if a.session == nil {
		return "", fmt.Errorf("discord bot not connected")
	}
	ch, err := a.session.Channel(strings.TrimSpace(target.ThreadID), discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(ch.Name), nil
}

// ClassifyTitleError maps Discord REST errors into the four-class taxonomy
func (a *Adapter) ClassifyTitleError(err error) channels.ErrorClass {
	if err == nil {
		return channels.ErrClassUnknown
	}

	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return channels.ErrClassRateLimit
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
				return channels.ErrClassPermission
			case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage:
				return channels.ErrClassNotFound
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusForbidden, http.StatusUnauthorized:
				return channels.ErrClassPermission
			case http.StatusNotFound:
				return channels.ErrClassNotFound
			case http.StatusTooManyRequests:
				return channels.ErrClassRateLimit
			}
		}
		return channels.ErrClassUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "missing permissions") || strings.Contains(msg, "missing access") || strings.Contains(msg, "403"):
		return channels.ErrClassPermission
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return channels.ErrClassRateLimit
	case strings.Contains(msg, "unknown channel") || strings.Contains(msg, "404"):
		return channels.ErrClassNotFound
	default:
		return channels.ErrClassUnknown
	}
}

// RetryAfter honors the platform-reported retry-after for rate limits
func (a *Adapter) RetryAfter(err error, class channels.ErrorClass) time.Duration {
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) && rateErr.RateLimit != nil && rateErr.RateLimit.TooManyRequests != nil && rateErr.RetryAfter > 0 {
		return rateErr.RetryAfter
	}
	return 0
}
