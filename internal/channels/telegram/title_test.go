package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parleybot/parley/internal/channels"
)

func topicTarget(threadID string) channels.TitleTarget {
	return channels.TitleTarget{
		Channel:        "telegram",
		ConversationID: "-1001234567890",
		ThreadID:       threadID,
	}
}

func TestResolveThreadKey(t *testing.T) {
	a := New()

	if key := a.ResolveThreadKey(topicTarget("42")); key != "telegram:-1001234567890:42" {
		t.Errorf("key = %q", key)
	}

	// The General topic and non-topic messages cannot be renamed.
	for _, id := range []string{"1", "0", "-5", "", "abc"} {
		if key := a.ResolveThreadKey(topicTarget(id)); key != "" {
			t.Errorf("thread id %q resolved to %q, want unsupported", id, key)
		}
	}
}

func TestClassifyTitleError(t *testing.T) {
	a := New()

	tests := []struct {
		name string
		err  error
		want channels.ErrorClass
	}{
		{"nil", nil, channels.ErrClassUnknown},
		{"not enough rights", &apiError{Code: 400, Description: "Bad Request: not enough rights to manage topics"}, channels.ErrClassPermission},
		{"forbidden", &apiError{Code: 403, Description: "Forbidden: bot was kicked from the supergroup chat"}, channels.ErrClassPermission},
		{"flood", &apiError{Code: 429, Description: "Too Many Requests: retry after 31"}, channels.ErrClassRateLimit},
		{"topic missing", &apiError{Code: 400, Description: "Bad Request: message thread not found"}, channels.ErrClassNotFound},
		{"chat missing", &apiError{Code: 400, Description: "Bad Request: chat not found"}, channels.ErrClassNotFound},
		{"opaque", &apiError{Code: 400, Description: "Bad Request: TOPIC_CLOSED"}, channels.ErrClassUnknown},
		{"transport", errors.New("dial tcp: connection refused"), channels.ErrClassUnknown},
	}
	for _, tt := range tests {
		if got := a.ClassifyTitleError(tt.err); got != tt.want {
			t.Errorf("%s: ClassifyTitleError = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	a := New()

	err := &apiError{Code: 429, Description: "Too Many Requests: retry after 31", RetryAfter: 31 * time.Second}
	if got := a.RetryAfter(err, channels.ErrClassRateLimit); got != 31*time.Second {
		t.Errorf("RetryAfter = %s, want 31s", got)
	}
	if got := a.RetryAfter(errors.New("429"), channels.ErrClassRateLimit); got != 0 {
		t.Errorf("RetryAfter without platform hint = %s, want 0", got)
	}
}

func TestSetTitle(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	a := New()
	a.token = "test-token"
	a.baseURL = srv.URL

	if err := a.SetTitle(context.Background(), topicTarget("42"), "Release Checklist"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	if gotPath != "/bottest-token/editForumTopic" {
		t.Errorf("path = %q", gotPath)
	}

	if err := a.SetTitle(context.Background(), topicTarget("abc"), "x"); err == nil {
		t.Error("expected error for non-numeric thread id")
	}
}

func TestSetTitleNotModifiedIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: TOPIC_NOT_MODIFIED"}`))
	}))
	defer srv.Close()

	a := New()
	a.token = "test-token"
	a.baseURL = srv.URL

	if err := a.SetTitle(context.Background(), topicTarget("42"), "Release Checklist"); err != nil {
		t.Errorf("TOPIC_NOT_MODIFIED should be treated as success, got %v", err)
	}
}

func TestSetTitleSurfacesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`))
	}))
	defer srv.Close()

	a := New()
	a.token = "test-token"
	a.baseURL = srv.URL

	err := a.SetTitle(context.Background(), topicTarget("42"), "Release Checklist")
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want apiError", err)
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("retry_after = %s, want 7s", apiErr.RetryAfter)
	}
	if a.ClassifyTitleError(err) != channels.ErrClassRateLimit {
		t.Errorf("class = %s, want rate_limit", a.ClassifyTitleError(err))
	}
}
