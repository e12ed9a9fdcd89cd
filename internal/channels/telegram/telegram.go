package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/parleybot/parley/internal/channels"
	"github.com/parleybot/parley/internal/logging"
)

const defaultBaseURL = "https://api.telegram.org"

// Adapter implements the Channel interface for Telegram over the Bot API
type Adapter struct {
	token   string
	baseURL string
	client  *http.Client
	handler func(channels.InboundMessage)
	mu      sync.RWMutex
	cancel  context.CancelFunc
}

// New creates a new Telegram adapter
func New() *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 65 * time.Second},
	}
}

// ID returns the channel identifier
func (a *Adapter) ID() string {
	return "telegram"
}

// Channel returns the channel identifier for the title contract
func (a *Adapter) Channel() string {
	return "telegram"
}

// Connect validates the token and starts the update long-poll loop
func (a *Adapter) Connect(ctx context.Context, cfg channels.ChannelConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("telegram bot token is required")
	}
	a.token = cfg.Token

	if _, err := a.call(ctx, "getMe", nil); err != nil {
		return fmt.Errorf("failed to authenticate with telegram: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.poll(ctx)
	logging.Infof("telegram: connected and polling for updates")
	return nil
}

// Disconnect stops the update loop
func (a *Adapter) Disconnect() error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

// Send delivers a message via sendMessage
func (a *Adapter) Send(ctx context.Context, msg channels.OutboundMessage) error {
	params := map[string]any{
		"chat_id": msg.ChannelID,
		"text":    msg.Text,
	}
	if msg.ThreadID != "" {
		if id, err := strconv.ParseInt(msg.ThreadID, 10, 64); err == nil {
			params["message_thread_id"] = id
		}
	}
	_, err := a.call(ctx, "sendMessage", params)
	return err
}

// SetHandler sets the callback for incoming messages
func (a *Adapter) SetHandler(fn func(channels.InboundMessage)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = fn
}

// update mirrors the slice of the Bot API update payload the adapter reads
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64 `json:"message_id"`
		ThreadID  int64 `json:"message_thread_id"`
		From      *struct {
			ID        int64  `json:"id"`
			IsBot     bool   `json:"is_bot"`
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat *struct {
			ID      int64 `json:"id"`
			IsForum bool  `json:"is_forum"`
		} `json:"chat"`
		Text              string `json:"text"`
		ForumTopicCreated *struct {
			Name string `json:"name"`
		} `json:"forum_topic_created"`
	} `json:"message"`
}

// poll runs the getUpdates long-poll loop
func (a *Adapter) poll(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := a.call(ctx, "getUpdates", map[string]any{
			"timeout": 30,
			"offset":  offset,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warnf("telegram: getUpdates failed: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}

		var updates []update
		if err := json.Unmarshal(raw, &updates); err != nil {
			logging.Warnf("telegram: bad update payload: %v", err)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			a.handleUpdate(u)
		}
	}
}

func (a *Adapter) handleUpdate(u update) {
	m := u.Message
	if m == nil || m.From == nil || m.From.IsBot || m.Chat == nil || m.Text == "" {
		return
	}

	name := m.From.FirstName
	if name == "" {
		name = m.From.Username
	}

	// The topic creation service message carries the topic's id as its own
	// message id, so the opening user message is the one right after it.
	firstInThread := m.ForumTopicCreated != nil ||
		(m.ThreadID > 0 && m.MessageID == m.ThreadID+1)

	inbound := channels.InboundMessage{
		ChannelType:   "telegram",
		ChannelID:     strconv.FormatInt(m.Chat.ID, 10),
		MessageID:     strconv.FormatInt(m.MessageID, 10),
		Text:          m.Text,
		SenderID:      strconv.FormatInt(m.From.ID, 10),
		SenderName:    name,
		FirstInThread: firstInThread,
	}
	if m.ThreadID > 0 {
		inbound.ThreadID = strconv.FormatInt(m.ThreadID, 10)
	}

	a.mu.RLock()
	handler := a.handler
	a.mu.RUnlock()

	if handler != nil {
		handler(inbound)
	}
}

// apiResponse is the Bot API envelope
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// apiError is a Bot API failure with its code, description and retry hint
type apiError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// call invokes one Bot API method and returns the raw result payload
func (a *Adapter) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	endpoint, err := url.JoinPath(a.baseURL, "bot"+a.token, method)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("telegram decode: %w", err)
	}
	if !envelope.OK {
		apiErr := &apiError{
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return nil, apiErr
	}
	return envelope.Result, nil
}
