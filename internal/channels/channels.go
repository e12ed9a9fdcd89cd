package channels

import "context"

// InboundMessage is a message received from a chat platform
type InboundMessage struct {
	ChannelType   string `json:"channel_type"`
	ChannelID     string `json:"channel_id"`
	MessageID     string `json:"message_id"`
	Text          string `json:"text"`
	SenderID      string `json:"sender_id"`
	SenderName    string `json:"sender_name"`
	ThreadID      string `json:"thread_id,omitempty"`
	FirstInThread bool   `json:"first_in_thread,omitempty"`
	Raw           any    `json:"-"`
}

// OutboundMessage is a message to deliver to a chat platform
type OutboundMessage struct {
	ChannelID string `json:"channel_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	Text      string `json:"text"`
}

// ChannelConfig holds connection settings for a channel adapter
type ChannelConfig struct {
	Token    string `json:"token"`
	AppToken string `json:"app_token,omitempty"`
}

// Channel is the interface implemented by every platform adapter
type Channel interface {
	// ID returns the channel identifier (e.g. "slack", "discord", "telegram")
	ID() string

	// Connect establishes the platform connection and starts listening
	Connect(ctx context.Context, cfg ChannelConfig) error

	// Disconnect closes the connection
	Disconnect() error

	// Send delivers a message to the platform
	Send(ctx context.Context, msg OutboundMessage) error

	// SetHandler sets the callback for incoming messages
	SetHandler(fn func(InboundMessage))
}
