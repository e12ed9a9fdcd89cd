package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/parleybot/parley/internal/channels"
	"github.com/parleybot/parley/internal/logging"
)

// Adapter implements the Channel interface for Discord
type Adapter struct {
	session *discordgo.Session
	handler func(channels.InboundMessage)
	mu      sync.RWMutex
}

// New creates a new Discord adapter
func New() *Adapter {
	return &Adapter{}
}

// ID returns the channel identifier
func (a *Adapter) ID() string {
	return "discord"
}

// Channel returns the channel identifier for the title contract
func (a *Adapter) Channel() string {
	return "discord"
}

// Connect establishes connection to Discord
func (a *Adapter) Connect(ctx context.Context, cfg channels.ChannelConfig) error {
	if cfg.Token == "" {
		return fmt.Errorf("discord bot token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	session.AddHandler(a.messageHandler)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	a.session = session
	logging.Infof("discord: connected and listening")
	return nil
}

// Disconnect closes the connection
func (a *Adapter) Disconnect() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

// Send sends a message to a Discord channel
func (a *Adapter) Send(ctx context.Context, msg channels.OutboundMessage) error {
	if a.session == nil {
		return fmt.Errorf("discord bot not connected")
	}

	channelID := msg.ChannelID
	if msg.ThreadID != "" {
		channelID = msg.ThreadID
	}
	_, err := a.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Text,
	}, discordgo.WithContext(ctx))
	return err
}

// SetHandler sets the callback for incoming messages
func (a *Adapter) SetHandler(fn func(channels.InboundMessage)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = fn
}

// messageHandler handles incoming Discord messages
func (a *Adapter) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore the bot's own messages
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	inbound := channels.InboundMessage{
		ChannelType: "discord",
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		Text:        m.Content,
		SenderID:    m.Author.ID,
		SenderName:  m.Author.Username,
		Raw:         m,
	}

	// A message inside a thread arrives with the thread as its channel id.
	if ch, err := s.State.Channel(m.ChannelID); err == nil && ch.IsThread() {
		inbound.ChannelID = ch.ParentID
		inbound.ThreadID = m.ChannelID
		inbound.FirstInThread = ch.MessageCount <= 1
	} else if m.Thread != nil {
		inbound.ThreadID = m.Thread.ID
		inbound.FirstInThread = m.Thread.MessageCount <= 1
	}

	a.mu.RLock()
	handler := a.handler
	a.mu.RUnlock()

	if handler != nil {
		handler(inbound)
	}
}
