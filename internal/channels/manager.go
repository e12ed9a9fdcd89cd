package channels

import (
	"fmt"
	"sync"
)

// Manager tracks registered channel adapters by id
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewManager creates an empty channel manager
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds a channel adapter. Registering the same id twice is an error.
func (m *Manager) Register(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("nil channel")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch.ID()]; ok {
		return fmt.Errorf("channel %q already registered", ch.ID())
	}
	m.channels[ch.ID()] = ch
	return nil
}

// Get returns the adapter for a channel id, or nil
func (m *Manager) Get(id string) Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[id]
}

// TitleSetter returns the title capability of a registered channel, or nil
// when the channel is missing or does not support titles.
func (m *Manager) TitleSetter(id string) TitleSetter {
	ch := m.Get(id)
	if ch == nil {
		return nil
	}
	if ts, ok := ch.(TitleSetter); ok {
		return ts
	}
	return nil
}

// All returns every registered adapter
func (m *Manager) All() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	return out
}
