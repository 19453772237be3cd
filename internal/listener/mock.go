package listener

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/switchboard/internal/command"
)

// MockListener is an in-memory Listener implementation for tests. It records
// everything sent through it and lets tests inject inbound messages.
type MockListener struct {
	id string

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan command.Message
	sent      []SentMessage

	// Error injection for testing failure paths.
	ConnectErr error
	SendErr    error
}

// SentMessage records a message delivered through Send.
type SentMessage struct {
	Context command.Context
	Text    string
}

// NewMock creates a MockListener with the given id.
func NewMock(id string) *MockListener {
	return &MockListener{
		id:      id,
		inbound: make(chan command.Message, 100),
	}
}

// ID returns the listener's identifier.
func (m *MockListener) ID() string {
	return m.id
}

// Connect marks the mock as connected, or returns ConnectErr if set.
func (m *MockListener) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.closed {
		return fmt.Errorf("mock: listener already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound channel.
func (m *MockListener) Listen(ctx context.Context) (<-chan command.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock: not connected")
	}
	return m.inbound, nil
}

// Send records the outgoing text, or returns SendErr if set.
func (m *MockListener) Send(ctx context.Context, cmdCtx command.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	if !m.connected {
		return fmt.Errorf("mock: not connected")
	}
	m.sent = append(m.sent, SentMessage{Context: cmdCtx, Text: text})
	return nil
}

// Close marks the mock closed and closes the inbound channel.
func (m *MockListener) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// SimulateInbound injects a message as if it arrived from the platform.
func (m *MockListener) SimulateInbound(msg command.Message) {
	m.inbound <- msg
}

// LastSent returns the most recently sent message, or false if none.
func (m *MockListener) LastSent() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// AllSent returns a copy of every message sent through the mock.
func (m *MockListener) AllSent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns the number of sent messages.
func (m *MockListener) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
