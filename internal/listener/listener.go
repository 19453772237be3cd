// Package listener defines the contract chat-platform implementations
// satisfy: produce inbound messages for the bot, deliver replies back to
// the originating channel.
package listener

import (
	"context"

	"github.com/zulandar/switchboard/internal/command"
)

// Listener is the interface that platform-specific implementations must
// satisfy. Each listener handles connection management, message receiving,
// and reply delivery for a single platform.
type Listener interface {
	// ID returns the listener's stable identifier, recorded on the
	// contexts of messages it produces so replies can be routed back.
	ID() string

	// Connect establishes a connection to the platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages. The channel is closed
	// when the context is cancelled or the listener is closed. Listen must
	// only be called after Connect.
	Listen(ctx context.Context) (<-chan command.Message, error)

	// Send delivers reply text to the channel/thread named by the context.
	Send(ctx context.Context, cmdCtx command.Context, text string) error

	// Close gracefully shuts down the connection.
	Close() error
}

// BotUserIDer is an optional interface that listeners can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}
