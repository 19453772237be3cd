// Package discord implements the listener contract for Discord using the
// Gateway WebSocket.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/switchboard/internal/command"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	Channel(channelID string) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) Channel(channelID string) (*discordgo.Channel, error) {
	return r.s.State.Channel(channelID)
}
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}

// Listener produces messages from Discord and delivers replies via the
// Gateway WebSocket.
type Listener struct {
	id            string
	sess          session
	botToken      string
	channelID     string // default channel for replies without one
	botUserID     string
	mu            sync.Mutex
	connected     bool
	closed        bool
	inbound       chan command.Message
	cancelFunc    context.CancelFunc
	removeHandler func()
	baseBackoff   time.Duration
	maxBackoff    time.Duration
}

// Opts holds parameters for creating a Discord Listener.
type Opts struct {
	ID        string // listener id, recorded on produced contexts
	BotToken  string // Discord bot token
	ChannelID string // default channel to post to
	// For testing: inject a mock session instead of the real Discord API.
	Session session
}

// New creates a Discord Listener.
func New(opts Opts) (*Listener, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("discord: id is required")
	}
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}

	l := &Listener{
		id:          opts.ID,
		botToken:    opts.BotToken,
		channelID:   opts.ChannelID,
		inbound:     make(chan command.Message, 100),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if opts.Session != nil {
		l.sess = opts.Session
	}
	return l, nil
}

// ID returns the listener's stable identifier.
func (l *Listener) ID() string {
	return l.id
}

// Connect establishes the Discord Gateway WebSocket connection.
func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("discord: listener already closed")
	}
	if l.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if l.sess == nil {
		dg, err := discordgo.New("Bot " + l.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
		l.sess = &realSession{s: dg}
	}

	// Capture bot user ID on connect/reconnect for self-message filtering.
	l.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		l.mu.Lock()
		l.botUserID = r.User.ID
		l.mu.Unlock()
		log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
	})
	l.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})

	if err := l.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	l.connected = true
	return nil
}

// Listen returns a channel of inbound messages. Must be called after Connect.
func (l *Listener) Listen(ctx context.Context) (<-chan command.Message, error) {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil, fmt.Errorf("discord: not connected")
	}
	l.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	remove := l.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		l.handleMessage(m)
	})

	l.mu.Lock()
	l.cancelFunc = cancel
	l.removeHandler = remove
	l.mu.Unlock()

	go func() {
		<-listenCtx.Done()
	}()

	return l.inbound, nil
}

// Send delivers reply text to the context's channel or thread.
func (l *Listener) Send(ctx context.Context, cmdCtx command.Context, text string) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	l.mu.Unlock()

	// In Discord, threads are channels; a thread id is a channel id.
	channelID := cmdCtx.ThreadID
	if channelID == "" {
		channelID = cmdCtx.ChannelID
	}
	if channelID == "" {
		channelID = l.channelID
	}
	if channelID == "" {
		return fmt.Errorf("discord: no channel specified")
	}

	err := l.retryOnRateLimit(ctx, func() error {
		_, sendErr := l.sess.ChannelMessageSend(channelID, text)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Close gracefully shuts down the listener connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.connected = false
	if l.cancelFunc != nil {
		l.cancelFunc()
	}
	if l.removeHandler != nil {
		l.removeHandler()
	}
	close(l.inbound)
	if l.sess != nil {
		return l.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Connect).
func (l *Listener) BotUserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.botUserID
}

// handleMessage converts a Discord message event into an inbound message.
func (l *Listener) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	l.mu.Lock()
	botID := l.botUserID
	l.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	// A message's ChannelID is the thread id if it was sent inside a
	// thread; resolve the parent channel from the state cache.
	channelID := m.ChannelID
	threadID := ""
	if ch, err := l.sess.Channel(m.ChannelID); err == nil && ch.IsThread() {
		channelID = ch.ParentID
		threadID = m.ChannelID
	}

	l.inbound <- command.NewTextMessage(m.Content, command.Context{
		ListenerID: l.id,
		ChannelID:  channelID,
		ThreadID:   threadID,
		UserID:     m.Author.ID,
		UserName:   m.Author.Username,
	})
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (l *Listener) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * l.baseBackoff
		if wait > l.maxBackoff {
			wait = l.maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
