// Package slack implements the listener contract for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/switchboard/internal/command"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Listener produces messages from Slack Socket Mode events and delivers
// replies through chat.postMessage.
type Listener struct {
	id           string
	client       slackClient
	socket       socketClient
	botUserID    string
	appToken     string
	botToken     string
	channelID    string // default channel for replies without one
	mu           sync.Mutex
	connected    bool
	closed       bool
	inbound      chan command.Message
	cancelFunc   context.CancelFunc
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// Opts holds parameters for creating a Slack Listener.
type Opts struct {
	ID        string // listener id, recorded on produced contexts
	AppToken  string // xapp-... Slack app-level token for Socket Mode
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // default channel to post to
	// For testing: inject mock clients instead of the real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Listener.
func New(opts Opts) (*Listener, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("slack: id is required")
	}
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}

	l := &Listener{
		id:           opts.ID,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		channelID:    opts.ChannelID,
		inbound:      make(chan command.Message, 100),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}

	if opts.Client != nil {
		l.client = opts.Client
	}
	if opts.Socket != nil {
		l.socket = opts.Socket
	}

	return l, nil
}

// ID returns the listener's stable identifier.
func (l *Listener) ID() string {
	return l.id
}

// Connect establishes the Socket Mode WebSocket connection.
func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("slack: listener already closed")
	}
	if l.connected {
		return nil
	}

	// Create real clients if not injected (production path).
	if l.client == nil {
		api := slackapi.New(l.botToken, slackapi.OptionAppLevelToken(l.appToken))
		l.client = api
		l.socket = &realSocketClient{client: socketmode.New(api)}
	}

	// Get bot user ID for self-message filtering.
	auth, err := l.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	l.botUserID = auth.UserID

	l.connected = true
	return nil
}

// Listen returns a channel of inbound messages. Starts the Socket Mode
// event pump in a background goroutine. Must be called after Connect.
func (l *Listener) Listen(ctx context.Context) (<-chan command.Message, error) {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	l.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancelFunc = cancel
	l.mu.Unlock()

	// Start socket mode in background with reconnection logic.
	go l.runWithReconnect(listenCtx)

	// Pump events from socket mode to inbound channel.
	go l.pumpEvents(listenCtx)

	return l.inbound, nil
}

// Send delivers reply text to the context's channel, threading when the
// originating message was in a thread.
func (l *Listener) Send(ctx context.Context, cmdCtx command.Context, text string) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return fmt.Errorf("slack: not connected")
	}
	l.mu.Unlock()

	channelID := cmdCtx.ChannelID
	if channelID == "" {
		channelID = l.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	options := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if cmdCtx.ThreadID != "" {
		options = append(options, slackapi.MsgOptionTS(cmdCtx.ThreadID))
	}

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := l.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close shuts down the listener and closes the inbound channel.
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
	close(l.inbound)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (l *Listener) BotUserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.botUserID
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when Run() returns an error (e.g., reconnection failure).
func (l *Listener) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < l.maxReconnect; attempt++ {
		err := l.socket.Run()
		if err == nil {
			return // clean shutdown
		}

		// Check if we're shutting down.
		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * l.baseBackoff
		if wait > l.maxBackoff {
			wait = l.maxBackoff
		}

		log.Printf("slack: socket mode disconnected (attempt %d/%d): %v, reconnecting in %v",
			attempt+1, l.maxReconnect, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Printf("slack: socket mode exhausted %d reconnection attempts, giving up", l.maxReconnect)
}

// pumpEvents reads Socket Mode events and converts them to inbound messages.
func (l *Listener) pumpEvents(ctx context.Context) {
	events := l.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			l.handleSocketEvent(evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (l *Listener) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		// Acknowledge the event.
		if evt.Request != nil {
			l.socket.Ack(*evt.Request)
		}
		l.handleEventsAPI(eventsAPIEvent)

	case socketmode.EventTypeConnecting:
		log.Printf("slack: connecting to Socket Mode...")

	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)

	case socketmode.EventTypeDisconnect:
		log.Printf("slack: server requested disconnect, will reconnect")
	}
}

// handleEventsAPI processes Events API callbacks.
func (l *Listener) handleEventsAPI(event slackevents.EventsAPIEvent) {
	switch event.Type {
	case slackevents.CallbackEvent:
		innerEvent := event.InnerEvent
		switch ev := innerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			l.handleMessage(ev)
		case *slackevents.AppMentionEvent:
			l.handleAppMention(ev)
		}
	}
}

// handleMessage converts a Slack message event to an inbound message.
func (l *Listener) handleMessage(ev *slackevents.MessageEvent) {
	// Filter bot self-messages.
	if ev.User == l.botUserID {
		return
	}
	// Filter bot messages and message subtypes (edits, deletes, etc.).
	if ev.BotID != "" || ev.SubType != "" {
		return
	}

	l.inbound <- command.NewTextMessage(ev.Text, command.Context{
		ListenerID: l.id,
		ChannelID:  ev.Channel,
		ThreadID:   ev.ThreadTimeStamp,
		UserID:     ev.User,
		UserName:   l.resolveUserName(ev.User),
	})
}

// handleAppMention converts a Slack @mention event to an inbound message.
func (l *Listener) handleAppMention(ev *slackevents.AppMentionEvent) {
	// Filter self-mentions (shouldn't happen but be safe).
	if ev.User == l.botUserID {
		return
	}

	l.inbound <- command.NewTextMessage(ev.Text, command.Context{
		ListenerID: l.id,
		ChannelID:  ev.Channel,
		ThreadID:   ev.ThreadTimeStamp,
		UserID:     ev.User,
		UserName:   l.resolveUserName(ev.User),
	})
}

// resolveUserName looks up a user's display name. Falls back to user ID.
func (l *Listener) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	user, err := l.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
