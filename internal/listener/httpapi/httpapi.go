// Package httpapi implements the listener contract over HTTP using gin.
// A POST /messages request injects a message and blocks until the bot has
// replied, so HTTP clients see a request/response exchange even though the
// bot dispatches asynchronously.
package httpapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/command"
)

// defaultReplyWait bounds how long a POST /messages call waits for replies.
const defaultReplyWait = 10 * time.Second

// quietWindow is how long to keep collecting after the first reply, so
// multi-reply dispatches are returned together.
const quietWindow = 250 * time.Millisecond

// TokenVerifier checks a bearer token and returns the user id it belongs to.
type TokenVerifier interface {
	VerifySession(token string) (userID string, err error)
}

// Listener serves the HTTP message API.
type Listener struct {
	id       string
	port     int
	verifier TokenVerifier

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan command.Message
	waiters   map[string]chan string // request id -> reply sink
	srv       *http.Server
	replyWait time.Duration
}

// Opts holds parameters for creating an HTTP Listener.
type Opts struct {
	ID   string
	Port int
	// Verifier, when set, requires a valid bearer token on POST /messages
	// and binds the message to the token's user.
	Verifier TokenVerifier
}

// New creates an HTTP Listener.
func New(opts Opts) (*Listener, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("httpapi: id is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	return &Listener{
		id:        opts.ID,
		port:      opts.Port,
		verifier:  opts.Verifier,
		inbound:   make(chan command.Message, 100),
		waiters:   make(map[string]chan string),
		replyWait: defaultReplyWait,
	}, nil
}

// ID returns the listener's stable identifier.
func (l *Listener) ID() string {
	return l.id
}

// Connect starts the HTTP server in the background.
func (l *Listener) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("httpapi: listener already closed")
	}
	if l.connected {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	l.registerRoutes(router)

	l.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", l.port),
		Handler: router,
	}

	go func() {
		if err := l.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("httpapi: server error: %v", err)
		}
	}()

	l.connected = true
	return nil
}

// Listen returns the channel of inbound messages.
func (l *Listener) Listen(ctx context.Context) (<-chan command.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil, fmt.Errorf("httpapi: not connected")
	}
	return l.inbound, nil
}

// Send routes reply text back to the waiting HTTP request identified by the
// context's channel id. Replies for requests that already timed out are
// dropped.
func (l *Listener) Send(ctx context.Context, cmdCtx command.Context, text string) error {
	l.mu.Lock()
	sink, ok := l.waiters[cmdCtx.ChannelID]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case sink <- text:
	default:
	}
	return nil
}

// Close shuts down the HTTP server and closes the inbound channel.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.connected = false
	close(l.inbound)
	if l.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.srv.Shutdown(shutdownCtx)
	}
	return nil
}

func (l *Listener) registerRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/messages", l.handlePostMessage)
}

type postMessageRequest struct {
	Body     string `json:"body" binding:"required"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

func (l *Listener) handlePostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := req.UserID
	if l.verifier != nil {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		uid, err := l.verifier.VerifySession(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}
		userID = uid
	}

	// Each request gets its own synthetic channel so replies can be routed
	// back to it.
	requestID := uuid.NewString()
	sink := make(chan string, 16)
	msg := command.NewTextMessage(req.Body, command.Context{
		ListenerID: l.id,
		ChannelID:  requestID,
		UserID:     userID,
		UserName:   req.UserName,
	})

	// The closed check and the inbound send share one critical section:
	// Close closes the inbound channel under the same lock, so a send can
	// never race it. The send must not block while the lock is held, so a
	// full queue rejects the request instead of waiting.
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listener closed"})
		return
	}
	l.waiters[requestID] = sink
	select {
	case l.inbound <- msg:
	default:
		delete(l.waiters, requestID)
		l.mu.Unlock()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listener at capacity"})
		return
	}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.waiters, requestID)
		l.mu.Unlock()
	}()

	replies := l.collectReplies(c.Request.Context(), sink)
	c.JSON(http.StatusOK, gin.H{"replies": replies})
}

// collectReplies waits for the first reply, then drains further replies until
// the quiet window elapses.
func (l *Listener) collectReplies(ctx context.Context, sink <-chan string) []string {
	replies := []string{}
	deadline := time.NewTimer(l.replyWait)
	defer deadline.Stop()

	select {
	case <-ctx.Done():
		return replies
	case <-deadline.C:
		return replies
	case first := <-sink:
		replies = append(replies, first)
	}

	for {
		select {
		case more := <-sink:
			replies = append(replies, more)
		case <-time.After(quietWindow):
			return replies
		}
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
