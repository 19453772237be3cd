// Package bot wires listeners, parsers, and controllers into the running
// service: it pumps inbound messages, selects a parser, and routes the
// resulting commands through the dispatcher.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/controller"
	"github.com/zulandar/switchboard/internal/listener"
	"github.com/zulandar/switchboard/internal/parser"
)

// Bot is the main service. It owns the listener set, the parser registry,
// and the controller dispatcher, and is the Replier and Executor the other
// components call back into.
type Bot struct {
	listeners   map[string]listener.Listener
	order       []string // listener ids in registration order
	parsers     *parser.Registry
	dispatcher  *controller.Dispatcher
	ignoreUsers map[string]bool
	out         io.Writer

	mu         sync.Mutex
	botUserIDs map[string]bool // platform user ids of the bot itself
}

// Opts holds parameters for creating a Bot.
type Opts struct {
	Listeners   []listener.Listener
	Parsers     *parser.Registry
	Dispatcher  *controller.Dispatcher
	IgnoreUsers []string  // user ids or names dropped before parsing
	Out         io.Writer // defaults to os.Stdout
}

// New creates a Bot with the given options.
func New(opts Opts) (*Bot, error) {
	if len(opts.Listeners) == 0 {
		return nil, fmt.Errorf("bot: at least one listener is required")
	}
	if opts.Parsers == nil {
		return nil, fmt.Errorf("bot: parser registry is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("bot: dispatcher is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	b := &Bot{
		listeners:   map[string]listener.Listener{},
		parsers:     opts.Parsers,
		dispatcher:  opts.Dispatcher,
		ignoreUsers: map[string]bool{},
		out:         out,
		botUserIDs:  map[string]bool{},
	}
	for _, l := range opts.Listeners {
		if _, exists := b.listeners[l.ID()]; exists {
			return nil, fmt.Errorf("bot: duplicate listener id %q", l.ID())
		}
		b.listeners[l.ID()] = l
		b.order = append(b.order, l.ID())
	}
	for _, u := range opts.IgnoreUsers {
		b.ignoreUsers[u] = true
	}
	return b, nil
}

// Run connects every listener, pumps their inbound messages, and blocks
// until the context is cancelled. On shutdown it closes all listeners.
func (b *Bot) Run(ctx context.Context) error {
	fmt.Fprintf(b.out, "Switchboard connecting...\n")

	inbound := make(chan command.Message, 100)
	var wg sync.WaitGroup

	for _, id := range b.order {
		l := b.listeners[id]
		if err := l.Connect(ctx); err != nil {
			b.closeAll()
			return fmt.Errorf("bot: connect %s: %w", id, err)
		}
		if bui, ok := l.(listener.BotUserIDer); ok {
			b.mu.Lock()
			b.botUserIDs[bui.BotUserID()] = true
			b.mu.Unlock()
		}

		ch, err := l.Listen(ctx)
		if err != nil {
			b.closeAll()
			return fmt.Errorf("bot: listen %s: %w", id, err)
		}

		wg.Add(1)
		go func(ch <-chan command.Message) {
			defer wg.Done()
			for msg := range ch {
				select {
				case inbound <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	// Close the merged channel once every listener channel is drained.
	go func() {
		wg.Wait()
		close(inbound)
	}()

	fmt.Fprintf(b.out, "Switchboard online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(b.out, "Switchboard shutting down...\n")
			b.closeAll()
			fmt.Fprintf(b.out, "Switchboard stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(b.out, "Switchboard inbound channels closed\n")
				return nil
			}
			b.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage runs one inbound message through filters and the parser
// table, then dispatches whatever commands come out.
func (b *Bot) HandleMessage(ctx context.Context, msg command.Message) {
	if b.shouldIgnore(msg) {
		return
	}

	p, ok := b.selectParser(msg)
	if !ok {
		// Plain chatter; not addressed to the bot.
		return
	}

	cmds, err := p.Parse(ctx, msg)
	if err != nil {
		log.Printf("bot: parse via %s: %v", p.ID(), err)
		b.replyParseFailure(ctx, msg.Context, err)
		return
	}
	b.ExecuteCommand(ctx, cmds...)
}

// ExecuteCommand dispatches commands in order. This is the re-entry point
// used by resumed fragments and interval firings as well as the main loop.
func (b *Bot) ExecuteCommand(ctx context.Context, cmds ...command.Command) {
	for _, cmd := range cmds {
		b.dispatcher.Dispatch(ctx, cmd)
	}
}

// Reply routes text to the listener named by the context. Messages with no
// listener go to the first registered listener.
func (b *Bot) Reply(ctx context.Context, cmdCtx command.Context, text string) error {
	id := cmdCtx.ListenerID
	if id == "" && len(b.order) > 0 {
		id = b.order[0]
	}
	l, ok := b.listeners[id]
	if !ok {
		return fmt.Errorf("bot: no listener %q: %w", id, command.ErrNotFound)
	}
	return l.Send(ctx, cmdCtx, text)
}

// shouldIgnore drops self-messages and configured ignore-list users.
func (b *Bot) shouldIgnore(msg command.Message) bool {
	b.mu.Lock()
	self := b.botUserIDs[msg.Context.UserID]
	b.mu.Unlock()
	if self && msg.Context.UserID != "" {
		return true
	}
	return b.ignoreUsers[msg.Context.UserID] || b.ignoreUsers[msg.Context.UserName]
}

// selectParser returns the first registered parser whose Match accepts the
// message.
func (b *Bot) selectParser(msg command.Message) (parser.Parser, bool) {
	for _, p := range b.parsers.All() {
		if p.Match(msg) {
			return p, true
		}
	}
	return nil, false
}

// replyParseFailure reports a parse error to the user in sanitized form.
func (b *Bot) replyParseFailure(ctx context.Context, cmdCtx command.Context, err error) {
	text := "error handling message"
	switch {
	case errors.Is(err, command.ErrDecodeFailure):
		text = "unable to parse input"
	case errors.Is(err, command.ErrInvalidInput):
		text = "invalid input"
	}
	if replyErr := b.Reply(ctx, cmdCtx, text); replyErr != nil {
		log.Printf("bot: reply: %v", replyErr)
	}
}

func (b *Bot) closeAll() {
	for _, id := range b.order {
		if err := b.listeners[id].Close(); err != nil {
			log.Printf("bot: close %s: %v", id, err)
		}
	}
}
