// Package controller implements command handling: a dispatch table from
// noun to controller, wrapped in an explicit permission check, plus the
// built-in controllers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/zulandar/switchboard/internal/command"
)

// Controller handles commands for the nouns it declares. Controllers reply
// to the user themselves for expected outcomes; a returned error means the
// dispatcher should log it and send the sanitized text for its kind.
type Controller interface {
	Nouns() []string
	Handle(ctx context.Context, cmd command.Command) error
}

// Replier delivers user-facing text back through the originating channel.
type Replier interface {
	Reply(ctx context.Context, cmdCtx command.Context, text string) error
}

// Executor is the bot's command-execution entry point, used to re-submit
// commands produced by parsers and resumed fragments.
type Executor interface {
	ExecuteCommand(ctx context.Context, cmds ...command.Command)
}

// PermissionChecker decides whether a context may perform an action.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, cmdCtx command.Context, action string) (bool, error)
}

// Dispatcher routes commands to controllers by noun. Every invocation is
// wrapped in a permission check on "noun:verb"; there are no exempt nouns.
type Dispatcher struct {
	authz       PermissionChecker
	replier     Replier
	controllers map[string]Controller
	out         io.Writer
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Authz   PermissionChecker
	Replier Replier
	Out     io.Writer // defaults to os.Stdout
}

// NewDispatcher creates a Dispatcher with an empty table.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Authz == nil {
		return nil, fmt.Errorf("controller: dispatcher: authz is required")
	}
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: dispatcher: replier is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Dispatcher{
		authz:       opts.Authz,
		replier:     opts.Replier,
		controllers: map[string]Controller{},
		out:         out,
	}, nil
}

// Register adds a controller to the table for each of its nouns.
func (d *Dispatcher) Register(c Controller) error {
	if c == nil || len(c.Nouns()) == 0 {
		return fmt.Errorf("controller: dispatcher: controller with nouns is required")
	}
	for _, noun := range c.Nouns() {
		if _, exists := d.controllers[noun]; exists {
			return fmt.Errorf("controller: dispatcher: duplicate noun %q", noun)
		}
		d.controllers[noun] = c
	}
	return nil
}

// Dispatch routes one command: permission check, table lookup, handler
// invocation. Failures never propagate past this point; the user gets
// sanitized text and the cause goes to the log.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) {
	action := fmt.Sprintf("%s:%s", cmd.Noun, cmd.Verb)
	fmt.Fprintf(d.out, "controller: dispatch [user=%s] %s\n", cmd.Context.UserName, action)

	allowed, err := d.authz.CheckPermission(ctx, cmd.Context, action)
	if err != nil {
		log.Printf("controller: permission check %s: %v", action, err)
		d.reply(ctx, cmd.Context, "error handling command")
		return
	}
	if !allowed {
		d.reply(ctx, cmd.Context, "permission denied")
		return
	}

	ctrl, ok := d.controllers[cmd.Noun]
	if !ok {
		d.reply(ctx, cmd.Context, fmt.Sprintf("unknown noun: %s", cmd.Noun))
		return
	}

	if err := ctrl.Handle(ctx, cmd); err != nil {
		log.Printf("controller: handle %s: %v", action, err)
		d.reply(ctx, cmd.Context, userFacing(err))
	}
}

// reply sends text and logs delivery failures; there is nobody further up
// to report them to.
func (d *Dispatcher) reply(ctx context.Context, cmdCtx command.Context, text string) {
	if err := d.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("controller: reply: %v", err)
	}
}

// userFacing maps an error to its sanitized reply text. Raw internal errors
// are never shown to end users.
func userFacing(err error) string {
	switch {
	case errors.Is(err, command.ErrNotFound):
		return "not found"
	case errors.Is(err, command.ErrAuthorizationDenied):
		return "permission denied"
	case errors.Is(err, command.ErrInvalidInput):
		return "invalid input"
	case errors.Is(err, command.ErrDecodeFailure):
		return "unable to parse input"
	default:
		return "error handling command"
	}
}
