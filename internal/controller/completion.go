package controller

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
	"github.com/zulandar/switchboard/internal/parser"
)

// CompletionController implements the fragment protocol: suspending a
// command that is missing required data (create) and resuming it when the
// user supplies the value (update).
//
// Each completion attempt has exactly two states. Pending: the fragment row
// exists and the user has been prompted. Resolved: the row is deleted and
// zero or more follow-up commands have been dispatched. There is no
// retry-in-place; a resume that fails before the owning parser runs leaves
// the attempt Pending, and one that reaches the parser always deletes the
// row, whatever the parser said.
type CompletionController struct {
	store         *fragment.Store
	parsers       *parser.Registry
	replier       Replier
	executor      Executor
	defaultTarget string // listener id for replies when the context has none
}

// CompletionOpts holds parameters for creating a CompletionController.
type CompletionOpts struct {
	Store         *fragment.Store
	Parsers       *parser.Registry
	Replier       Replier
	Executor      Executor
	DefaultTarget string
}

// NewCompletion creates a CompletionController.
func NewCompletion(opts CompletionOpts) (*CompletionController, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("controller: completion: store is required")
	}
	if opts.Parsers == nil {
		return nil, fmt.Errorf("controller: completion: parser registry is required")
	}
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: completion: replier is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("controller: completion: executor is required")
	}
	return &CompletionController{
		store:         opts.Store,
		parsers:       opts.Parsers,
		replier:       opts.Replier,
		executor:      opts.Executor,
		defaultTarget: opts.DefaultTarget,
	}, nil
}

// Nouns returns the nouns this controller handles.
func (c *CompletionController) Nouns() []string {
	return []string{command.NounFragment}
}

// Handle routes fragment commands by verb.
func (c *CompletionController) Handle(ctx context.Context, cmd command.Command) error {
	switch cmd.Verb {
	case command.VerbCreate:
		return c.handleCreate(ctx, cmd)
	case command.VerbUpdate:
		return c.handleUpdate(ctx, cmd)
	default:
		c.reply(ctx, cmd.Context, "invalid verb")
		return nil
	}
}

// handleCreate persists a fragment from a completion-request command and
// prompts the user for the missing value.
func (c *CompletionController) handleCreate(ctx context.Context, cmd command.Command) error {
	key, ok := cmd.Head(command.FieldKey)
	if !ok {
		return fmt.Errorf("completion request without key: %w", command.ErrInvalidInput)
	}
	parserID, ok := cmd.Head(command.FieldParser)
	if !ok {
		return fmt.Errorf("completion request without parser: %w", command.ErrInvalidInput)
	}
	noun, _ := cmd.Head(command.FieldNoun)
	verb, _ := cmd.Head(command.FieldVerb)
	msg := cmd.HeadOr(command.FieldMsg, fmt.Sprintf("missing required argument: %s", key))

	frag, err := c.CreateFragment(ctx, fragment.Fragment{
		UserID:   cmd.Context.UserID,
		Noun:     noun,
		Verb:     command.Verb(verb),
		Key:      key,
		ParserID: parserID,
		Data:     snapshotData(cmd.Data),
		Labels:   cmd.Labels,
	})
	if err != nil {
		return err
	}

	c.reply(ctx, cmd.Context, fmt.Sprintf("%s (%s): %s", frag.ID, key, msg))
	return nil
}

// CreateFragment persists a new fragment and returns it with its generated
// id. Exposed for controllers that detect missing data programmatically
// rather than through a completion-request command.
func (c *CompletionController) CreateFragment(ctx context.Context, frag fragment.Fragment) (*fragment.Fragment, error) {
	id, err := c.store.Save(ctx, frag)
	if err != nil {
		return nil, err
	}
	frag.ID = id
	return &frag, nil
}

// handleUpdate resumes a fragment with the value carried under "next".
func (c *CompletionController) handleUpdate(ctx context.Context, cmd command.Command) error {
	ref, ok := cmd.Head(command.FieldID)
	if !ok {
		ref = command.RefLast
	}
	c.ResumeFragment(ctx, cmd.Context, ref, cmd.Get(command.FieldNext))
	return nil
}

// ResumeFragment drives the resume path:
//
//  1. resolve the fragment (explicit id, or the user's latest for "last")
//  2. resolve the owning parser
//  3. invoke the parser's Complete with the supplied value
//  4. delete the fragment, unconditionally once step 3 was reached, so an
//     answered prompt can never be answered twice, even when the answer
//     failed to decode
//  5. on success, dispatch the returned commands in order
//
// Failures in steps 1-2 leave the fragment untouched. All outcomes are
// reported to the user here; nothing propagates.
func (c *CompletionController) ResumeFragment(ctx context.Context, cmdCtx command.Context, ref string, value []string) {
	frag, err := c.resolveFragment(ctx, cmdCtx, ref)
	if err != nil {
		if !errors.Is(err, command.ErrNotFound) {
			log.Printf("completion: resolve fragment %q: %v", ref, err)
		}
		c.reply(ctx, cmdCtx, "fragment not found")
		return
	}

	p, ok := c.parsers.Get(frag.ParserID)
	if !ok {
		// A parser that has been unconfigured since the fragment was
		// created.
		log.Printf("completion: fragment %s references unknown parser %s", frag.ID, frag.ParserID)
		c.reply(ctx, cmdCtx, "fragment not found")
		return
	}

	commands, completeErr := p.Complete(ctx, cmdCtx, frag, value)

	// The parser ran: the prompt is spent. Delete before looking at the
	// outcome so a failed decode cannot be replayed against the same row.
	existed, err := c.store.Delete(ctx, frag.ID)
	if err != nil {
		log.Printf("completion: delete fragment %s: %v", frag.ID, err)
		c.reply(ctx, cmdCtx, "error completing fragment")
		return
	}
	if !existed {
		// Lost a race with a concurrent resume; the winner dispatched.
		c.reply(ctx, cmdCtx, "fragment not found")
		return
	}

	if completeErr != nil {
		log.Printf("completion: complete fragment %s via %s: %v", frag.ID, frag.ParserID, completeErr)
		c.reply(ctx, cmdCtx, "error completing fragment")
		return
	}

	c.executor.ExecuteCommand(ctx, commands...)
}

// resolveFragment turns a fragment reference into a row: a literal id or
// the "last" shorthand for the user's most recent fragment.
func (c *CompletionController) resolveFragment(ctx context.Context, cmdCtx command.Context, ref string) (*fragment.Fragment, error) {
	if ref == command.RefLast {
		return c.store.FindLatestForUser(ctx, cmdCtx.UserID)
	}
	return c.store.FindByID(ctx, ref)
}

// reply sends text, defaulting the target listener when the context does
// not name one.
func (c *CompletionController) reply(ctx context.Context, cmdCtx command.Context, text string) {
	if cmdCtx.ListenerID == "" && c.defaultTarget != "" {
		cmdCtx = cmdCtx.WithTarget(c.defaultTarget)
	}
	if err := c.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("completion: reply: %v", err)
	}
}

// snapshotData copies command data for persistence, dropping the fragment
// bookkeeping fields so the stored snapshot holds only the command's own
// values.
func snapshotData(data command.Data) command.Data {
	meta := map[string]bool{
		command.FieldKey:    true,
		command.FieldMsg:    true,
		command.FieldNoun:   true,
		command.FieldVerb:   true,
		command.FieldParser: true,
	}
	out := command.Data{}
	for key, values := range data {
		if meta[key] {
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	return out
}
