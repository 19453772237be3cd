package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// NounKeyword is the noun handled by the learn controller.
const NounKeyword = "keyword"

// LearnController manages keyword macros: create stores a command template
// under a name, delete removes it, and get executes it with any extra
// arguments appended.
type LearnController struct {
	db       *gorm.DB
	replier  Replier
	executor Executor
}

// LearnOpts holds parameters for creating a LearnController.
type LearnOpts struct {
	DB       *gorm.DB
	Replier  Replier
	Executor Executor
}

// NewLearn creates a LearnController.
func NewLearn(opts LearnOpts) (*LearnController, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("controller: learn: db is required")
	}
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: learn: replier is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("controller: learn: executor is required")
	}
	return &LearnController{db: opts.DB, replier: opts.Replier, executor: opts.Executor}, nil
}

// Nouns returns the nouns this controller handles.
func (c *LearnController) Nouns() []string {
	return []string{NounKeyword}
}

// Handle routes keyword commands by verb. Unrecognized verbs execute, so a
// learned keyword can be invoked without spelling out "get".
func (c *LearnController) Handle(ctx context.Context, cmd command.Command) error {
	args := cmd.Get("args")
	if len(args) == 0 {
		c.sendReply(ctx, cmd.Context, "missing keyword name")
		return nil
	}
	name, rest := args[0], args[1:]

	switch cmd.Verb {
	case command.VerbCreate:
		return c.createKeyword(ctx, cmd, name, rest)
	case command.VerbDelete:
		return c.deleteKeyword(ctx, cmd, name)
	default:
		return c.executeKeyword(ctx, cmd, name, rest)
	}
}

// createKeyword stores a macro: name followed by the noun, verb, and seed
// arguments of the command it expands to.
func (c *LearnController) createKeyword(ctx context.Context, cmd command.Command, name string, rest []string) error {
	if len(rest) < 2 {
		c.sendReply(ctx, cmd.Context, "usage: keyword create <name> <noun> <verb> [args...]")
		return nil
	}
	noun, verb, seed := rest[0], command.Verb(rest[1]), rest[2:]
	if !verb.Known() {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("unknown verb: %s", verb))
		return nil
	}

	var existing models.Keyword
	err := c.db.WithContext(ctx).First(&existing, "name = ?", name).Error
	if err == nil {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("keyword already exists: %s", name))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("learn: check keyword %q: %w", name, err)
	}

	data, err := json.Marshal(command.Data{"args": seed})
	if err != nil {
		return fmt.Errorf("learn: marshal data for %q: %w", name, err)
	}

	keyword := models.Keyword{
		Name:      name,
		Noun:      noun,
		Verb:      string(verb),
		Data:      string(data),
		CreatedBy: cmd.Context.UserName,
	}
	if err := c.db.WithContext(ctx).Create(&keyword).Error; err != nil {
		return fmt.Errorf("learn: create keyword %q: %w", name, err)
	}

	c.sendReply(ctx, cmd.Context, fmt.Sprintf("learned keyword %s", name))
	return nil
}

// deleteKeyword removes a macro by name.
func (c *LearnController) deleteKeyword(ctx context.Context, cmd command.Command, name string) error {
	result := c.db.WithContext(ctx).Delete(&models.Keyword{}, "name = ?", name)
	if result.Error != nil {
		return fmt.Errorf("learn: delete keyword %q: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("keyword %s does not exist", name))
		return nil
	}
	c.sendReply(ctx, cmd.Context, fmt.Sprintf("deleted keyword %s", name))
	return nil
}

// executeKeyword expands a macro into its stored command, appends the extra
// arguments, and re-dispatches it under the invoker's context.
func (c *LearnController) executeKeyword(ctx context.Context, cmd command.Command, name string, extra []string) error {
	var keyword models.Keyword
	err := c.db.WithContext(ctx).First(&keyword, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("keyword %s does not exist", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("learn: find keyword %q: %w", name, err)
	}

	var data command.Data
	if keyword.Data != "" {
		if err := json.Unmarshal([]byte(keyword.Data), &data); err != nil {
			return fmt.Errorf("learn: decode keyword %q: %w", name, err)
		}
	}

	emit := command.New(command.Opts{
		Noun:    keyword.Noun,
		Verb:    command.Verb(keyword.Verb),
		Data:    data,
		Context: cmd.Context,
	})
	if len(extra) > 0 {
		emit = emit.WithData(command.Data{"args": append(append([]string(nil), emit.Get("args")...), extra...)})
	}

	c.executor.ExecuteCommand(ctx, emit)
	return nil
}

func (c *LearnController) sendReply(ctx context.Context, cmdCtx command.Context, text string) {
	if err := c.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("learn: reply: %v", err)
	}
}
