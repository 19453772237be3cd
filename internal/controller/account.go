package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/switchboard/internal/auth"
	"github.com/zulandar/switchboard/internal/command"
)

// Nouns handled by the account controller.
const (
	NounAccount = "account"
	NounSession = "session"
	NounGrant   = "grant"
)

// AccountController manages accounts, sessions, and grant introspection.
type AccountController struct {
	store     *auth.Store
	issuer    *auth.Issuer
	replier   Replier
	joinAllow bool
	joinRoles []string
}

// AccountOpts holds parameters for creating an AccountController.
type AccountOpts struct {
	Store     *auth.Store
	Issuer    *auth.Issuer
	Replier   Replier
	JoinAllow bool     // permit self sign-up
	JoinRoles []string // roles granted on sign-up
}

// NewAccount creates an AccountController.
func NewAccount(opts AccountOpts) (*AccountController, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("controller: account: store is required")
	}
	if opts.Issuer == nil {
		return nil, fmt.Errorf("controller: account: issuer is required")
	}
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: account: replier is required")
	}
	return &AccountController{
		store:     opts.Store,
		issuer:    opts.Issuer,
		replier:   opts.Replier,
		joinAllow: opts.JoinAllow,
		joinRoles: opts.JoinRoles,
	}, nil
}

// Nouns returns the nouns this controller handles.
func (c *AccountController) Nouns() []string {
	return []string{NounAccount, NounSession, NounGrant}
}

// Handle routes account, session, and grant commands.
func (c *AccountController) Handle(ctx context.Context, cmd command.Command) error {
	switch cmd.Noun {
	case NounAccount:
		if cmd.Verb == command.VerbCreate {
			return c.createAccount(ctx, cmd)
		}
	case NounSession:
		if cmd.Verb == command.VerbCreate {
			return c.createSession(ctx, cmd)
		}
	case NounGrant:
		switch cmd.Verb {
		case command.VerbGet, command.VerbList:
			return c.listGrants(ctx, cmd)
		}
	}
	c.sendReply(ctx, cmd.Context, "invalid verb")
	return nil
}

// createAccount signs up the invoking user (or a named one) with the
// configured join roles.
func (c *AccountController) createAccount(ctx context.Context, cmd command.Command) error {
	if !c.joinAllow {
		return fmt.Errorf("sign-up is disabled: %w", command.ErrAuthorizationDenied)
	}

	name := cmd.HeadOr("name", cmd.Context.UserName)
	if name == "" {
		c.sendReply(ctx, cmd.Context, "no account name given")
		return nil
	}

	user, err := c.store.CreateUser(ctx, name, c.joinRoles)
	if err != nil {
		if errors.Is(err, command.ErrInvalidInput) {
			c.sendReply(ctx, cmd.Context, fmt.Sprintf("account already exists: %s", name))
			return nil
		}
		return err
	}

	c.sendReply(ctx, cmd.Context, fmt.Sprintf("created account %s (%s)", user.Name, user.ID))
	return nil
}

// createSession issues a token for the invoking user.
func (c *AccountController) createSession(ctx context.Context, cmd command.Command) error {
	user, err := c.store.FindUser(ctx, cmd.Context.UserName)
	if err != nil {
		if errors.Is(err, command.ErrNotFound) {
			c.sendReply(ctx, cmd.Context, "no account; create one first")
			return nil
		}
		return err
	}

	signed, token, err := c.issuer.CreateSession(ctx, user)
	if err != nil {
		return err
	}

	c.sendReply(ctx, cmd.Context, fmt.Sprintf("session %s created, expires %s:\n%s",
		token.ID, token.ExpiresAt.Format("2006-01-02 15:04"), signed))
	return nil
}

// listGrants replies with the grants of the named user, defaulting to the
// invoker.
func (c *AccountController) listGrants(ctx context.Context, cmd command.Command) error {
	name := cmd.HeadOr("name", cmd.Context.UserName)

	grants, err := c.store.Grants(ctx, name)
	if err != nil {
		return err
	}
	if len(grants) == 0 {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("no grants for %s", name))
		return nil
	}

	c.sendReply(ctx, cmd.Context, fmt.Sprintf("grants for %s: %s", name, strings.Join(grants, ", ")))
	return nil
}

func (c *AccountController) sendReply(ctx context.Context, cmdCtx command.Context, text string) {
	if err := c.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("account: reply: %v", err)
	}
}
