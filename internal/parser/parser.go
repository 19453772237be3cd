// Package parser turns raw inbound messages into structured commands and
// resumes suspended fragments with newly supplied values.
package parser

import (
	"context"
	"strings"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
)

// Parser is the capability set every parser implements.
//
// Match is a cheap routing predicate. Parse decodes a message into zero or
// more commands, failing with command.ErrInvalidInput for an unsupported
// content type or command.ErrDecodeFailure when structural decoding yields
// nothing. Complete resumes a fragment the parser itself created; it must be
// able to do so using only the fragment's key, stored data, and the supplied
// value, and may return another completion request if more data is missing.
type Parser interface {
	ID() string
	Match(msg command.Message) bool
	Parse(ctx context.Context, msg command.Message) ([]command.Command, error)
	Complete(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error)
}

// Core holds the settings shared by every parser implementation: a stable
// id, trigger tags for Match, and the noun/verb/labels/seed data applied to
// parsed commands.
type Core struct {
	ParserID string
	Tags     []string
	Noun     string
	Verb     command.Verb
	Labels   map[string]string
	Seed     command.Data
}

// ID returns the parser's stable identifier.
func (c Core) ID() string {
	return c.ParserID
}

// Match reports whether the message body contains any configured tag.
// A parser with no tags matches nothing.
func (c Core) Match(msg command.Message) bool {
	for _, tag := range c.Tags {
		if strings.Contains(msg.Body, tag) {
			return true
		}
	}
	return false
}

// RemoveTags strips all configured tags from the body.
func (c Core) RemoveTags(body string) string {
	for _, tag := range c.Tags {
		body = strings.ReplaceAll(body, tag, "")
	}
	return strings.TrimSpace(body)
}

// newCommand builds a command in this parser's configured shape, recording
// the parser on the context so completion requests can be routed back.
func (c Core) newCommand(cmdCtx command.Context, data command.Data) command.Command {
	merged := command.Data{}
	for key, values := range c.Seed {
		merged[key] = append([]string(nil), values...)
	}
	for key, values := range data {
		merged[key] = append([]string(nil), values...)
	}
	return command.New(command.Opts{
		Noun:    c.Noun,
		Verb:    c.Verb,
		Data:    merged,
		Labels:  c.Labels,
		Context: cmdCtx.WithParser(c.ParserID),
	})
}
