package parser

import (
	"context"
	"fmt"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
)

// EchoParser forwards the message body as a single field without splitting.
// Tags are removed from the body before mapping.
type EchoParser struct {
	Core
	mapper ArgMapper
}

// EchoOpts holds parameters for creating an EchoParser.
type EchoOpts struct {
	Core   Core
	Mapper ArgMapper
}

// NewEcho creates an EchoParser.
func NewEcho(opts EchoOpts) (*EchoParser, error) {
	if opts.Core.ParserID == "" {
		return nil, fmt.Errorf("parser: echo: id is required")
	}
	return &EchoParser{Core: opts.Core, mapper: opts.Mapper}, nil
}

// Parse forwards the whole body to the arg mapper as one value.
func (p *EchoParser) Parse(ctx context.Context, msg command.Message) ([]command.Command, error) {
	if msg.Type != command.TypeText {
		return nil, fmt.Errorf("parser %s: cannot decode %s: %w", p.ParserID, msg.Type, command.ErrInvalidInput)
	}
	body := p.RemoveTags(msg.Body)
	cmd := p.newCommand(msg.Context, p.mapper.Map([]string{body}))
	return []command.Command{cmd}, nil
}

// Complete resumes one of this parser's fragments by filling the missing key.
func (p *EchoParser) Complete(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
	return resumeWithKey(p.ParserID, cmdCtx, frag, value)
}
