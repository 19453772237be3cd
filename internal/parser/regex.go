package parser

import (
	"context"
	"fmt"
	"regexp"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
)

// RegexParser splits the message body on a regular expression: the full
// match and submatches become positional values for the arg mapper.
type RegexParser struct {
	Core
	mapper ArgMapper
	regexp *regexp.Regexp
}

// RegexOpts holds parameters for creating a RegexParser.
type RegexOpts struct {
	Core   Core
	Mapper ArgMapper
	Regexp string
}

// NewRegex creates a RegexParser. The expression is compiled once at
// construction.
func NewRegex(opts RegexOpts) (*RegexParser, error) {
	if opts.Core.ParserID == "" {
		return nil, fmt.Errorf("parser: regex: id is required")
	}
	re, err := regexp.Compile(opts.Regexp)
	if err != nil {
		return nil, fmt.Errorf("parser: regex: compile %q: %w", opts.Regexp, err)
	}
	return &RegexParser{Core: opts.Core, mapper: opts.Mapper, regexp: re}, nil
}

// Parse matches the body against the expression. No match is a structural
// decode failure, not a routing miss: Match already said this parser wanted
// the message.
func (p *RegexParser) Parse(ctx context.Context, msg command.Message) ([]command.Command, error) {
	if msg.Type != command.TypeText {
		return nil, fmt.Errorf("parser %s: cannot decode %s: %w", p.ParserID, msg.Type, command.ErrInvalidInput)
	}

	parts := p.regexp.FindStringSubmatch(msg.Body)
	if parts == nil {
		return nil, fmt.Errorf("parser %s: body did not match: %w", p.ParserID, command.ErrDecodeFailure)
	}

	cmd := p.newCommand(msg.Context, p.mapper.Map(parts))
	return []command.Command{cmd}, nil
}

// Complete resumes one of this parser's fragments by filling the missing key.
func (p *RegexParser) Complete(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
	return resumeWithKey(p.ParserID, cmdCtx, frag, value)
}
