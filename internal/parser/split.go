package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
)

// SplitParser tokenizes the message body on whitespace, honoring double
// quotes for multi-word values, and feeds the tokens to the arg mapper.
type SplitParser struct {
	Core
	mapper ArgMapper
}

// SplitOpts holds parameters for creating a SplitParser.
type SplitOpts struct {
	Core   Core
	Mapper ArgMapper
}

// NewSplit creates a SplitParser.
func NewSplit(opts SplitOpts) (*SplitParser, error) {
	if opts.Core.ParserID == "" {
		return nil, fmt.Errorf("parser: split: id is required")
	}
	return &SplitParser{Core: opts.Core, mapper: opts.Mapper}, nil
}

// Parse tokenizes the body after removing tags.
func (p *SplitParser) Parse(ctx context.Context, msg command.Message) ([]command.Command, error) {
	if msg.Type != command.TypeText {
		return nil, fmt.Errorf("parser %s: cannot decode %s: %w", p.ParserID, msg.Type, command.ErrInvalidInput)
	}

	tokens := splitQuoted(p.RemoveTags(msg.Body))
	if len(tokens) == 0 {
		return nil, fmt.Errorf("parser %s: empty body: %w", p.ParserID, command.ErrDecodeFailure)
	}

	cmd := p.newCommand(msg.Context, p.mapper.Map(tokens))
	return []command.Command{cmd}, nil
}

// Complete resumes one of this parser's fragments by filling the missing key.
func (p *SplitParser) Complete(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
	return resumeWithKey(p.ParserID, cmdCtx, frag, value)
}

// splitQuoted splits on whitespace, keeping double-quoted runs together.
// Quotes are stripped from the tokens; an unterminated quote runs to the
// end of the string.
func splitQuoted(body string) []string {
	var tokens []string
	var current strings.Builder
	inQuote := false
	hasToken := false

	flush := func() {
		if hasToken {
			tokens = append(tokens, current.String())
			current.Reset()
			hasToken = false
		}
	}

	for _, r := range body {
		switch {
		case r == '"':
			inQuote = !inQuote
			hasToken = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			current.WriteRune(r)
			hasToken = true
		}
	}
	flush()
	return tokens
}
