package parser

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
)

// resumeWithKey is the shared completion path for the simple text parsers:
// fill the fragment's missing key with the supplied value and rebuild the
// original command from the stored snapshot. An empty value cannot complete
// anything and fails with command.ErrInvalidInput.
func resumeWithKey(parserID string, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
	if frag.ParserID != parserID {
		return nil, fmt.Errorf("parser %s: fragment %s belongs to parser %s: %w",
			parserID, frag.ID, frag.ParserID, command.ErrInvalidInput)
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("parser %s: no value supplied for key %q: %w",
			parserID, frag.Key, command.ErrInvalidInput)
	}

	data := command.Data{}
	for key, values := range frag.Data {
		data[key] = append([]string(nil), values...)
	}
	data[frag.Key] = append([]string(nil), value...)

	cmd := command.New(command.Opts{
		Noun:    frag.Noun,
		Verb:    frag.Verb,
		Data:    data,
		Labels:  frag.Labels,
		Context: cmdCtx.WithParser(parserID),
	})
	return []command.Command{cmd}, nil
}
