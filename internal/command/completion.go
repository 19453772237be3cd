package command

import "fmt"

// NounFragment marks a command as a completion request or resume, handled
// by the completion controller.
const NounFragment = "fragment"

// Well-known data fields of fragment commands.
const (
	FieldKey    = "key"    // name of the missing field
	FieldMsg    = "msg"    // user-facing prompt
	FieldNoun   = "noun"   // noun of the command being completed
	FieldVerb   = "verb"   // verb of the command being completed
	FieldParser = "parser" // id of the parser that owns the fragment
	FieldID     = "id"     // fragment id, or RefLast
	FieldNext   = "next"   // the supplied value on resume
)

// RefLast is the fragment reference shorthand for "the invoking user's most
// recently created fragment".
const RefLast = "last"

// NewCompletion builds a completion-request command from a command that is
// missing a required field. The original's noun, verb, and data ride along
// so the fragment can reconstruct it once the value arrives. The source
// command must record its producing parser, otherwise there is nothing to
// resume with.
func NewCompletion(cmd Command, key, msg string) (Command, error) {
	if cmd.Context.ParserID == "" {
		return Command{}, fmt.Errorf("command has no parser to prompt for completion: %w", ErrInvalidInput)
	}

	completion := New(Opts{
		Noun:    NounFragment,
		Verb:    VerbCreate,
		Data:    cmd.Data,
		Labels:  map[string]string{},
		Context: cmd.Context,
	})
	return completion.WithData(Data{
		FieldKey:    {key},
		FieldMsg:    {msg},
		FieldNoun:   {cmd.Noun},
		FieldParser: {cmd.Context.ParserID},
		FieldVerb:   {string(cmd.Verb)},
	}), nil
}
