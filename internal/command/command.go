// Package command defines the structured request values that flow between
// parsers, controllers, and listeners. Commands are immutable once built:
// derived commands are constructed from an existing one plus overrides,
// never mutated in place.
package command

// Verb is the action half of a command, a small closed set analogous to
// REST methods.
type Verb string

const (
	VerbCreate Verb = "create"
	VerbGet    Verb = "get"
	VerbList   Verb = "list"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
	VerbHelp   Verb = "help"
)

// Known reports whether v is one of the closed verb set.
func (v Verb) Known() bool {
	switch v {
	case VerbCreate, VerbGet, VerbList, VerbUpdate, VerbDelete, VerbHelp:
		return true
	}
	return false
}

// Data is a command's payload: field name to ordered list of string values.
type Data map[string][]string

// Command is a structured request produced by a parser and consumed by a
// controller. Treat it as a value: hand it off, never mutate it.
type Command struct {
	Noun    string
	Verb    Verb
	Data    Data
	Labels  map[string]string
	Context Context
}

// Opts holds parameters for building a Command.
type Opts struct {
	Noun    string
	Verb    Verb
	Data    Data
	Labels  map[string]string
	Context Context
}

// New builds a Command, deep-copying the data and label maps so the caller
// can keep mutating its own copies safely.
func New(opts Opts) Command {
	return Command{
		Noun:    opts.Noun,
		Verb:    opts.Verb,
		Data:    copyData(opts.Data),
		Labels:  copyLabels(opts.Labels),
		Context: opts.Context,
	}
}

// Get returns all values for a field, or nil if the field is absent.
func (c Command) Get(key string) []string {
	return c.Data[key]
}

// Head returns the first value for a field and whether the field had any.
func (c Command) Head(key string) (string, bool) {
	values := c.Data[key]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// HeadOr returns the first value for a field, or fallback if the field is
// absent or empty.
func (c Command) HeadOr(key, fallback string) string {
	if head, ok := c.Head(key); ok {
		return head
	}
	return fallback
}

// WithData returns a copy of the command with extra fields merged in.
// Fields in extra replace same-named fields on the original.
func (c Command) WithData(extra Data) Command {
	merged := copyData(c.Data)
	for key, values := range extra {
		merged[key] = append([]string(nil), values...)
	}
	return Command{
		Noun:    c.Noun,
		Verb:    c.Verb,
		Data:    merged,
		Labels:  copyLabels(c.Labels),
		Context: c.Context,
	}
}

// WithContext returns a copy of the command bound to a different context.
func (c Command) WithContext(ctx Context) Command {
	out := New(Opts{Noun: c.Noun, Verb: c.Verb, Data: c.Data, Labels: c.Labels})
	out.Context = ctx
	return out
}

func copyData(data Data) Data {
	out := make(Data, len(data))
	for key, values := range data {
		out[key] = append([]string(nil), values...)
	}
	return out
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for key, value := range labels {
		out[key] = value
	}
	return out
}
