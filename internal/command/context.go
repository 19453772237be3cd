package command

// Context identifies the conversational channel, thread, and user a command
// originated from or should reply to. It carries back-references (by id) to
// the parser that produced the command and the listener to reply through.
// Like Command, it is a value: derive new contexts with the With* builders.
type Context struct {
	ListenerID string // listener to reply through
	ChannelID  string // platform channel identifier
	ThreadID   string // thread identifier, empty for top-level
	UserID     string // platform user identifier
	UserName   string // human-readable user name
	ParserID   string // parser that produced the originating command
}

// WithParser returns a copy of the context recording the producing parser.
func (c Context) WithParser(parserID string) Context {
	c.ParserID = parserID
	return c
}

// WithTarget returns a copy of the context bound to a reply listener.
func (c Context) WithTarget(listenerID string) Context {
	c.ListenerID = listenerID
	return c
}
