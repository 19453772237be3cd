package command

// Content types for inbound messages. Parsers declare what they can decode
// by rejecting types they do not understand.
const (
	TypeText = "text/plain"
	TypeJSON = "application/json"
)

// Message is a raw inbound message from a listener, before parsing.
type Message struct {
	Body    string
	Type    string // content type, usually TypeText
	Context Context
}

// NewTextMessage builds a plain-text message.
func NewTextMessage(body string, ctx Context) Message {
	return Message{Body: body, Type: TypeText, Context: ctx}
}
