// Package lex implements the parser capability on top of the AWS Lex
// runtime, mapping Lex's slot-filling dialog states onto the fragment
// completion protocol.
package lex

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lexruntimeservice"
	"github.com/iancoleman/strcase"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
	"github.com/zulandar/switchboard/internal/parser"
)

// Lex requires user ids of at least this length; short platform ids are
// left-padded to it.
const minUserIDLen = 8

// textPoster abstracts the Lex runtime call we use, enabling test mocks.
type textPoster interface {
	PostTextWithContext(ctx aws.Context, input *lexruntimeservice.PostTextInput, opts ...request.Option) (*lexruntimeservice.PostTextOutput, error)
}

// Parser sends message bodies to a Lex bot and converts the returned
// intent, slots, and dialog state into commands. Lex keeps per-user session
// state, so resuming a fragment is just another round through the same
// decode path: the supplied value is posted and Lex advances its own state
// machine.
type Parser struct {
	parser.Core
	runtime  textPoster
	botName  string
	botAlias string
}

// Opts holds parameters for creating a Lex Parser.
type Opts struct {
	Core      parser.Core
	AccessKey string
	SecretKey string
	Region    string
	BotName   string
	BotAlias  string
	// For testing: inject a mock runtime instead of the real Lex API.
	Runtime textPoster
}

// New creates a Lex Parser.
func New(opts Opts) (*Parser, error) {
	if opts.Core.ParserID == "" {
		return nil, fmt.Errorf("lex: id is required")
	}
	if opts.BotName == "" || opts.BotAlias == "" {
		return nil, fmt.Errorf("lex: bot name and alias are required")
	}

	runtime := opts.Runtime
	if runtime == nil {
		if opts.Region == "" {
			return nil, fmt.Errorf("lex: region is required")
		}
		sess, err := session.NewSession(&aws.Config{
			Region:      aws.String(opts.Region),
			Credentials: credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""),
		})
		if err != nil {
			return nil, fmt.Errorf("lex: create session: %w", err)
		}
		runtime = lexruntimeservice.New(sess)
	}

	return &Parser{
		Core:     opts.Core,
		runtime:  runtime,
		botName:  opts.BotName,
		botAlias: opts.BotAlias,
	}, nil
}

// Parse decodes a text message through the Lex runtime.
func (p *Parser) Parse(ctx context.Context, msg command.Message) ([]command.Command, error) {
	if msg.Type != command.TypeText {
		return nil, fmt.Errorf("lex: cannot decode %s: %w", msg.Type, command.ErrInvalidInput)
	}
	return p.decodeBody(ctx, msg.Context, msg.Body)
}

// Complete resumes a fragment by posting the supplied value. Lex tracks the
// slot being elicited in its own session, so the fragment's key is already
// known on the Lex side; the value alone advances the dialog.
func (p *Parser) Complete(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("lex: no value supplied for slot %q: %w", frag.Key, command.ErrInvalidInput)
	}
	return p.decodeBody(ctx, cmdCtx, strings.Join(value, " "))
}

// decodeBody posts text to Lex and maps the response onto commands.
// Missing state or intent means Lex produced an empty interpretation; that
// is logged and degrades to zero commands rather than an error.
func (p *Parser) decodeBody(ctx context.Context, cmdCtx command.Context, body string) ([]command.Command, error) {
	post, err := p.runtime.PostTextWithContext(ctx, &lexruntimeservice.PostTextInput{
		BotAlias:  aws.String(p.botAlias),
		BotName:   aws.String(p.botName),
		InputText: aws.String(body),
		UserId:    aws.String(padUserID(cmdCtx.UserID)),
	})
	if err != nil {
		return nil, fmt.Errorf("lex: post text: %w", err)
	}

	state := aws.StringValue(post.DialogState)
	if state == "" {
		log.Printf("lex: parsed message without state (user=%s)", cmdCtx.UserID)
		return nil, nil
	}

	intentName := aws.StringValue(post.IntentName)
	if intentName == "" {
		log.Printf("lex: parsed message without intent (user=%s)", cmdCtx.UserID)
		return nil, nil
	}

	noun, verb := splitIntent(intentName)
	data := slotData(post.Slots)

	switch state {
	case lexruntimeservice.DialogStateConfirmIntent, lexruntimeservice.DialogStateElicitIntent:
		// Not representable in the fragment model.
		return nil, nil
	case lexruntimeservice.DialogStateElicitSlot:
		slot := aws.StringValue(post.SlotToElicit)
		if slot == "" {
			log.Printf("lex: parsed message without slot to elicit (intent=%s)", intentName)
			return nil, nil
		}
		return p.elicitSlot(cmdCtx, noun, verb, data, slot), nil
	case lexruntimeservice.DialogStateReadyForFulfillment:
		cmd := command.New(command.Opts{
			Noun:    noun,
			Verb:    verb,
			Data:    data,
			Labels:  p.Labels,
			Context: cmdCtx.WithParser(p.ParserID),
		})
		return []command.Command{cmd}, nil
	default:
		// Failed, Fulfilled, or unrecognized.
		return nil, nil
	}
}

// elicitSlot builds the completion-request command for a missing slot,
// carrying all already-known slot values as data.
func (p *Parser) elicitSlot(cmdCtx command.Context, noun string, verb command.Verb, data command.Data, slot string) []command.Command {
	cmd := command.New(command.Opts{
		Noun:    command.NounFragment,
		Verb:    command.VerbCreate,
		Data:    data,
		Labels:  p.Labels,
		Context: cmdCtx.WithParser(p.ParserID),
	})
	cmd = cmd.WithData(command.Data{
		command.FieldKey:    {slot},
		command.FieldMsg:    {fmt.Sprintf("missing slot: %s", slot)},
		command.FieldNoun:   {noun},
		command.FieldParser: {p.ParserID},
		command.FieldVerb:   {string(verb)},
	})
	return []command.Command{cmd}
}

// splitIntent divides a Lex intent name on the first underscore into a
// kebab-cased noun and a verb.
func splitIntent(intentName string) (string, command.Verb) {
	name, verb, found := strings.Cut(intentName, "_")
	if !found {
		return strcase.ToKebab(name), command.VerbGet
	}
	return strcase.ToKebab(name), command.Verb(verb)
}

// slotData converts Lex slots into command data, one value per slot.
func slotData(slots map[string]*string) command.Data {
	data := command.Data{}
	for name, value := range slots {
		if value == nil {
			continue
		}
		data[name] = []string{*value}
	}
	return data
}

// padUserID left-pads short user ids with zeros to satisfy Lex's minimum
// user id length.
func padUserID(userID string) string {
	if len(userID) >= minUserIDLen {
		return userID
	}
	return strings.Repeat("0", minUserIDLen-len(userID)) + userID
}
