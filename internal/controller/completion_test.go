package controller

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/fragment"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/parser"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testFragmentStore creates a fragment store over an in-memory SQLite db.
func testFragmentStore(t *testing.T) *fragment.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Fragment{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	store, err := fragment.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

// mockReplier records every reply text.
type mockReplier struct {
	replies []string
}

func (m *mockReplier) Reply(ctx context.Context, cmdCtx command.Context, text string) error {
	m.replies = append(m.replies, text)
	return nil
}

func (m *mockReplier) last() string {
	if len(m.replies) == 0 {
		return ""
	}
	return m.replies[len(m.replies)-1]
}

// mockExecutor records dispatched commands. An optional hook routes them
// onward, which chaining tests use to re-enter the completion controller.
type mockExecutor struct {
	commands []command.Command
	hook     func(ctx context.Context, cmd command.Command)
}

func (m *mockExecutor) ExecuteCommand(ctx context.Context, cmds ...command.Command) {
	for _, cmd := range cmds {
		m.commands = append(m.commands, cmd)
		if m.hook != nil {
			m.hook(ctx, cmd)
		}
	}
}

// fakeParser implements parser.Parser with a pluggable Complete.
type fakeParser struct {
	id       string
	complete func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error)
}

func (f *fakeParser) ID() string { return f.id }

func (f *fakeParser) Match(msg command.Message) bool { return false }

func (f *fakeParser) Parse(ctx context.Context, msg command.Message) ([]command.Command, error) {
	return nil, nil
}
func (f *fakeParser) Complete(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
	return f.complete(ctx, cmdCtx, frag, value)
}

// testCompletion wires a CompletionController over fresh mocks.
func testCompletion(t *testing.T, parsers ...parser.Parser) (*CompletionController, *fragment.Store, *mockReplier, *mockExecutor) {
	t.Helper()
	store := testFragmentStore(t)
	registry := parser.NewRegistry()
	for _, p := range parsers {
		if err := registry.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.ID(), err)
		}
	}
	replier := &mockReplier{}
	executor := &mockExecutor{}
	ctrl, err := NewCompletion(CompletionOpts{
		Store:    store,
		Parsers:  registry,
		Replier:  replier,
		Executor: executor,
	})
	if err != nil {
		t.Fatalf("new completion: %v", err)
	}
	return ctrl, store, replier, executor
}

func saveFragment(t *testing.T, store *fragment.Store, frag fragment.Fragment) string {
	t.Helper()
	id, err := store.Save(context.Background(), frag)
	if err != nil {
		t.Fatalf("save fragment: %v", err)
	}
	return id
}

func fragmentExists(t *testing.T, store *fragment.Store, id string) bool {
	t.Helper()
	_, err := store.FindByID(context.Background(), id)
	return err == nil
}

func TestHandleCreatePersistsAndPrompts(t *testing.T) {
	ctrl, store, replier, _ := testCompletion(t)

	cmd := command.New(command.Opts{
		Noun: command.NounFragment,
		Verb: command.VerbCreate,
		Data: command.Data{
			command.FieldKey:    {"name"},
			command.FieldMsg:    {"what name?"},
			command.FieldNoun:   {"account"},
			command.FieldVerb:   {"create"},
			command.FieldParser: {"p1"},
			"role":              {"user"},
		},
		Context: command.Context{UserID: "u1"},
	})

	if err := ctrl.Handle(context.Background(), cmd); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(replier.replies) != 1 {
		t.Fatalf("expected one prompt, got %v", replier.replies)
	}
	if !strings.Contains(replier.last(), "(name): what name?") {
		t.Errorf("prompt = %q", replier.last())
	}

	frag, err := store.FindLatestForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("stored fragment missing: %v", err)
	}
	if frag.Noun != "account" || frag.Verb != command.VerbCreate || frag.Key != "name" || frag.ParserID != "p1" {
		t.Errorf("fragment mismatch: %+v", frag)
	}
	if got := frag.Data["role"]; len(got) != 1 || got[0] != "user" {
		t.Errorf("fragment data = %v", frag.Data)
	}
	// Bookkeeping fields must not leak into the stored snapshot.
	for _, meta := range []string{command.FieldKey, command.FieldMsg, command.FieldNoun, command.FieldVerb, command.FieldParser} {
		if _, ok := frag.Data[meta]; ok {
			t.Errorf("meta field %q stored in fragment data", meta)
		}
	}
}

func TestHandleCreateWithoutKey(t *testing.T) {
	ctrl, _, _, _ := testCompletion(t)
	cmd := command.New(command.Opts{Noun: command.NounFragment, Verb: command.VerbCreate})
	if err := ctrl.Handle(context.Background(), cmd); err == nil {
		t.Fatal("expected error for completion request without key")
	}
}

func TestResumeSimple(t *testing.T) {
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		return []command.Command{command.New(command.Opts{
			Noun: frag.Noun,
			Verb: frag.Verb,
			Data: command.Data{frag.Key: value},
		})}, nil
	}}
	ctrl, store, _, executor := testCompletion(t, p1)

	id := saveFragment(t, store, fragment.Fragment{
		UserID: "u1", Noun: "account", Verb: command.VerbCreate, Key: "name", ParserID: "p1",
	})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, id, []string{"alice"})

	if fragmentExists(t, store, id) {
		t.Error("fragment still exists after successful resume")
	}
	if len(executor.commands) != 1 {
		t.Fatalf("expected one dispatched command, got %d", len(executor.commands))
	}
	cmd := executor.commands[0]
	if cmd.Noun != "account" || cmd.Verb != command.VerbCreate {
		t.Errorf("dispatched %s:%s", cmd.Noun, cmd.Verb)
	}
	if got := cmd.Get("name"); len(got) != 1 || got[0] != "alice" {
		t.Errorf("dispatched data = %v", cmd.Data)
	}
}

func TestResumeTwiceIsAtMostOnce(t *testing.T) {
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		return nil, nil
	}}
	ctrl, store, replier, executor := testCompletion(t, p1)

	id := saveFragment(t, store, fragment.Fragment{
		UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1",
	})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, id, []string{"v"})
	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, id, []string{"v"})

	if replier.last() != "fragment not found" {
		t.Errorf("second resume reply = %q", replier.last())
	}
	if len(executor.commands) != 0 {
		t.Errorf("second resume dispatched commands: %v", executor.commands)
	}
}

func TestResumeLastShorthand(t *testing.T) {
	var resumed string
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		resumed = frag.ID
		return nil, nil
	}}
	ctrl, store, _, _ := testCompletion(t, p1)

	// Timestamps carry nanosecond precision, so consecutive saves are
	// strictly ordered.
	saveFragment(t, store, fragment.Fragment{UserID: "u1", Noun: "a", Verb: command.VerbGet, Key: "k", ParserID: "p1"})
	newest := saveFragment(t, store, fragment.Fragment{UserID: "u1", Noun: "b", Verb: command.VerbGet, Key: "k", ParserID: "p1"})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, command.RefLast, []string{"v"})

	if resumed != newest {
		t.Errorf("resumed %s, want newest %s", resumed, newest)
	}
	if fragmentExists(t, store, newest) {
		t.Error("newest fragment survived resume")
	}
}

func TestResumeLastWithNone(t *testing.T) {
	ctrl, _, replier, executor := testCompletion(t)

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u2"}, command.RefLast, []string{"v"})

	if replier.last() != "fragment not found" {
		t.Errorf("reply = %q", replier.last())
	}
	if len(executor.commands) != 0 {
		t.Errorf("dispatched commands: %v", executor.commands)
	}
}

func TestResumeUnknownIDLeavesOthersUntouched(t *testing.T) {
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		t.Error("parser invoked for unresolvable fragment")
		return nil, nil
	}}
	ctrl, store, replier, executor := testCompletion(t, p1)

	other := saveFragment(t, store, fragment.Fragment{UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1"})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, "does-not-exist", []string{"v"})

	if replier.last() != "fragment not found" {
		t.Errorf("reply = %q", replier.last())
	}
	if !fragmentExists(t, store, other) {
		t.Error("unrelated fragment deleted")
	}
	if len(executor.commands) != 0 {
		t.Errorf("dispatched commands: %v", executor.commands)
	}
}

func TestResumeUnknownParserLeavesFragment(t *testing.T) {
	ctrl, store, replier, executor := testCompletion(t) // registry is empty

	id := saveFragment(t, store, fragment.Fragment{UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "gone"})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, id, []string{"v"})

	if replier.last() != "fragment not found" {
		t.Errorf("reply = %q", replier.last())
	}
	if !fragmentExists(t, store, id) {
		t.Error("fragment deleted although its parser could not be resolved")
	}
	if len(executor.commands) != 0 {
		t.Errorf("dispatched commands: %v", executor.commands)
	}
}

func TestResumeDeletesOnParserError(t *testing.T) {
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		return nil, fmt.Errorf("cannot decode %q: %w", value, command.ErrDecodeFailure)
	}}
	ctrl, store, replier, executor := testCompletion(t, p1)

	id := saveFragment(t, store, fragment.Fragment{UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1"})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, id, []string{"garbage"})

	// The parser ran, so the prompt is spent even though decoding failed.
	if fragmentExists(t, store, id) {
		t.Error("fragment survived a resume that reached the parser")
	}
	if replier.last() != "error completing fragment" {
		t.Errorf("reply = %q", replier.last())
	}
	if len(executor.commands) != 0 {
		t.Errorf("dispatched commands after failed decode: %v", executor.commands)
	}
}

func TestResumeRaceLoserDoesNotDispatch(t *testing.T) {
	var store *fragment.Store
	// The parser deletes the row mid-resume, standing in for a concurrent
	// winner that got to the delete first.
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		if _, err := store.Delete(ctx, frag.ID); err != nil {
			t.Fatalf("concurrent delete: %v", err)
		}
		return []command.Command{command.New(command.Opts{Noun: "n", Verb: command.VerbGet})}, nil
	}}
	ctrl, s, replier, executor := testCompletion(t, p1)
	store = s

	id := saveFragment(t, store, fragment.Fragment{UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1"})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, id, []string{"v"})

	if replier.last() != "fragment not found" {
		t.Errorf("race loser reply = %q", replier.last())
	}
	if len(executor.commands) != 0 {
		t.Errorf("race loser dispatched commands: %v", executor.commands)
	}
}

func TestResumeChainsIntoNewFragment(t *testing.T) {
	// The parser answers with another completion request: it still needs a
	// second value.
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		partial := command.New(command.Opts{
			Noun:    frag.Noun,
			Verb:    frag.Verb,
			Data:    command.Data{frag.Key: value},
			Context: cmdCtx.WithParser("p1"),
		})
		next, err := command.NewCompletion(partial, "date", "what date?")
		if err != nil {
			return nil, err
		}
		return []command.Command{next}, nil
	}}
	ctrl, store, _, executor := testCompletion(t, p1)

	// Route dispatched fragment commands back into the controller, the way
	// the bot's executor would.
	executor.hook = func(ctx context.Context, cmd command.Command) {
		if cmd.Noun == command.NounFragment {
			if err := ctrl.Handle(ctx, cmd); err != nil {
				t.Fatalf("re-dispatch: %v", err)
			}
		}
	}

	first := saveFragment(t, store, fragment.Fragment{
		UserID: "u1", Noun: "booking", Verb: command.VerbCreate, Key: "city", ParserID: "p1",
	})

	ctrl.ResumeFragment(context.Background(), command.Context{UserID: "u1"}, first, []string{"berlin"})

	if fragmentExists(t, store, first) {
		t.Error("first fragment survived its resume")
	}

	second, err := store.FindLatestForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("chained fragment missing: %v", err)
	}
	if second.ID == first {
		t.Error("chained fragment reused the deleted id")
	}
	if second.ParserID != "p1" {
		t.Errorf("chained fragment parser = %q", second.ParserID)
	}
	if second.Key != "date" || second.Noun != "booking" || second.Verb != command.VerbCreate {
		t.Errorf("chained fragment mismatch: %+v", second)
	}
	if got := second.Data["city"]; len(got) != 1 || got[0] != "berlin" {
		t.Errorf("chained fragment lost collected data: %v", second.Data)
	}
}

func TestHandleUpdateDefaultsToLast(t *testing.T) {
	var resumed string
	p1 := &fakeParser{id: "p1", complete: func(ctx context.Context, cmdCtx command.Context, frag *fragment.Fragment, value []string) ([]command.Command, error) {
		resumed = frag.ID
		if len(value) != 1 || value[0] != "alice" {
			t.Errorf("value = %v", value)
		}
		return nil, nil
	}}
	ctrl, store, _, _ := testCompletion(t, p1)

	id := saveFragment(t, store, fragment.Fragment{UserID: "u1", Noun: "n", Verb: command.VerbGet, Key: "k", ParserID: "p1"})

	cmd := command.New(command.Opts{
		Noun:    command.NounFragment,
		Verb:    command.VerbUpdate,
		Data:    command.Data{command.FieldNext: {"alice"}},
		Context: command.Context{UserID: "u1"},
	})
	if err := ctrl.Handle(context.Background(), cmd); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if resumed != id {
		t.Errorf("resumed %q, want %q", resumed, id)
	}
}
