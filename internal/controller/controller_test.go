package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zulandar/switchboard/internal/command"
)

// mockAuthz is a canned PermissionChecker.
type mockAuthz struct {
	allow bool
	err   error
}

func (m *mockAuthz) CheckPermission(ctx context.Context, cmdCtx command.Context, action string) (bool, error) {
	return m.allow, m.err
}

// stubController handles one noun and records received commands.
type stubController struct {
	nouns    []string
	received []command.Command
	err      error
}

func (s *stubController) Nouns() []string { return s.nouns }
func (s *stubController) Handle(ctx context.Context, cmd command.Command) error {
	s.received = append(s.received, cmd)
	return s.err
}

func testDispatcher(t *testing.T, authz *mockAuthz) (*Dispatcher, *mockReplier) {
	t.Helper()
	replier := &mockReplier{}
	d, err := NewDispatcher(DispatcherOpts{
		Authz:   authz,
		Replier: replier,
		Out:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, replier
}

func TestDispatchRoutesToController(t *testing.T) {
	d, _ := testDispatcher(t, &mockAuthz{allow: true})
	ctrl := &stubController{nouns: []string{"echo"}}
	if err := d.Register(ctrl); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd := command.New(command.Opts{Noun: "echo", Verb: command.VerbCreate})
	d.Dispatch(context.Background(), cmd)

	if len(ctrl.received) != 1 {
		t.Fatalf("controller received %d commands", len(ctrl.received))
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	d, replier := testDispatcher(t, &mockAuthz{allow: false})
	ctrl := &stubController{nouns: []string{"echo"}}
	if err := d.Register(ctrl); err != nil {
		t.Fatalf("register: %v", err)
	}

	d.Dispatch(context.Background(), command.New(command.Opts{Noun: "echo", Verb: command.VerbCreate}))

	if len(ctrl.received) != 0 {
		t.Error("controller invoked despite denied permission")
	}
	if replier.last() != "permission denied" {
		t.Errorf("reply = %q", replier.last())
	}
}

func TestDispatchPermissionCheckError(t *testing.T) {
	d, replier := testDispatcher(t, &mockAuthz{err: fmt.Errorf("db gone")})
	ctrl := &stubController{nouns: []string{"echo"}}
	if err := d.Register(ctrl); err != nil {
		t.Fatalf("register: %v", err)
	}

	d.Dispatch(context.Background(), command.New(command.Opts{Noun: "echo", Verb: command.VerbCreate}))

	if len(ctrl.received) != 0 {
		t.Error("controller invoked despite failed permission check")
	}
	if replier.last() != "error handling command" {
		t.Errorf("reply = %q", replier.last())
	}
}

func TestDispatchUnknownNoun(t *testing.T) {
	d, replier := testDispatcher(t, &mockAuthz{allow: true})

	d.Dispatch(context.Background(), command.New(command.Opts{Noun: "nope", Verb: command.VerbGet}))

	if replier.last() != "unknown noun: nope" {
		t.Errorf("reply = %q", replier.last())
	}
}

func TestDispatchSanitizesControllerError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", fmt.Errorf("row: %w", command.ErrNotFound), "not found"},
		{"invalid input", fmt.Errorf("bad: %w", command.ErrInvalidInput), "invalid input"},
		{"decode failure", fmt.Errorf("no match: %w", command.ErrDecodeFailure), "unable to parse input"},
		{"authorization", fmt.Errorf("nope: %w", command.ErrAuthorizationDenied), "permission denied"},
		{"internal", errors.New("sql: connection reset"), "error handling command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, replier := testDispatcher(t, &mockAuthz{allow: true})
			ctrl := &stubController{nouns: []string{"echo"}, err: tt.err}
			if err := d.Register(ctrl); err != nil {
				t.Fatalf("register: %v", err)
			}

			d.Dispatch(context.Background(), command.New(command.Opts{Noun: "echo", Verb: command.VerbGet}))

			if replier.last() != tt.want {
				t.Errorf("reply = %q, want %q", replier.last(), tt.want)
			}
		})
	}
}

func TestRegisterDuplicateNoun(t *testing.T) {
	d, _ := testDispatcher(t, &mockAuthz{allow: true})
	if err := d.Register(&stubController{nouns: []string{"echo"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Register(&stubController{nouns: []string{"echo"}}); err == nil {
		t.Fatal("expected duplicate noun error")
	}
}
