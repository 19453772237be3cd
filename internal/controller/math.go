package controller

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/zulandar/switchboard/internal/command"
)

// NounMath is the noun handled by the math controller.
const NounMath = "math"

// MathController evaluates expressions. A missing expression triggers the
// completion protocol instead of a bare error reply.
type MathController struct {
	replier   Replier
	executor  Executor
	precision int
}

// MathOpts holds parameters for creating a MathController.
type MathOpts struct {
	Replier   Replier
	Executor  Executor
	Precision int // digits shown for float results
}

// NewMath creates a MathController.
func NewMath(opts MathOpts) (*MathController, error) {
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: math: replier is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("controller: math: executor is required")
	}
	precision := opts.Precision
	if precision <= 0 {
		precision = 6
	}
	return &MathController{replier: opts.Replier, executor: opts.Executor, precision: precision}, nil
}

// Nouns returns the nouns this controller handles.
func (c *MathController) Nouns() []string {
	return []string{NounMath}
}

// Handle evaluates the "expr" field of a math command.
func (c *MathController) Handle(ctx context.Context, cmd command.Command) error {
	input := cmd.Get("expr")
	if len(input) == 0 {
		return c.requestExpr(ctx, cmd)
	}

	result, err := c.solve(strings.Join(input, " "))
	if err != nil {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("error evaluating math: %v", err))
		return nil
	}

	c.sendReply(ctx, cmd.Context, "`"+result+"`")
	return nil
}

// requestExpr opens a completion for the missing expression. Without a
// producing parser there is nothing to resume, so the bare reply is all
// that can be offered.
func (c *MathController) requestExpr(ctx context.Context, cmd command.Command) error {
	completion, err := command.NewCompletion(cmd, "expr", "no expression given")
	if err != nil {
		c.sendReply(ctx, cmd.Context, "no expression given")
		return nil
	}
	c.executor.ExecuteCommand(ctx, completion)
	return nil
}

// solve evaluates one expression and formats the result.
func (c *MathController) solve(input string) (string, error) {
	program, err := expr.Compile(input)
	if err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	value, err := expr.Run(program, nil)
	if err != nil {
		return "", fmt.Errorf("evaluate: %w", err)
	}
	return c.format(value), nil
}

// format renders an evaluation result, limiting float precision.
func (c *MathController) format(value interface{}) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', c.precision, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', c.precision, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *MathController) sendReply(ctx context.Context, cmdCtx command.Context, text string) {
	if err := c.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("math: reply: %v", err)
	}
}
