package controller

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"

	"github.com/zulandar/switchboard/internal/command"
)

// NounRandom is the noun handled by the random controller.
const NounRandom = "random"

// RandomController rolls dice-style random numbers: no args is a d6, one
// arg is a range from zero, two args bound the range. Float args produce a
// float result.
type RandomController struct {
	replier   Replier
	randInt   func(n int) int // test hook, defaults to rand.Intn
	randFloat func() float64  // test hook, defaults to rand.Float64
}

// RandomOpts holds parameters for creating a RandomController.
type RandomOpts struct {
	Replier Replier
}

// NewRandom creates a RandomController.
func NewRandom(opts RandomOpts) (*RandomController, error) {
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: random: replier is required")
	}
	return &RandomController{
		replier:   opts.Replier,
		randInt:   rand.Intn,
		randFloat: rand.Float64,
	}, nil
}

// Nouns returns the nouns this controller handles.
func (c *RandomController) Nouns() []string {
	return []string{NounRandom}
}

// Handle rolls based on the "args" field.
func (c *RandomController) Handle(ctx context.Context, cmd command.Command) error {
	args := cmd.Get("args")

	result, err := c.roll(args)
	if err != nil {
		c.sendReply(ctx, cmd.Context, fmt.Sprintf("%v", err))
		return nil
	}

	c.sendReply(ctx, cmd.Context, fmt.Sprintf("The result of your roll is: %s", result))
	return nil
}

// roll computes the random value for 0, 1, or 2 numeric arguments.
func (c *RandomController) roll(args []string) (string, error) {
	switch len(args) {
	case 0:
		return strconv.Itoa(c.randInt(6) + 1), nil
	case 1:
		return c.rollRange(args[0], "0")
	case 2:
		return c.rollRange(args[0], args[1])
	default:
		return "", fmt.Errorf("too many arguments: expected at most 2, got %d", len(args))
	}
}

// rollRange rolls between two bounds given as strings, in either order.
// If either bound has a fractional part the result is a float.
func (c *RandomController) rollRange(a, b string) (string, error) {
	lo, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return "", fmt.Errorf("provided value %q is not a number", a)
	}
	hi, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return "", fmt.Errorf("provided value %q is not a number", b)
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	if isIntegral(a) && isIntegral(b) {
		span := int(hi) - int(lo) + 1
		return strconv.Itoa(int(lo) + c.randInt(span)), nil
	}

	value := lo + c.randFloat()*(hi-lo)
	return strconv.FormatFloat(value, 'f', 2, 64), nil
}

// isIntegral reports whether a numeric string has no fractional part.
func isIntegral(s string) bool {
	return !strings.Contains(s, ".")
}

func (c *RandomController) sendReply(ctx context.Context, cmdCtx command.Context, text string) {
	if err := c.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("random: reply: %v", err)
	}
}
