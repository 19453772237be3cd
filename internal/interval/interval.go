// Package interval injects commands on a cron schedule.
package interval

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/command"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Executor dispatches commands produced by the scheduler.
type Executor interface {
	ExecuteCommand(ctx context.Context, cmds ...command.Command)
}

// Interval describes one scheduled command.
type Interval struct {
	Cron       string       // 5-field cron expression
	Noun       string       // command noun
	Verb       command.Verb // command verb
	Data       command.Data // seed data for the fired command
	ListenerID string       // context the command fires in
	ChannelID  string
	UserID     string
}

// Scheduler fires interval commands into an executor.
type Scheduler struct {
	executor  Executor
	intervals []entry
}

type entry struct {
	interval Interval
	schedule cron.Schedule
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Executor  Executor
	Intervals []Interval
}

// New creates a Scheduler. Every cron expression is validated up front.
func New(opts Opts) (*Scheduler, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("interval: executor is required")
	}

	s := &Scheduler{executor: opts.Executor}
	for i, iv := range opts.Intervals {
		if iv.Noun == "" {
			return nil, fmt.Errorf("interval: interval %d: noun is required", i)
		}
		sched, err := cronParser.Parse(iv.Cron)
		if err != nil {
			return nil, fmt.Errorf("interval: interval %d: parse cron %q: %w", i, iv.Cron, err)
		}
		if iv.Verb == "" {
			iv.Verb = command.VerbCreate
		}
		s.intervals = append(s.intervals, entry{interval: iv, schedule: sched})
	}
	return s, nil
}

// Start launches one timing loop per interval. Loops stop when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.intervals {
		go s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e entry) {
	for {
		next := e.schedule.Next(time.Now())
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		log.Printf("interval: fire %s %s:%s", e.interval.Cron, e.interval.Noun, e.interval.Verb)
		s.fire(ctx, e.interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, iv Interval) {
	cmd := command.New(command.Opts{
		Noun: iv.Noun,
		Verb: iv.Verb,
		Data: iv.Data,
		Context: command.Context{
			ListenerID: iv.ListenerID,
			ChannelID:  iv.ChannelID,
			UserID:     iv.UserID,
		},
	})
	s.executor.ExecuteCommand(ctx, cmd)
}
