// Package cron runs single-shot reaps on a cron schedule.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc performs one reap and returns the number of processes it killed.
type RunFunc func(ctx context.Context) (int, error)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a schedule expression: five cron fields, a descriptor such
// as "@hourly", or "@every <duration>".
func Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return errors.New("empty schedule")
	}
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler fires run on every tick of a schedule. A tick is skipped while
// the previous run is still going.
type Scheduler struct {
	expr string
	loc  *time.Location
	run  RunFunc
	log  *slog.Logger
}

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func NewScheduler(expr string, run RunFunc, opts ...Option) (*Scheduler, error) {
	if err := Validate(expr); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errors.New("scheduler requires a run function")
	}
	s := &Scheduler{expr: expr, loc: time.Local, run: run, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Run blocks until ctx is done or a run fails, then waits for an in-flight
// run to finish. It returns the kills summed over all runs.
func (s *Scheduler) Run(ctx context.Context) (int, error) {
	var (
		mu    sync.Mutex
		total int
	)
	failed := make(chan error, 1)

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(s.expr, func() {
		if ctx.Err() != nil {
			return
		}
		n, err := s.run(ctx)
		mu.Lock()
		total += n
		mu.Unlock()
		if err != nil {
			select {
			case failed <- err:
			default:
			}
			return
		}
		s.log.Debug("scheduled reap finished", "schedule", s.expr, "kills", n)
	})
	if err != nil {
		return 0, err
	}

	c.Start()
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-failed:
	}
	<-c.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	return total, runErr
}
