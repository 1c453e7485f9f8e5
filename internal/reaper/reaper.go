// Package reaper runs the scan, kill and sleep cycle for one target process name.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/procreaper/internal/metrics"
	"github.com/loykin/procreaper/internal/proctable"
	"github.com/loykin/procreaper/internal/report"
)

// Tick is the granularity of computed sleeps.
const Tick = 10 * time.Millisecond

// Options configures one run. It is fixed for the life of the loop.
type Options struct {
	Name       string
	MaxAge     time.Duration
	Continuous bool
}

// LoopState is owned by Run. Kills only grows; Running flips to false once.
type LoopState struct {
	Kills   int
	Running bool
}

// Observation is one matched process as judged in a single scan.
type Observation struct {
	Record  proctable.Record
	Age     time.Duration
	Expired bool
	Killed  bool
}

// Killer terminates a process tree and reports whether the root was killed.
type Killer interface {
	KillTree(ctx context.Context, pid int) bool
}

// Sleeper waits for d or until ctx is done. It returns false on cancellation.
type Sleeper func(ctx context.Context, d time.Duration) bool

// Reaper is the loop for one process name. It is not safe for concurrent Runs.
type Reaper struct {
	opts   Options
	dir    proctable.Directory
	killer Killer
	sink   report.Sink
	log    *slog.Logger
	now    func() time.Time
	sleep  Sleeper
	state  LoopState
}

// Option customizes a Reaper built by New.
type Option func(*Reaper)

// WithSink sets where loop events go. Defaults to report.Discard.
func WithSink(s report.Sink) Option {
	return func(r *Reaper) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger sets the diagnostic logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reaper) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

// WithSleeper replaces the timer based sleep.
func WithSleeper(s Sleeper) Option {
	return func(r *Reaper) { r.sleep = s }
}

// New returns a loop that lists matches from dir and kills expired ones with killer.
func New(opts Options, dir proctable.Directory, killer Killer, o ...Option) *Reaper {
	r := &Reaper{
		opts:   opts,
		dir:    dir,
		killer: killer,
		sink:   report.Discard,
		log:    slog.Default(),
		now:    time.Now,
		sleep:  Sleep,
	}
	for _, fn := range o {
		fn(r)
	}
	return r
}

// Run scans until done and returns the number of processes killed.
// In continuous mode it stops when ctx is cancelled; a cancellation that lands
// mid-scan takes effect after that scan has been reported.
// A proctable.ErrUnavailable failure aborts the run.
func (r *Reaper) Run(ctx context.Context) (int, error) {
	r.state = LoopState{Running: true}
	// reports are delivered even after cancellation
	emit := context.WithoutCancel(ctx)
	for {
		obs, err := r.Scan(ctx)
		if err != nil {
			r.state.Running = false
			r.log.Error("scan failed", "name", r.opts.Name, "error", err)
			return r.state.Kills, err
		}
		if !r.opts.Continuous || ctx.Err() != nil {
			break
		}
		if len(obs) == 0 {
			r.sink.Emit(emit, report.Event{Kind: report.KindIdle, At: r.now(), Name: r.opts.Name})
		}
		wake := NextWake(obs, r.opts.MaxAge)
		metrics.SetNextWake(wake.Seconds())
		r.sink.Emit(emit, report.Event{Kind: report.KindWait, At: r.now(), Name: r.opts.Name, Kills: r.state.Kills, NextWake: wake})
		if !r.sleep(ctx, wake) {
			break
		}
	}
	r.state.Running = false
	r.sink.Emit(emit, report.Event{Kind: report.KindDone, At: r.now(), Name: r.opts.Name, Kills: r.state.Kills})
	return r.state.Kills, nil
}

// Scan performs one cycle: list, judge, kill the expired and report.
// Kills and their reports run to completion even if ctx is cancelled meanwhile.
func (r *Reaper) Scan(ctx context.Context) ([]Observation, error) {
	started := time.Now()
	work := context.WithoutCancel(ctx)
	now := r.now()
	recs, err := r.dir.List(work, r.opts.Name)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		r.sink.Emit(work, report.Event{Kind: report.KindScan, At: now, Name: r.opts.Name})
	}
	obs := make([]Observation, 0, len(recs))
	for _, rec := range recs {
		o := Observe(rec, now, r.opts.MaxAge)
		if o.Expired {
			o.Killed = r.killer.KillTree(work, rec.PID)
			if o.Killed {
				r.state.Kills++
				metrics.IncKill(r.opts.Name)
			} else {
				metrics.IncKillFailure(r.opts.Name)
			}
		}
		r.sink.Emit(work, report.Event{
			Kind:    report.KindProcess,
			At:      now,
			Name:    r.opts.Name,
			Process: o.Record,
			Age:     o.Age,
			Expired: o.Expired,
			Killed:  o.Killed,
			Kills:   r.state.Kills,
		})
		obs = append(obs, o)
	}
	metrics.SetMatched(r.opts.Name, len(recs))
	metrics.IncScan(time.Since(started).Seconds())
	r.log.Debug("scan complete", "name", r.opts.Name, "matched", len(recs), "kills", r.state.Kills)
	return obs, nil
}

// Observe judges rec at now. A process is expired once its age reaches maxAge.
func Observe(rec proctable.Record, now time.Time, maxAge time.Duration) Observation {
	age := rec.Age(now)
	return Observation{Record: rec, Age: age, Expired: age >= maxAge}
}

// NextWake returns how long to sleep so the loop wakes when the next live
// process expires. Remaining times are rounded up to Tick. With nothing
// pending it returns maxAge. The result is never below one Tick.
func NextWake(obs []Observation, maxAge time.Duration) time.Duration {
	wake := maxAge
	for _, o := range obs {
		if o.Expired {
			continue
		}
		if left := roundUp(maxAge-o.Age, Tick); left < wake {
			wake = left
		}
	}
	if wake < Tick {
		wake = Tick
	}
	return wake
}

func roundUp(d, tick time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + tick - 1) / tick * tick
}

// Sleep waits for d unless ctx is cancelled first. A context cancelled before
// the call returns false at once.
func Sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
