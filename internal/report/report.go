// Package report turns reaper loop events into console output, structured logs,
// kill history rows and an in-memory status snapshot.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/procreaper/internal/proctable"
)

// Kind tells sinks which step of the loop an Event reports.
type Kind string

const (
	KindScan    Kind = "scan"    // a non-empty scan started; At is the scan time
	KindProcess Kind = "process" // one matched process
	KindIdle    Kind = "idle"    // empty scan in continuous mode
	KindWait    Kind = "wait"    // loop is about to sleep for NextWake
	KindTick    Kind = "tick"    // one scheduled run ended; the schedule goes on
	KindDone    Kind = "done"    // loop ended with Kills
)

// Event is a plain value emitted by the reaper loop.
type Event struct {
	Kind     Kind
	At       time.Time
	Name     string
	Process  proctable.Record
	Age      time.Duration
	Expired  bool
	Killed   bool
	Kills    int
	NextWake time.Duration
}

// KillFailed reports whether the event is an expired process that survived termination.
func (e Event) KillFailed() bool { return e.Kind == KindProcess && e.Expired && !e.Killed }

// Sink receives events in loop order. Emit must not block for long; failures
// are handled inside the sink.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Multi fans each event out to every sink in order.
type Multi []Sink

// Emit forwards e to every non-nil sink.
func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// Discard drops every event.
var Discard Sink = discard{}

// FormatAge renders d as hh:mm:ss.mmm, prefixed with days when d spans a day or more.
func FormatAge(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	if days > 0 {
		return fmt.Sprintf("%s%d.%02d:%02d:%02d.%03d", sign, days, h, m, s, ms)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d.%03d", sign, h, m, s, ms)
}
