package report

import (
	"context"
	"sync"
)

// Scheduled wraps the sinks of a loop that is restarted by a scheduler.
// Each run's done event becomes a tick, and kill counts carry over between
// runs, so sinks see one long-lived loop. Finish emits the real done.
type Scheduled struct {
	mu    sync.Mutex
	next  Sink
	total int // kills of finished runs
}

// NewScheduled forwards to next.
func NewScheduled(next Sink) *Scheduled {
	if next == nil {
		next = Discard
	}
	return &Scheduled{next: next}
}

// Emit forwards e with Kills counted across runs.
func (s *Scheduled) Emit(ctx context.Context, e Event) {
	s.mu.Lock()
	e.Kills += s.total
	if e.Kind == KindDone {
		e.Kind = KindTick
		s.total = e.Kills
	}
	s.mu.Unlock()
	s.next.Emit(ctx, e)
}

// Finish emits the done event for the whole schedule.
func (s *Scheduled) Finish(ctx context.Context, e Event) {
	s.mu.Lock()
	e.Kind = KindDone
	e.Kills = s.total
	s.mu.Unlock()
	s.next.Emit(ctx, e)
}
