package report

import (
	"context"
	"sync"
	"time"
)

// ProcessStatus is one matched process as shown by /status.
type ProcessStatus struct {
	PID       int       `json:"pid"`
	PPID      int       `json:"ppid"`
	Cmdline   string    `json:"cmdline"`
	CreatedAt time.Time `json:"created_at"`
	Age       string    `json:"age"`
	Expired   bool      `json:"expired"`
	Killed    bool      `json:"killed"`
}

// Snapshot describes the last completed cycle.
type Snapshot struct {
	Name       string          `json:"name"`
	LastScan   time.Time       `json:"last_scan"`
	Processes  []ProcessStatus `json:"processes"`
	Kills      int             `json:"kills"`
	Running    bool            `json:"running"`
	NextWakeMS int64           `json:"next_wake_ms"`
}

// Status keeps the last scan in memory. A cycle becomes visible once the loop
// emits wait, tick or done for it.
type Status struct {
	mu        sync.RWMutex
	cur       Snapshot
	pending   []ProcessStatus
	pendingAt time.Time
}

// NewStatus returns an empty snapshot for name that reports Running.
func NewStatus(name string) *Status {
	return &Status{cur: Snapshot{Name: name, Running: true, Processes: []ProcessStatus{}}}
}

// Emit buffers the scan in progress and commits it on wait, tick or done.
func (s *Status) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Kind {
	case KindScan:
		s.pending = s.pending[:0]
		s.pendingAt = e.At
	case KindProcess:
		s.pending = append(s.pending, ProcessStatus{
			PID:       e.Process.PID,
			PPID:      e.Process.PPID,
			Cmdline:   e.Process.Cmdline,
			CreatedAt: e.Process.CreatedAt,
			Age:       FormatAge(e.Age),
			Expired:   e.Expired,
			Killed:    e.Killed,
		})
	case KindIdle:
		s.pending = s.pending[:0]
		s.pendingAt = e.At
	case KindWait, KindTick, KindDone:
		at := s.pendingAt
		if at.IsZero() {
			at = e.At
		}
		procs := make([]ProcessStatus, len(s.pending))
		copy(procs, s.pending)
		s.cur.LastScan = at
		s.cur.Processes = procs
		s.cur.Kills = e.Kills
		s.cur.Running = e.Kind != KindDone
		s.cur.NextWakeMS = e.NextWake.Milliseconds()
		s.pending = s.pending[:0]
		s.pendingAt = time.Time{}
	}
}

// Snapshot returns a copy of the last committed cycle.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	out.Processes = append([]ProcessStatus(nil), s.cur.Processes...)
	if out.Processes == nil {
		out.Processes = []ProcessStatus{}
	}
	return out
}
