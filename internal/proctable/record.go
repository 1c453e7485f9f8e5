package proctable

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the OS process table could not be queried at all.
// It is never returned for a single process that vanished mid-scan.
var ErrUnavailable = errors.New("process table unavailable")

// Record is a read-only snapshot of one live process.
type Record struct {
	PID       int       `json:"pid"`
	PPID      int       `json:"ppid"`
	HasParent bool      `json:"has_parent"`
	CreatedAt time.Time `json:"created_at"`
	Cmdline   string    `json:"cmdline"`
	Name      string    `json:"name"`
}

// Age returns how long the process has been alive at now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Directory answers process-table queries.
// Implementations must be safe for concurrent use.
type Directory interface {
	// List returns every live process whose name equals name exactly.
	List(ctx context.Context, name string) ([]Record, error)
	// Children returns the pids of live processes whose parent is pid.
	Children(ctx context.Context, pid int) ([]int, error)
}
