package history

import (
	"context"
	"time"
)

// EventType defines the outcome recorded for an expired process.
type EventType string

const (
	EventKilled     EventType = "killed"
	EventKillFailed EventType = "kill_failed"
)

// Record describes the reaped process at the moment it was judged expired.
type Record struct {
	Target    string        `json:"target"`
	PID       int           `json:"pid"`
	PPID      int           `json:"ppid"`
	Cmdline   string        `json:"cmdline"`
	CreatedAt time.Time     `json:"created_at"`
	Age       time.Duration `json:"age_ns"`
	MaxAge    time.Duration `json:"max_age_ns"`
}

// Event is one kill outcome exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
