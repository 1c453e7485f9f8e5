package report

import (
	"context"
	"log/slog"
)

// Log writes events as structured slog records.
type Log struct {
	log *slog.Logger
}

// NewLog logs through l, or slog.Default when l is nil.
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{log: l}
}

// Emit logs e. Unkilled expired processes are warnings.
func (s *Log) Emit(ctx context.Context, e Event) {
	switch e.Kind {
	case KindScan:
		s.log.DebugContext(ctx, "scan", "name", e.Name, "at", e.At)
	case KindProcess:
		attrs := []any{
			"name", e.Name,
			"pid", e.Process.PID,
			"ppid", e.Process.PPID,
			"age", e.Age,
			"expired", e.Expired,
		}
		switch {
		case e.KillFailed():
			s.log.WarnContext(ctx, "expired process not killed", attrs...)
		case e.Expired:
			s.log.InfoContext(ctx, "expired process killed", attrs...)
		default:
			s.log.DebugContext(ctx, "process within lifespan", attrs...)
		}
	case KindIdle:
		s.log.DebugContext(ctx, "no matching processes", "name", e.Name)
	case KindWait:
		s.log.DebugContext(ctx, "sleeping", "name", e.Name, "next_wake", e.NextWake)
	case KindTick:
		s.log.DebugContext(ctx, "scheduled run finished", "name", e.Name, "kills", e.Kills)
	case KindDone:
		s.log.InfoContext(ctx, "reaper finished", "name", e.Name, "kills", e.Kills)
	}
}
