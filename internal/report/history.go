package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/procreaper/internal/history"
)

// History forwards the outcome of every expired process to a history.Sink.
type History struct {
	sink   history.Sink
	maxAge time.Duration
	log    *slog.Logger
}

// NewHistory exports to sink. maxAge is stored with every record.
func NewHistory(sink history.Sink, maxAge time.Duration, l *slog.Logger) *History {
	if l == nil {
		l = slog.Default()
	}
	return &History{sink: sink, maxAge: maxAge, log: l}
}

// Emit sends expired process events. Send errors are logged and dropped.
func (h *History) Emit(ctx context.Context, e Event) {
	if e.Kind != KindProcess || !e.Expired || h.sink == nil {
		return
	}
	typ := history.EventKilled
	if !e.Killed {
		typ = history.EventKillFailed
	}
	ev := history.Event{
		Type:       typ,
		OccurredAt: e.At,
		Record: history.Record{
			Target:    e.Name,
			PID:       e.Process.PID,
			PPID:      e.Process.PPID,
			Cmdline:   e.Process.Cmdline,
			CreatedAt: e.Process.CreatedAt,
			Age:       e.Age,
			MaxAge:    h.maxAge,
		},
	}
	if err := h.sink.Send(ctx, ev); err != nil {
		h.log.Warn("history send failed", "pid", e.Process.PID, "error", err)
	}
}
