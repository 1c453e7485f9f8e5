package report

import (
	"context"
	"fmt"
	"io"
	"sync"
)

const (
	ansiReset = "\033[0m"
	ansiBlue  = "\033[34m"
	ansiRed   = "\033[31m"
	ansiGray  = "\033[90m"
)

// TimestampLayout is the layout of the scan header line.
const TimestampLayout = "2006-01-02 15:04:05"

// Console writes the human readable report: a blue scan timestamp, one line
// per process (red when expired, gray otherwise), a gray dot per idle cycle and
// a final kill count.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
	dot   bool // a heartbeat dot is pending its newline
}

// NewConsole writes to w, with ANSI colors when color is set.
func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

func (c *Console) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

func (c *Console) endDots() {
	if c.dot {
		c.dot = false
		_, _ = fmt.Fprintln(c.w)
	}
}

// Emit prints e. Wait and tick events print nothing.
func (c *Console) Emit(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Kind {
	case KindScan:
		c.endDots()
		_, _ = fmt.Fprintln(c.w, c.paint(ansiBlue, e.At.Local().Format(TimestampLayout)))
	case KindProcess:
		line := FormatAge(e.Age) + " " + e.Process.Cmdline
		code := ansiGray
		if e.Expired {
			code = ansiRed
			if !e.Killed {
				line += " (not killed)"
			}
		}
		_, _ = fmt.Fprintln(c.w, c.paint(code, line))
	case KindIdle:
		_, _ = fmt.Fprint(c.w, c.paint(ansiGray, "."))
		c.dot = true
	case KindDone:
		c.endDots()
		_, _ = fmt.Fprintln(c.w, c.paint(ansiGray, fmt.Sprintf("%d processes killed", e.Kills)))
	}
}
