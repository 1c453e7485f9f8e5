package proctable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Table is the OS-backed Directory. Every call takes a fresh snapshot.
type Table struct {
	// processes enumerates the live process table; replaced in tests.
	processes func(ctx context.Context) ([]*gopsproc.Process, error)
}

// NewTable returns a Directory reading the local process table.
func NewTable() *Table {
	return &Table{processes: gopsproc.ProcessesWithContext}
}

func (t *Table) snapshot(ctx context.Context) ([]*gopsproc.Process, error) {
	procs, err := t.processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return procs, nil
}

// List implements Directory.
func (t *Table) List(ctx context.Context, name string) ([]Record, error) {
	procs, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, 4)
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil || pname != name {
			continue
		}
		rec, ok := readRecord(ctx, p, pname)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Children implements Directory.
func (t *Table) Children(ctx context.Context, pid int) ([]int, error) {
	if pid <= 0 {
		return nil, nil
	}
	procs, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, p := range procs {
		if int(p.Pid) == pid {
			continue
		}
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			continue
		}
		if int(ppid) == pid {
			out = append(out, int(p.Pid))
		}
	}
	return out, nil
}

// readRecord fills a Record for p. It reports false when the process exited
// while its attributes were being read.
func readRecord(ctx context.Context, p *gopsproc.Process, name string) (Record, bool) {
	pid := int(p.Pid)
	created, ok := procStart(ctx, p)
	if !ok {
		slog.Debug("process vanished during scan", "pid", pid, "name", name)
		return Record{}, false
	}
	rec := Record{PID: pid, Name: name, CreatedAt: created}
	if ppid, err := p.PpidWithContext(ctx); err == nil {
		rec.PPID = int(ppid)
		rec.HasParent = ppid > 0
	}
	if cmd, err := p.CmdlineWithContext(ctx); err == nil && cmd != "" {
		rec.Cmdline = cmd
	} else {
		rec.Cmdline = name
	}
	return rec, true
}

// createTime is the portable creation time lookup through gopsutil.
func createTime(ctx context.Context, p *gopsproc.Process) (time.Time, bool) {
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
