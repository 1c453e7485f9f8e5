// Package killtree terminates a process together with all of its descendants,
// children first.
package killtree

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

// ErrAlreadyExited is returned by Controller.Terminate when the target was
// gone before the kill landed. Callers treat it as a no-op.
var ErrAlreadyExited = errors.New("process already exited")

// ChildLister is the part of the process directory the executor walks.
type ChildLister interface {
	Children(ctx context.Context, pid int) ([]int, error)
}

// Controller is the process-control collaborator.
type Controller interface {
	// Exited reports whether pid has exited. A zombie counts as exited.
	Exited(pid int) (bool, error)
	// Terminate forcefully kills pid and blocks until exit is observed.
	Terminate(pid int) error
}

// Executor walks and kills process trees.
type Executor struct {
	dir  ChildLister
	ctl  Controller
	self int
	log  *slog.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for non-fatal termination failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithProtectedPID overrides the pid that is never terminated (default: own pid).
func WithProtectedPID(pid int) Option {
	return func(e *Executor) { e.self = pid }
}

// New returns an Executor using dir for child lookups and ctl for termination.
func New(dir ChildLister, ctl Controller, opts ...Option) *Executor {
	e := &Executor{dir: dir, ctl: ctl, self: os.Getpid(), log: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// KillTree kills every descendant of pid depth-first, then pid itself.
// It returns true only when pid was alive and this call terminated it.
// Already-exited targets and termination failures both yield false.
func (e *Executor) KillTree(ctx context.Context, pid int) bool {
	return e.kill(ctx, pid, make(map[int]struct{}))
}

func (e *Executor) kill(ctx context.Context, pid int, seen map[int]struct{}) bool {
	if pid <= 0 {
		return false
	}
	if _, ok := seen[pid]; ok {
		return false
	}
	seen[pid] = struct{}{}

	kids, err := e.dir.Children(ctx, pid)
	if err != nil {
		e.log.Warn("list children failed", "pid", pid, "error", err)
	}
	for _, child := range kids {
		e.kill(ctx, child, seen)
	}

	if pid == e.self {
		e.log.Debug("refusing to terminate own process", "pid", pid)
		return false
	}
	exited, err := e.ctl.Exited(pid)
	if err != nil {
		e.log.Warn("probe process failed", "pid", pid, "error", err)
		return false
	}
	if exited {
		return false
	}
	if err := e.ctl.Terminate(pid); err != nil {
		if !errors.Is(err, ErrAlreadyExited) {
			e.log.Warn("terminate failed", "pid", pid, "error", err)
		}
		return false
	}
	e.log.Debug("terminated", "pid", pid)
	return true
}
