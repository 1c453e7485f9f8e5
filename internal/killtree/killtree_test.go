package killtree

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTable struct {
	children map[int][]int
	err      error
}

func (f *fakeTable) Children(_ context.Context, pid int) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.children[pid], nil
}

type fakeController struct {
	mu       sync.Mutex
	alive    map[int]bool
	denied   map[int]bool
	vanish   map[int]bool // exits between probe and kill
	killed   []int
	probeErr error
}

func newFakeController(pids ...int) *fakeController {
	c := &fakeController{alive: map[int]bool{}, denied: map[int]bool{}, vanish: map[int]bool{}}
	for _, p := range pids {
		c.alive[p] = true
	}
	return c
}

func (c *fakeController) Exited(pid int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probeErr != nil {
		return false, c.probeErr
	}
	return !c.alive[pid], nil
}

func (c *fakeController) Terminate(pid int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vanish[pid] {
		c.alive[pid] = false
		return ErrAlreadyExited
	}
	if c.denied[pid] {
		return syscall.EPERM
	}
	c.alive[pid] = false
	c.killed = append(c.killed, pid)
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newExec(tbl ChildLister, ctl Controller) *Executor {
	return New(tbl, ctl, WithLogger(quietLogger()), WithProtectedPID(-1))
}

func TestKillTreeChildrenBeforeParent(t *testing.T) {
	// A(10) -> B(20) -> C(30)
	tbl := &fakeTable{children: map[int][]int{10: {20}, 20: {30}}}
	ctl := newFakeController(10, 20, 30)

	ok := newExec(tbl, ctl).KillTree(context.Background(), 10)

	require.True(t, ok)
	assert.Equal(t, []int{30, 20, 10}, ctl.killed)
}

func TestKillTreeWideTreeDepthFirst(t *testing.T) {
	// 1 -> {2, 3}; 2 -> {4}; 3 -> {5, 6}
	tbl := &fakeTable{children: map[int][]int{1: {2, 3}, 2: {4}, 3: {5, 6}}}
	ctl := newFakeController(1, 2, 3, 4, 5, 6)

	require.True(t, newExec(tbl, ctl).KillTree(context.Background(), 1))
	assert.Equal(t, []int{4, 2, 5, 6, 3, 1}, ctl.killed)
}

func TestKillTreeIdempotent(t *testing.T) {
	tbl := &fakeTable{children: map[int][]int{}}
	ctl := newFakeController(7)
	e := newExec(tbl, ctl)

	assert.True(t, e.KillTree(context.Background(), 7))
	assert.False(t, e.KillTree(context.Background(), 7))
	assert.Equal(t, []int{7}, ctl.killed)
}

func TestKillTreeAlreadyExitedRace(t *testing.T) {
	ctl := newFakeController(8)
	ctl.vanish[8] = true
	assert.False(t, newExec(&fakeTable{}, ctl).KillTree(context.Background(), 8))
	assert.Empty(t, ctl.killed)
}

func TestKillTreePermissionDeniedIsNotKilled(t *testing.T) {
	tbl := &fakeTable{children: map[int][]int{1: {2}}}
	ctl := newFakeController(1, 2)
	ctl.denied[1] = true

	assert.False(t, newExec(tbl, ctl).KillTree(context.Background(), 1))
	// the child is still handled
	assert.Equal(t, []int{2}, ctl.killed)
}

func TestKillTreeChildrenLookupFailureStillKillsTarget(t *testing.T) {
	tbl := &fakeTable{err: errors.New("table gone")}
	ctl := newFakeController(3)

	assert.True(t, newExec(tbl, ctl).KillTree(context.Background(), 3))
	assert.Equal(t, []int{3}, ctl.killed)
}

func TestKillTreeProbeErrorIsNotKilled(t *testing.T) {
	ctl := newFakeController(3)
	ctl.probeErr = errors.New("probe")
	assert.False(t, newExec(&fakeTable{}, ctl).KillTree(context.Background(), 3))
}

func TestKillTreeInvalidPID(t *testing.T) {
	ctl := newFakeController(0)
	e := newExec(&fakeTable{}, ctl)
	assert.False(t, e.KillTree(context.Background(), 0))
	assert.False(t, e.KillTree(context.Background(), -5))
	assert.Empty(t, ctl.killed)
}

func TestKillTreeCycleGuard(t *testing.T) {
	// pid reuse can make a stale table look cyclic
	tbl := &fakeTable{children: map[int][]int{1: {2}, 2: {1}}}
	ctl := newFakeController(1, 2)

	assert.True(t, newExec(tbl, ctl).KillTree(context.Background(), 1))
	assert.Equal(t, []int{2, 1}, ctl.killed)
}

func TestKillTreeProtectsSelf(t *testing.T) {
	tbl := &fakeTable{children: map[int][]int{1: {99}}}
	ctl := newFakeController(1, 99)
	e := New(tbl, ctl, WithLogger(quietLogger()), WithProtectedPID(99))

	assert.True(t, e.KillTree(context.Background(), 1))
	assert.Equal(t, []int{1}, ctl.killed)
	assert.False(t, e.KillTree(context.Background(), 99))
}
