//go:build linux

package proctable

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
	sysconf "github.com/tklauser/go-sysconf"
	"golang.org/x/sys/unix"
)

var (
	clkOnce sync.Once
	clkTck  int64
)

// procStart reads the creation time from /proc and falls back to gopsutil
// when /proc cannot be parsed.
func procStart(ctx context.Context, p *gopsproc.Process) (time.Time, bool) {
	if t, ok := procStartLinux(int(p.Pid)); ok {
		return t, true
	}
	return createTime(ctx, p)
}

// procStartLinux returns the start instant of pid. The kernel truncates
// starttime to a clock tick, so the result is rounded up to the end of that
// tick and never precedes the real start.
func procStartLinux(pid int) (time.Time, bool) {
	if pid <= 0 {
		return time.Time{}, false
	}
	// starttime is field 22 of /proc/[pid]/stat, in clock ticks since boot
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return time.Time{}, false
	}
	line := string(b)
	// comm may contain spaces, so split after its closing paren
	end := strings.LastIndex(line, ") ")
	if end == -1 {
		return time.Time{}, false
	}
	parts := strings.Fields(line[end+2:])
	if len(parts) < 20 {
		return time.Time{}, false
	}
	ticks, err := strconv.ParseInt(parts[19], 10, 64)
	if err != nil || ticks < 0 {
		return time.Time{}, false
	}

	boot, ok := bootInstant()
	if !ok {
		return time.Time{}, false
	}
	clkOnce.Do(loadClockTick)
	ticks++
	sec := ticks / clkTck
	nsec := (ticks % clkTck) * int64(time.Second) / clkTck
	return boot.Add(time.Duration(sec)*time.Second + time.Duration(nsec)), true
}

// bootInstant is the wall-clock time of boot at nanosecond precision.
// /proc/stat btime is whole seconds and would age processes by up to 1s.
func bootInstant() (time.Time, bool) {
	var ts unix.Timespec
	// uptime first, so a late now can only move boot later
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return time.Time{}, false
	}
	now := time.Now()
	return now.Add(-time.Duration(ts.Nano())), true
}

func loadClockTick() {
	clk, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clk <= 0 {
		clk = 100
	}
	clkTck = clk
}
