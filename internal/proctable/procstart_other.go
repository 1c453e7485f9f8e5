//go:build !linux

package proctable

import (
	"context"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// procStart uses gopsutil (sysctl on Darwin/BSD, WinAPI on Windows).
func procStart(ctx context.Context, p *gopsproc.Process) (time.Time, bool) {
	return createTime(ctx, p)
}
