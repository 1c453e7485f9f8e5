//go:build !linux && !windows

package killtree

import (
	"slices"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func isZombie(pid int) bool {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	st, err := p.Status()
	if err != nil {
		return false
	}
	return slices.Contains(st, gopsproc.Zombie)
}
