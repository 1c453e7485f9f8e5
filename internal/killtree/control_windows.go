//go:build windows

package killtree

import (
	"errors"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const pollInterval = 10 * time.Millisecond

type osController struct{}

// NewController returns the Controller for the local OS (TerminateProcess based).
func NewController() Controller { return osController{} }

func (osController) Exited(pid int) (bool, error) {
	if pid <= 0 {
		return true, nil
	}
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (c osController) Terminate(pid int) error {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, gopsproc.ErrorProcessNotRunning) {
			return ErrAlreadyExited
		}
		return err
	}
	if err := p.Kill(); err != nil {
		if done, _ := c.Exited(pid); done {
			return ErrAlreadyExited
		}
		return err
	}
	for {
		done, err := c.Exited(pid)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		time.Sleep(pollInterval)
	}
}
