//go:build !windows

package killtree

import (
	"errors"
	"syscall"
	"time"
)

// pollInterval is how often Terminate re-checks a killed process.
const pollInterval = 10 * time.Millisecond

type osController struct{}

// NewController returns the Controller for the local OS (SIGKILL based).
func NewController() Controller { return osController{} }

func (osController) Exited(pid int) (bool, error) {
	if pid <= 0 {
		return true, nil
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, syscall.EPERM):
		// exists; EPERM means it belongs to someone else
		return isZombie(pid), nil
	case errors.Is(err, syscall.ESRCH):
		return true, nil
	default:
		return false, err
	}
}

func (c osController) Terminate(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
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
