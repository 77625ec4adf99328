package process

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// signalGroup delivers sig to every process in the group led by pid.
// A group that is already gone is not an error.
func signalGroup(pid int, sig syscall.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
