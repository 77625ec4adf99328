package process

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

// isAlive reports whether a process with the given pid exists.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func TestSignalGroupGoneIsNotAnError(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 0")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}
	if err := signalGroup(cmd.Process.Pid, syscall.SIGTERM); err != nil {
		t.Errorf("signalGroup on reaped group = %v, want nil", err)
	}
}
