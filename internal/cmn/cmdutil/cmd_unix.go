//go:build !windows

package cmdutil

import (
	"os"
	"os/exec"
	"syscall"
)

// SetupCommand configures Unix-specific command attributes. The child gets
// its own process group so the whole external-tool process tree can be
// signaled at once on timeout or cancel.
func SetupCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// KillProcessGroup signals the child's whole process group.
func KillProcessGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd != nil && cmd.Process != nil {
		return syscall.Kill(-cmd.Process.Pid, sig.(syscall.Signal))
	}
	return nil
}
