//go:build windows

package cmdutil

import (
	"os"
	"os/exec"
)

// SetupCommand configures Windows-specific command attributes. Windows has
// no Unix-style process groups; no special configuration is needed.
func SetupCommand(cmd *exec.Cmd) {
}

// KillProcessGroup kills the child process on Windows systems. Grandchild
// processes spawned by the external tool are not tracked.
func KillProcessGroup(cmd *exec.Cmd, _ os.Signal) error {
	if cmd != nil && cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}
