//go:build windows

package background

import "os/exec"

// newShellCmd creates a shell command for Windows via cmd /c.
func newShellCmd(command string) *exec.Cmd {
	return exec.Command("cmd", "/c", command)
}

func terminate(cmd *exec.Cmd) {
	kill(cmd)
}

func kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	cmd.Process.Kill()
}
