//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package analyze

import (
	"os/exec"
	"syscall"

	sys "golang.org/x/sys/unix"
)

// setProcessGroup puts the worker in its own process group so a timeout can
// take down the debugger and the debuggee along with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	sys.Kill(-cmd.Process.Pid, sys.SIGKILL)
}
