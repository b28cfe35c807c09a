//go:build linux

package sandbox

import (
	"os/exec"
	"syscall"
)

func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// The verifier must not outlive the process that trusts its answers.
		Pdeathsig: syscall.SIGKILL,
	}
}
