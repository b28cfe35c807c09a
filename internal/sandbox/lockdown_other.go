//go:build !linux

package sandbox

import (
	"fmt"
	"os"
	"syscall"
)

// LockdownExec on non-Linux platforms only replaces the process with the
// verifier; no seccomp is available.
func LockdownExec(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("_exec: no verifier specified")
	}
	return syscall.Exec(args[0], args, os.Environ())
}
