//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// LockdownExec hardens the current process and then replaces it with the
// verifier binary at args[0]. It runs inside the child spawned by
// ProcessRuntime through the hidden "_exec" subcommand.
//
// The seccomp filter survives execve, so the verifier can neither trace other
// processes nor read their memory. PR_SET_DUMPABLE=0 closes the window before
// the exec.
func LockdownExec(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("_exec: no verifier specified")
	}

	if err := installSeccompFilter(); err != nil {
		return fmt.Errorf("_exec: install seccomp filter: %w", err)
	}
	if err := unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("_exec: PR_SET_DUMPABLE: %w", err)
	}

	return syscall.Exec(args[0], args, os.Environ())
}

// installSeccompFilter makes ptrace(2) and process_vm_readv(2) fail with
// EPERM. Every other syscall is allowed.
func installSeccompFilter() error {
	const (
		retAllow   = 0x7fff0000 // SECCOMP_RET_ALLOW
		retErrno   = 0x00050000 // SECCOMP_RET_ERRNO
		modeFilter = 1          // SECCOMP_SET_MODE_FILTER
	)

	filter := []unix.SockFilter{
		{Code: unix.BPF_LD | unix.BPF_W | unix.BPF_ABS, K: 0},
		{Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K, K: uint32(unix.SYS_PTRACE), Jt: 2},
		{Code: unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K, K: uint32(unix.SYS_PROCESS_VM_READV), Jt: 1},
		{Code: unix.BPF_RET | unix.BPF_K, K: retAllow},
		{Code: unix.BPF_RET | unix.BPF_K, K: retErrno | uint32(unix.EPERM)},
	}
	prog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}

	// Unprivileged processes may only install filters with no_new_privs set.
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("PR_SET_NO_NEW_PRIVS: %w", err)
	}
	if _, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, modeFilter, 0, uintptr(unsafe.Pointer(&prog))); errno != 0 {
		return fmt.Errorf("SECCOMP_SET_MODE_FILTER: %v", errno)
	}
	return nil
}
