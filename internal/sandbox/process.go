// Package sandbox runs a verifier payload as a hardened child process and
// exposes its capabilities over the child's stdin and stdout.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/aspect-build/enclaveproof/internal/capability"
	"github.com/aspect-build/enclaveproof/internal/engine"
	"github.com/aspect-build/enclaveproof/internal/logx"
)

// ProcessRuntime activates a payload that is an executable speaking the
// capability protocol.
type ProcessRuntime struct {
	// Dir receives the payload file. Empty means os.TempDir().
	Dir string
	// Lockdown starts the payload via "<self> _exec -- <payload>", so the
	// running binary must dispatch _exec to LockdownExec.
	Lockdown bool
	// Args are passed to the payload.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// Secrets are redacted from the payload's stderr.
	Secrets []string
	// Stderr receives the payload's diagnostics. Defaults to the log.
	Stderr io.Writer
}

var _ engine.Runtime = (*ProcessRuntime)(nil)

// Process is a started verifier payload.
type Process struct {
	cmd    *exec.Cmd
	client *capability.Client
	stdin  io.Closer
	stderr *MaskingWriter
	logw   *lineLogger
	path   string
}

func (r *ProcessRuntime) Activate(_ context.Context, payload []byte) (engine.Instance, error) {
	path, err := writePayload(r.Dir, payload)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if r.Lockdown {
		self, err := os.Executable()
		if err != nil {
			os.Remove(path)
			return nil, fmt.Errorf("resolve self executable: %w", err)
		}
		args := append([]string{"_exec", "--", path}, r.Args...)
		cmd = exec.Command(self, args...)
	} else {
		cmd = exec.Command(path, r.Args...)
	}
	cmd.Env = append(os.Environ(), r.Env...)
	setProcAttr(cmd)

	p := &Process{cmd: cmd, path: path}

	dest := r.Stderr
	if dest == nil {
		p.logw = &lineLogger{prefix: "verifier: "}
		dest = p.logw
	}
	p.stderr = NewMaskingWriter(dest, r.Secrets)
	cmd.Stderr = p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("verifier stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("verifier stdout: %w", err)
	}
	p.stdin = stdin
	p.client = capability.NewClient(stdout, stdin)

	if err := cmd.Start(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("start verifier: %w", err)
	}
	logx.Debugf("sandbox: verifier started pid=%d lockdown=%v", cmd.Process.Pid, r.Lockdown)
	return p, nil
}

// Run serves the protocol until the verifier exits, then reaps it and
// removes its payload file.
func (p *Process) Run() error {
	listenErr := p.client.Listen()
	waitErr := p.cmd.Wait()

	_ = p.stdin.Close()
	_ = p.stderr.Flush()
	if p.logw != nil {
		p.logw.Flush()
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		logx.Warnf("sandbox: remove payload %s: %v", p.path, err)
	}

	if waitErr != nil {
		return fmt.Errorf("verifier exited: %w", waitErr)
	}
	if listenErr != nil {
		return fmt.Errorf("read verifier output: %w", listenErr)
	}
	return nil
}

func (p *Process) Exports() (capability.Capabilities, bool) {
	if p.client.Registered(capability.NameVerifyCode, capability.NameVerifyEnclave) {
		return p.client, true
	}
	return nil, false
}

// Pid returns the verifier's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

func writePayload(dir string, payload []byte) (string, error) {
	f, err := os.CreateTemp(dir, "enclaveproof-verifier-*")
	if err != nil {
		return "", fmt.Errorf("create payload file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write payload file: %w", err)
	}
	if err := f.Chmod(0o700); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("chmod payload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close payload file: %w", err)
	}
	return path, nil
}
