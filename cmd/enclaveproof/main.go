package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/sandbox"
	"github.com/aspect-build/enclaveproof/internal/trust"
	"github.com/aspect-build/enclaveproof/internal/version"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitTrusted  = 0
	exitFailure  = 1
	exitRejected = 3
)

func main() {
	os.Exit(execute(newRootCmd(), os.Args[1:]))
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		verbose  bool
	)

	rootCmd := &cobra.Command{
		Use:           "enclaveproof",
		Short:         "Verify that an enclave runs the code a repository published",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logx.Configure(logLevel, verbose)
		},
	}
	rootCmd.SetVersionTemplate(version.String("enclaveproof") + "\n")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (or ENCLAVEPROOF_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose debug logs (same as --log-level debug)")

	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newDigestCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newExecCmd())
	return rootCmd
}

// execute runs the command tree and maps the outcome onto an exit code.
func execute(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitTrusted
	}
	var coded *exitError
	if errors.As(err, &coded) {
		return coded.code
	}
	fmt.Fprintf(root.ErrOrStderr(), "enclaveproof: %v\n", err)

	if trust.KindOf(err).IsTrustFailure() {
		return exitRejected
	}
	return exitFailure
}

// exitError carries an explicit exit code for errors that were already
// reported to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// newExecCmd creates the hidden _exec subcommand used by the sandbox to apply
// seccomp/PR_SET_DUMPABLE before execve into the verifier.
func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "_exec -- <verifier> [args...]",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		// DisableFlagParsing so that everything after _exec is passed as args
		DisableFlagParsing: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && args[0] == "--" {
				args = args[1:]
			}
			return sandbox.LockdownExec(args)
		},
	}
	return cmd
}
