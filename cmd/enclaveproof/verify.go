package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/aspect-build/enclaveproof/internal/attestation"
	"github.com/aspect-build/enclaveproof/internal/client"
	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/store"
	"github.com/aspect-build/enclaveproof/internal/trust"
	"github.com/spf13/cobra"
)

type verifyOptions struct {
	enclave     string
	repo        string
	verifierURL string
	noLockdown  bool
	pin         bool
	ratls       bool
	insecureTLS bool
	appID       string
	dbPath      string
	jsonOutput  bool
}

func newVerifyCmd() *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify --enclave <host> --repo <owner/name>",
		Short: "Verify an enclave against the latest release of a repository",
		Long: `Load the verifier, resolve the code digest announced in the latest release
of the repository, and require the measurement of that code to equal the
measurement the enclave attests.

Exit status is 0 when the enclave is trusted, 3 when it was rejected
(measurement or public key pin mismatch) and 1 on any other failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.enclave, "enclave", "", "Enclave host to verify (required)")
	cmd.Flags().StringVar(&opts.repo, "repo", "", "Repository as owner/name or GitHub URL (required)")
	cmd.Flags().StringVar(&opts.verifierURL, "verifier-url", "", "Verifier payload URL (or set ENCLAVEPROOF_VERIFIER_URL)")
	cmd.Flags().BoolVar(&opts.noLockdown, "no-lockdown", false, "Disable seccomp/ptrace lockdown on the verifier process")
	cmd.Flags().BoolVar(&opts.pin, "pin", false, "Also require the enclave's TLS key to match the attested public key")
	cmd.Flags().BoolVar(&opts.ratls, "ratls", false, "With --pin, also verify the TLS certificate as a dstack RA-TLS certificate")
	cmd.Flags().BoolVar(&opts.insecureTLS, "insecure-tls", false, "With --pin, accept certificates that do not chain to a trusted root")
	cmd.Flags().StringVar(&opts.appID, "app-id", "", "With --pin, require this dstack app id in the TLS certificate")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Record the attempt in this SQLite database (e.g. enclaveproof.db)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("enclave")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func runVerify(cmd *cobra.Command, opts verifyOptions) error {
	// --verifier-url wins over the environment.
	if opts.verifierURL != "" {
		os.Setenv("ENCLAVEPROOF_VERIFIER_URL", opts.verifierURL)
	}
	cfg, err := client.LoadConfig()
	if err != nil {
		return err
	}
	// Lockdown only meaningful on Linux
	cfg.Lockdown = cfg.Lockdown && !opts.noLockdown && runtime.GOOS == "linux"

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cl := client.New(opts.enclave, opts.repo, cfg.NewEngine(), client.WithResolver(cfg.NewResolver()))
	a := cl.Attempt(ctx)

	if a.Err == nil && opts.pin {
		pinOpts := attestation.PinOptions{SkipChainVerify: opts.insecureTLS, RATLS: opts.ratls, AppID: opts.appID}
		if err := attestation.CheckPin(ctx, opts.enclave, a.GroundTruth, pinOpts); err != nil {
			a.Err = fmt.Errorf("check public key pin: %w", err)
			a.GroundTruth = trust.GroundTruth{}
		}
	}

	if opts.dbPath != "" {
		if err := recordAttempt(opts.dbPath, a); err != nil {
			logx.Warnf("record verification: %v", err)
		}
	}

	if opts.jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), a); err != nil {
			return err
		}
		if a.Err != nil {
			return &exitError{code: exitCodeFor(a.Err), err: a.Err}
		}
		return nil
	}

	if a.Err != nil {
		return a.Err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "enclave=%s\n", a.Enclave)
	fmt.Fprintf(out, "repo=%s\n", a.Repo)
	fmt.Fprintf(out, "digest=%s\n", a.Digest)
	fmt.Fprintf(out, "measurement=%s\n", a.GroundTruth.Measurement)
	fmt.Fprintf(out, "public_key_fp=%s\n", a.GroundTruth.PublicKeyFP)
	fmt.Fprintf(out, "trusted=true\n")
	return nil
}

type verifyResult struct {
	Enclave     string             `json:"enclave"`
	Repo        string             `json:"repo"`
	Digest      string             `json:"digest,omitempty"`
	Trusted     bool               `json:"trusted"`
	GroundTruth *trust.GroundTruth `json:"ground_truth,omitempty"`
	Error       string             `json:"error,omitempty"`
	Kind        string             `json:"kind,omitempty"`
	DurationMS  int64              `json:"duration_ms"`
}

func writeJSON(w io.Writer, a client.Attempt) error {
	res := verifyResult{
		Enclave:    a.Enclave,
		Repo:       a.Repo,
		Digest:     a.Digest,
		DurationMS: a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		res.Error = a.Err.Error()
		res.Kind = string(trust.KindOf(a.Err))
	} else {
		gt := a.GroundTruth
		res.Trusted = true
		res.GroundTruth = &gt
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func exitCodeFor(err error) int {
	if trust.KindOf(err).IsTrustFailure() {
		return exitRejected
	}
	return exitFailure
}

func recordAttempt(dbPath string, a client.Attempt) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.RecordVerification(store.NewVerification(a.Enclave, a.Repo, a.Digest, a.GroundTruth, a.Err, a.Duration))
}
