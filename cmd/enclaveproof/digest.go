package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aspect-build/enclaveproof/internal/release"
	"github.com/aspect-build/enclaveproof/internal/version"
	"github.com/spf13/cobra"
)

func newDigestCmd() *cobra.Command {
	var (
		repo      string
		githubAPI string
	)

	cmd := &cobra.Command{
		Use:   "digest --repo <owner/name>",
		Short: "Print the code digest announced in the latest release",
		Long: `Fetch the latest release of the repository and print the 64-hex code digest
from its release notes. No verifier is loaded and no enclave is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := releaseOptions(githubAPI)
			if err != nil {
				return err
			}
			rc := release.NewClient(opts...)
			digest, err := rc.ResolveDigest(cmd.Context(), repo)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), digest)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository as owner/name or GitHub URL (required)")
	cmd.Flags().StringVar(&githubAPI, "github-api", "", "GitHub API base URL (or set ENCLAVEPROOF_GITHUB_API)")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

// releaseOptions configures a release client from the flag and the
// environment. It does not need the verifier settings.
func releaseOptions(githubAPI string) ([]release.Option, error) {
	if githubAPI == "" {
		githubAPI = envOr("ENCLAVEPROOF_GITHUB_API", release.DefaultGitHubAPI)
	}
	opts := []release.Option{
		release.WithBaseURL(githubAPI),
		release.WithUserAgent(version.UserAgent()),
	}
	if token := envOr("ENCLAVEPROOF_GITHUB_TOKEN", envOr("GITHUB_TOKEN", "")); token != "" {
		opts = append(opts, release.WithToken(token))
	}
	if v := strings.TrimSpace(os.Getenv("ENCLAVEPROOF_HTTP_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("ENCLAVEPROOF_HTTP_TIMEOUT must be a positive duration, got %q", v)
		}
		opts = append(opts, release.WithTimeout(d))
	}
	return opts, nil
}
