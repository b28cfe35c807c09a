package client

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aspect-build/enclaveproof/internal/engine"
	"github.com/aspect-build/enclaveproof/internal/release"
	"github.com/aspect-build/enclaveproof/internal/sandbox"
	"github.com/aspect-build/enclaveproof/internal/version"
)

// Config holds client configuration loaded from environment variables.
type Config struct {
	VerifierURL    string
	VerifierSHA256 string
	GitHubAPI      string
	GitHubToken    string
	HTTPTimeout    time.Duration
	Lockdown       bool
}

// LoadConfig loads client configuration from environment variables.
func LoadConfig() (*Config, error) {
	verifierURL := strings.TrimSpace(os.Getenv("ENCLAVEPROOF_VERIFIER_URL"))
	if verifierURL == "" {
		return nil, fmt.Errorf("ENCLAVEPROOF_VERIFIER_URL is required")
	}

	sum := strings.ToLower(strings.TrimSpace(os.Getenv("ENCLAVEPROOF_VERIFIER_SHA256")))
	if sum != "" && !isHex64(sum) {
		return nil, fmt.Errorf("ENCLAVEPROOF_VERIFIER_SHA256 must be 64 hex characters")
	}

	githubAPI := os.Getenv("ENCLAVEPROOF_GITHUB_API")
	if githubAPI == "" {
		githubAPI = release.DefaultGitHubAPI
	}

	token := os.Getenv("ENCLAVEPROOF_GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	timeout := release.DefaultTimeout
	if v := strings.TrimSpace(os.Getenv("ENCLAVEPROOF_HTTP_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("ENCLAVEPROOF_HTTP_TIMEOUT must be a positive duration, got %q", v)
		}
		timeout = d
	}

	lockdown := true
	if v := strings.TrimSpace(strings.ToLower(os.Getenv("ENCLAVEPROOF_LOCKDOWN"))); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			lockdown = true
		case "0", "false", "no", "off":
			lockdown = false
		default:
			return nil, fmt.Errorf("ENCLAVEPROOF_LOCKDOWN must be one of true/false/1/0/yes/no/on/off")
		}
	}

	return &Config{
		VerifierURL:    verifierURL,
		VerifierSHA256: sum,
		GitHubAPI:      strings.TrimRight(githubAPI, "/"),
		GitHubToken:    token,
		HTTPTimeout:    timeout,
		Lockdown:       lockdown,
	}, nil
}

// NewEngine builds the verifier engine backed by a sandboxed child process.
// The GitHub token is handed to the verifier and redacted from its output.
func (c *Config) NewEngine() *engine.Engine {
	rt := &sandbox.ProcessRuntime{Lockdown: c.Lockdown}
	if c.GitHubToken != "" {
		rt.Env = []string{"GITHUB_TOKEN=" + c.GitHubToken}
		rt.Secrets = []string{c.GitHubToken}
	}

	opts := []engine.Option{engine.WithHTTPClient(&http.Client{Timeout: c.HTTPTimeout})}
	if c.VerifierSHA256 != "" {
		opts = append(opts, engine.WithPayloadSHA256(c.VerifierSHA256))
	}
	return engine.New(c.VerifierURL, rt, opts...)
}

// NewResolver builds the GitHub release resolver.
func (c *Config) NewResolver() *release.Client {
	opts := []release.Option{
		release.WithBaseURL(c.GitHubAPI),
		release.WithTimeout(c.HTTPTimeout),
		release.WithUserAgent(version.UserAgent()),
	}
	if c.GitHubToken != "" {
		opts = append(opts, release.WithToken(c.GitHubToken))
	}
	return release.NewClient(opts...)
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
