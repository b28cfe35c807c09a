// Package release resolves the expected code digest of a repository from the
// notes of its latest published release.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/refparser"
	"github.com/aspect-build/enclaveproof/internal/trust"
	"golang.org/x/oauth2"
)

// DefaultGitHubAPI is the base URL for the GitHub API.
const DefaultGitHubAPI = "https://api.github.com"

// DefaultUserAgent identifies this client to the release API.
const DefaultUserAgent = "enclaveproof-client"

// DefaultTimeout bounds each release request.
const DefaultTimeout = 20 * time.Second

const opFetchRelease = "fetch release"

// Release holds the fields of a GitHub release this package reads.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

// Client fetches release metadata from GitHub.
type Client struct {
	baseURL    string
	userAgent  string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the transport client. WithToken still applies on
// top of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken authenticates requests with a GitHub token, which lifts the
// anonymous rate limit.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultGitHubAPI,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.httpClient
	if base == nil {
		base = &http.Client{Timeout: c.timeout}
	}
	if c.token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token}))
		authed.Timeout = c.timeout
		base = authed
	}
	c.httpClient = base
	return c
}

// Latest fetches the latest published release of repo.
func (c *Client) Latest(ctx context.Context, repo string) (*Release, error) {
	ref, err := refparser.Parse(repo)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, ref.Owner, ref.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &trust.TransferError{Op: opFetchRelease, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &trust.TransferError{
			Op:         opFetchRelease,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &rel, nil
}

// ResolveDigest returns the digest announced in the latest release notes of
// repo.
func (c *Client) ResolveDigest(ctx context.Context, repo string) (string, error) {
	rel, err := c.Latest(ctx, repo)
	if err != nil {
		return "", err
	}
	digest, err := ExtractDigest(rel.Body)
	if err != nil {
		return "", fmt.Errorf("release %s of %s: %w", rel.TagName, repo, err)
	}
	logx.Debugf("release: repo=%s tag=%s digest=%s", repo, rel.TagName, digest)
	return digest, nil
}
