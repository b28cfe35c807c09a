// Package client is the entry point for verifying that an enclave runs the
// code published by a repository.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/aspect-build/enclaveproof/internal/attestation"
	"github.com/aspect-build/enclaveproof/internal/engine"
	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/refparser"
	"github.com/aspect-build/enclaveproof/internal/release"
	"github.com/aspect-build/enclaveproof/internal/trust"
)

// DigestResolver yields the expected code digest of a repository.
type DigestResolver interface {
	ResolveDigest(ctx context.Context, repo string) (string, error)
}

var _ DigestResolver = (*release.Client)(nil)

// Client verifies one enclave against one repository.
type Client struct {
	enclave  string
	repo     string
	repoErr  error
	engine   *engine.Engine
	resolver DigestResolver
}

type Option func(*Client)

// WithResolver replaces the default GitHub release resolver.
func WithResolver(r DigestResolver) Option {
	return func(c *Client) { c.resolver = r }
}

// New stores the identifiers. It performs no I/O; the engine is loaded on
// first use. Accepted repository forms are normalized to owner/name; an
// unparseable repository is reported by the first Verify.
func New(enclave, repo string, eng *engine.Engine, opts ...Option) *Client {
	c := &Client{enclave: enclave, repo: repo, engine: eng}
	if ref, err := refparser.Parse(repo); err != nil {
		c.repoErr = err
	} else {
		c.repo = ref.String()
	}
	for _, o := range opts {
		o(c)
	}
	if c.resolver == nil {
		c.resolver = release.NewClient()
	}
	return c
}

func (c *Client) Enclave() string { return c.enclave }
func (c *Client) Repo() string    { return c.repo }

// Initialize loads the verifier engine ahead of the first Verify.
func (c *Client) Initialize(ctx context.Context) error {
	_, err := c.engine.EnsureReady(ctx)
	return err
}

// Attempt is the record of one Verify call.
type Attempt struct {
	Enclave     string
	Repo        string
	Digest      string
	GroundTruth trust.GroundTruth
	Err         error
	Duration    time.Duration
}

// Verify returns the enclave's ground truth once the measurement of the
// latest published release equals the measurement the enclave attests.
func (c *Client) Verify(ctx context.Context) (trust.GroundTruth, error) {
	a := c.Attempt(ctx)
	return a.GroundTruth, a.Err
}

// Attempt runs Verify and keeps the intermediate digest and timing for
// auditing.
func (c *Client) Attempt(ctx context.Context) Attempt {
	start := time.Now()
	a := Attempt{Enclave: c.enclave, Repo: c.repo}
	a.Digest, a.GroundTruth, a.Err = c.verify(ctx)
	a.Duration = time.Since(start)
	return a
}

func (c *Client) verify(ctx context.Context) (string, trust.GroundTruth, error) {
	caps, err := c.engine.EnsureReady(ctx)
	if err != nil {
		return "", trust.GroundTruth{}, fmt.Errorf("load verifier: %w", err)
	}
	if c.repoErr != nil {
		return "", trust.GroundTruth{}, c.repoErr
	}

	digest, err := c.resolver.ResolveDigest(ctx, c.repo)
	if err != nil {
		return "", trust.GroundTruth{}, fmt.Errorf("resolve digest: %w", err)
	}
	logx.Infof("verify: enclave=%s repo=%s digest=%s", c.enclave, c.repo, digest)

	gt, err := attestation.NewCoordinator(caps).Verify(ctx, c.enclave, c.repo, digest)
	if err != nil {
		return digest, trust.GroundTruth{}, err
	}
	logx.Infof("verify: trusted enclave=%s measurement=%s", c.enclave, gt.Measurement)
	return digest, gt, nil
}
