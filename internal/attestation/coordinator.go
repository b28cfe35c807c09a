// Package attestation cross-checks what code an enclave should be running
// against what its hardware attests it is running.
package attestation

import (
	"context"

	"github.com/aspect-build/enclaveproof/internal/capability"
	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/trust"
	"golang.org/x/sync/errgroup"
)

// Coordinator runs the two-sided verification over a verifier's
// capabilities.
type Coordinator struct {
	caps capability.Capabilities
}

func NewCoordinator(caps capability.Capabilities) *Coordinator {
	return &Coordinator{caps: caps}
}

// Verify measures the code published by repo at digest and the code attested
// by enclave, and returns the ground truth only if both measurements are
// identical. Both capability calls always run to completion.
func (c *Coordinator) Verify(ctx context.Context, enclave, repo, digest string) (trust.GroundTruth, error) {
	var (
		codeMeasurement string
		att             capability.Attestation
		g               errgroup.Group
	)

	g.Go(func() error {
		m, err := c.caps.VerifyCode(ctx, repo, digest)
		if err != nil {
			return &trust.CapabilityError{Capability: capability.NameVerifyCode, Err: err}
		}
		codeMeasurement = m
		return nil
	})
	g.Go(func() error {
		a, err := c.caps.VerifyEnclave(ctx, enclave)
		if err != nil {
			return &trust.CapabilityError{Capability: capability.NameVerifyEnclave, Err: err}
		}
		att = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return trust.GroundTruth{}, err
	}

	if codeMeasurement != att.Measurement {
		logx.Securityf("measurement mismatch enclave=%s repo=%s digest=%s code=%s attested=%s",
			enclave, repo, digest, codeMeasurement, att.Measurement)
		return trust.GroundTruth{}, &trust.MismatchError{Expected: codeMeasurement, Attested: att.Measurement}
	}

	logx.Debugf("attestation: measurements match enclave=%s measurement=%s public_key_fp=%s", enclave, att.Measurement, att.Certificate)
	return trust.GroundTruth{
		PublicKeyFP: att.Certificate,
		Measurement: att.Measurement,
	}, nil
}
