package attestation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aspect-build/enclaveproof/internal/capability"
	"github.com/aspect-build/enclaveproof/internal/trust"
)

type fakeCaps struct {
	code       string
	att        capability.Attestation
	codeErr    error
	enclaveErr error

	enclaveDelay time.Duration
	enclaveDone  atomic.Bool

	gotRepo, gotDigest, gotEnclave string
}

func (f *fakeCaps) VerifyCode(_ context.Context, repo, digest string) (string, error) {
	f.gotRepo, f.gotDigest = repo, digest
	return f.code, f.codeErr
}

func (f *fakeCaps) VerifyEnclave(_ context.Context, enclave string) (capability.Attestation, error) {
	f.gotEnclave = enclave
	time.Sleep(f.enclaveDelay)
	f.enclaveDone.Store(true)
	return f.att, f.enclaveErr
}

func TestVerify_Match(t *testing.T) {
	caps := &fakeCaps{code: "m1", att: capability.Attestation{Measurement: "m1", Certificate: "cert-x"}}

	gt, err := NewCoordinator(caps).Verify(context.Background(), "enclave.example", "acme/app", "d1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := trust.GroundTruth{PublicKeyFP: "cert-x", Measurement: "m1"}
	if gt != want {
		t.Fatalf("got %+v, want %+v", gt, want)
	}
	if caps.gotRepo != "acme/app" || caps.gotDigest != "d1" || caps.gotEnclave != "enclave.example" {
		t.Fatalf("capabilities called with repo=%q digest=%q enclave=%q", caps.gotRepo, caps.gotDigest, caps.gotEnclave)
	}
}

func TestVerify_Mismatch(t *testing.T) {
	caps := &fakeCaps{code: "m1", att: capability.Attestation{Measurement: "m2", Certificate: "c"}}

	gt, err := NewCoordinator(caps).Verify(context.Background(), "e", "acme/app", "d1")
	if !errors.Is(err, trust.ErrMeasurementMismatch) {
		t.Fatalf("expected ErrMeasurementMismatch, got %v", err)
	}
	if gt != (trust.GroundTruth{}) {
		t.Fatalf("ground truth returned on mismatch: %+v", gt)
	}
	var me *trust.MismatchError
	if !errors.As(err, &me) || me.Expected != "m1" || me.Attested != "m2" {
		t.Fatalf("mismatch details lost: %v", err)
	}
}

func TestVerify_CapabilityErrorWaitsForSibling(t *testing.T) {
	boom := errors.New("bundle signature invalid")
	caps := &fakeCaps{codeErr: boom, enclaveDelay: 30 * time.Millisecond}

	_, err := NewCoordinator(caps).Verify(context.Background(), "e", "acme/app", "d1")
	var ce *trust.CapabilityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if ce.Capability != capability.NameVerifyCode || !errors.Is(err, boom) {
		t.Fatalf("unexpected capability error %+v", ce)
	}
	if !caps.enclaveDone.Load() {
		t.Fatal("Verify returned before the enclave call completed")
	}
}

func TestVerify_EnclaveError(t *testing.T) {
	caps := &fakeCaps{code: "m1", enclaveErr: errors.New("quote expired")}

	_, err := NewCoordinator(caps).Verify(context.Background(), "e", "acme/app", "d1")
	var ce *trust.CapabilityError
	if !errors.As(err, &ce) || ce.Capability != capability.NameVerifyEnclave {
		t.Fatalf("expected verifyEnclave CapabilityError, got %v", err)
	}
	if trust.KindOf(err) != trust.KindCapability {
		t.Fatalf("kind = %s", trust.KindOf(err))
	}
}

type rendezvousCaps struct {
	codeStarted, enclaveStarted chan struct{}
}

func (r *rendezvousCaps) VerifyCode(ctx context.Context, _, _ string) (string, error) {
	close(r.codeStarted)
	select {
	case <-r.enclaveStarted:
		return "m", nil
	case <-time.After(2 * time.Second):
		return "", errors.New("verifyEnclave never started concurrently")
	}
}

func (r *rendezvousCaps) VerifyEnclave(ctx context.Context, _ string) (capability.Attestation, error) {
	close(r.enclaveStarted)
	select {
	case <-r.codeStarted:
		return capability.Attestation{Measurement: "m", Certificate: "c"}, nil
	case <-time.After(2 * time.Second):
		return capability.Attestation{}, errors.New("verifyCode never started concurrently")
	}
}

func TestVerify_CallsRunConcurrently(t *testing.T) {
	caps := &rendezvousCaps{codeStarted: make(chan struct{}), enclaveStarted: make(chan struct{})}
	if _, err := NewCoordinator(caps).Verify(context.Background(), "e", "acme/app", "d"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
