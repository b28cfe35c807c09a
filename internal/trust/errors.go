package trust

import (
	"errors"
	"fmt"
)

var (
	// ErrExportsNotReady means the verifier payload never registered both
	// capabilities within the readiness poll budget.
	ErrExportsNotReady = errors.New("verifier exports not ready")
	// ErrDigestNotFound means no digest pattern matched the release notes.
	ErrDigestNotFound = errors.New("digest not found in release notes")
	// ErrMeasurementMismatch means the published code measurement and the
	// measurement attested by the enclave hardware differ.
	ErrMeasurementMismatch = errors.New("measurement mismatch")
	// ErrPayloadIntegrity means the fetched verifier payload did not hash to
	// the pinned SHA-256.
	ErrPayloadIntegrity = errors.New("verifier payload integrity check failed")
	// ErrPinMismatch means the enclave served a TLS key other than the one
	// bound in the ground truth.
	ErrPinMismatch = errors.New("enclave public key fingerprint mismatch")
)

// TransferError reports a failed fetch of the verifier payload or of release
// metadata: either a transport failure (Err set) or a non-success HTTP status.
type TransferError struct {
	Op         string
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s returned %s", e.Op, e.URL, e.statusText())
}

func (e *TransferError) statusText() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// CapabilityError wraps a rejection from one of the verifier capabilities.
// The underlying error is opaque to this layer.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// MismatchError carries both sides of a failed measurement comparison.
type MismatchError struct {
	Expected string
	Attested string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%v: code=%s enclave=%s", ErrMeasurementMismatch, e.Expected, e.Attested)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrMeasurementMismatch
}
