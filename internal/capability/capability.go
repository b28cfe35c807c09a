// Package capability describes the two verification functions a verifier
// payload provides, and the line-oriented JSON protocol used to reach them
// when the payload runs as a separate process.
package capability

import "context"

// Registered names of the capabilities. A payload announces each name once
// it is able to serve calls for it.
const (
	NameVerifyCode    = "verifyCode"
	NameVerifyEnclave = "verifyEnclave"
)

// Attestation is the verified report of an enclave: the measurement of the
// code it is running and the fingerprint of the public key bound to it.
type Attestation struct {
	Measurement string `json:"measurement"`
	Certificate string `json:"certificate"`
}

// Capabilities are the verification primitives supplied by the payload.
// Both calls may block on the network and may fail; their errors are opaque.
type Capabilities interface {
	// VerifyCode returns the measurement of the code published by repo at
	// the given artifact digest.
	VerifyCode(ctx context.Context, repo, digest string) (string, error)
	// VerifyEnclave fetches and verifies the hardware attestation of the
	// enclave reachable at the given host.
	VerifyEnclave(ctx context.Context, enclave string) (Attestation, error)
}
