// Package trust defines the result of a successful enclave verification and
// the error kinds every failed verification is classified into.
package trust

// GroundTruth is the verified pairing of the enclave's attested measurement
// with the fingerprint of the public key bound to its identity.
//
// Only the attestation coordinator constructs it, and only after the code
// measurement and the attested measurement compared equal.
type GroundTruth struct {
	PublicKeyFP string `json:"public_key_fp"`
	Measurement string `json:"measurement"`
}
