//go:build !ratls

package attestation

import (
	"crypto/x509"
	"fmt"
)

// RATLSAvailable reports whether RA-TLS verification is compiled in.
func RATLSAvailable() bool { return false }

func verifyRATLS(_ *x509.Certificate) error {
	return fmt.Errorf("RA-TLS verifier unavailable: rebuild with -tags ratls")
}
