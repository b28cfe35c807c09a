package attestation

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/trust"
)

const defaultTLSPort = "443"

// PinOptions tunes CheckPin.
type PinOptions struct {
	// SkipChainVerify accepts certificates that do not chain to a trusted
	// root. The public key fingerprint is still enforced.
	SkipChainVerify bool
	// RATLS additionally verifies the served certificate as a dstack RA-TLS
	// certificate. Requires a build with -tags ratls.
	RATLS bool
	// AppID, when set, must equal the app id in the certificate's RA-TLS
	// extension.
	AppID string
	// Timeout bounds the TLS dial. Zero means 10s.
	Timeout time.Duration
}

// PublicKeyFP returns the hex SHA-256 of the certificate's
// SubjectPublicKeyInfo.
func PublicKeyFP(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(sum[:])
}

// CheckPin connects to the enclave over TLS and requires the served leaf
// certificate to carry the public key bound in gt.
func CheckPin(ctx context.Context, enclave string, gt trust.GroundTruth, opts PinOptions) error {
	addr, host := enclaveAddr(enclave)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.SkipChainVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &trust.TransferError{Op: "dial enclave", URL: addr, Err: err}
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("enclave %s presented no certificate", addr)
	}
	leaf := state.PeerCertificates[0]

	served := PublicKeyFP(leaf)
	if !strings.EqualFold(served, gt.PublicKeyFP) {
		logx.Securityf("public key pin mismatch enclave=%s attested=%s served=%s", enclave, gt.PublicKeyFP, served)
		return fmt.Errorf("%w: attested %s, served %s", trust.ErrPinMismatch, gt.PublicKeyFP, served)
	}
	appID, hasAppID := certAppID(leaf)
	if hasAppID {
		logx.Debugf("attestation: enclave certificate carries app_id=%q", appID)
	}
	if opts.AppID != "" && appID != opts.AppID {
		logx.Securityf("app id mismatch enclave=%s want=%s certificate=%q", enclave, opts.AppID, appID)
		return fmt.Errorf("%w: certificate app_id %q, want %q", trust.ErrPinMismatch, appID, opts.AppID)
	}

	if opts.RATLS {
		if err := verifyRATLS(leaf); err != nil {
			return fmt.Errorf("verify RA-TLS certificate: %w", err)
		}
	}
	logx.Debugf("attestation: pin verified enclave=%s public_key_fp=%s", enclave, served)
	return nil
}

// enclaveAddr returns host:port for dialing and the bare host for SNI.
func enclaveAddr(enclave string) (addr, host string) {
	enclave = strings.TrimPrefix(enclave, "https://")
	enclave = strings.TrimRight(enclave, "/")
	if h, _, err := net.SplitHostPort(enclave); err == nil {
		return enclave, h
	}
	return net.JoinHostPort(enclave, defaultTLSPort), enclave
}
