//go:build ratls

package attestation

import (
	"crypto/x509"
	"encoding/hex"

	dstackratls "github.com/Dstack-TEE/dstack/sdk/go/ratls"
	"github.com/aspect-build/enclaveproof/internal/logx"
)

// RATLSAvailable reports whether RA-TLS verification is compiled in.
func RATLSAvailable() bool { return true }

func verifyRATLS(cert *x509.Certificate) error {
	result, err := dstackratls.VerifyCert(cert)
	if err != nil {
		return err
	}
	if result == nil || result.Report == nil {
		return nil
	}
	report := result.Report
	qr := report.Report
	logx.Debugf("ratls.verify status=%s qe_status=%s platform_status=%s advisory_ids=%v", report.Status, report.QEStatus.Status, report.PlatformStatus.Status, report.AdvisoryIDs)
	logx.Debugf("ratls.measurements type=%s mr_td=%s rtmr0=%s rtmr1=%s rtmr2=%s rtmr3=%s", qr.Type, fmtHex(qr.MrTD), fmtHex(qr.RTMR0), fmtHex(qr.RTMR1), fmtHex(qr.RTMR2), fmtHex(qr.RTMR3))
	return nil
}

func fmtHex(b []byte) string {
	x := hex.EncodeToString(b)
	if logx.IsDebug() || len(x) <= 32 {
		return x
	}
	return x[:32] + "..."
}
