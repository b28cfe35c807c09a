package attestation

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"strings"
	"unicode"
)

// dstack stamps RA-TLS certificates with the app id under this extension.
var oidRATLSAppID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 62397, 1, 3}

// certAppID returns the app id carried by an RA-TLS certificate. Binary ids
// are hex encoded.
func certAppID(cert *x509.Certificate) (string, bool) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidRATLSAppID) {
			continue
		}
		var raw []byte
		if rest, err := asn1.Unmarshal(ext.Value, &raw); err != nil || len(rest) > 0 || len(raw) == 0 {
			return "", false
		}
		s := string(raw)
		if strings.IndexFunc(s, func(r rune) bool { return r > unicode.MaxASCII || !unicode.IsPrint(r) }) >= 0 {
			return hex.EncodeToString(raw), true
		}
		return strings.TrimSpace(s), true
	}
	return "", false
}
