package handler

import (
	"net/http"

	"github.com/aspect-build/enclaveproof/internal/trust"
)

// statusFor maps a failed verification onto an HTTP status.
func statusFor(kind trust.Kind) int {
	switch kind {
	case trust.KindTransfer, trust.KindCapability, trust.KindPayloadIntegrity:
		return http.StatusBadGateway
	case trust.KindExportsNotReady:
		return http.StatusServiceUnavailable
	case trust.KindDigestNotFound:
		return http.StatusUnprocessableEntity
	case trust.KindMeasurementMismatch, trust.KindPinMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
