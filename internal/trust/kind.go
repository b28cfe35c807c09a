package trust

import "errors"

// Kind classifies a verification failure for logs, storage and HTTP status
// mapping.
type Kind string

const (
	KindNone                Kind = ""
	KindTransfer            Kind = "transfer"
	KindExportsNotReady     Kind = "exports_not_ready"
	KindDigestNotFound      Kind = "digest_not_found"
	KindCapability          Kind = "capability"
	KindMeasurementMismatch Kind = "measurement_mismatch"
	KindPayloadIntegrity    Kind = "payload_integrity"
	KindPinMismatch         Kind = "pin_mismatch"
	KindOther               Kind = "other"
)

// KindOf returns the kind of the first classified error in err's chain.
// Trust failures take precedence over the infrastructure kinds.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrMeasurementMismatch):
		return KindMeasurementMismatch
	case errors.Is(err, ErrPinMismatch):
		return KindPinMismatch
	case errors.Is(err, ErrPayloadIntegrity):
		return KindPayloadIntegrity
	case errors.Is(err, ErrExportsNotReady):
		return KindExportsNotReady
	case errors.Is(err, ErrDigestNotFound):
		return KindDigestNotFound
	}

	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return KindCapability
	}
	var transferErr *TransferError
	if errors.As(err, &transferErr) {
		return KindTransfer
	}
	return KindOther
}

// IsTrustFailure reports whether the kind indicates a potential integrity
// violation rather than an infrastructure fault.
func (k Kind) IsTrustFailure() bool {
	return k == KindMeasurementMismatch || k == KindPinMismatch
}
