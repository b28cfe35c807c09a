package trust

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"transfer status", &TransferError{Op: "fetch release", URL: "u", StatusCode: 404}, KindTransfer},
		{"wrapped transfer", fmt.Errorf("resolve digest: %w", &TransferError{Op: "fetch release", Err: errors.New("dial")}), KindTransfer},
		{"exports", fmt.Errorf("load: %w", ErrExportsNotReady), KindExportsNotReady},
		{"digest", ErrDigestNotFound, KindDigestNotFound},
		{"capability", &CapabilityError{Capability: "verifyCode", Err: errors.New("boom")}, KindCapability},
		{"mismatch", &MismatchError{Expected: "m1", Attested: "m2"}, KindMeasurementMismatch},
		{"integrity", ErrPayloadIntegrity, KindPayloadIntegrity},
		{"pin", fmt.Errorf("check pin: %w", ErrPinMismatch), KindPinMismatch},
		{"other", errors.New("something"), KindOther},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := KindOf(c.err); got != c.want {
				t.Fatalf("KindOf(%v) = %q, want %q", c.err, got, c.want)
			}
		})
	}
}

func TestTrustFailureKinds(t *testing.T) {
	if !KindMeasurementMismatch.IsTrustFailure() || !KindPinMismatch.IsTrustFailure() {
		t.Fatal("mismatch kinds must be trust failures")
	}
	if KindTransfer.IsTrustFailure() || KindCapability.IsTrustFailure() {
		t.Fatal("infrastructure kinds must not be trust failures")
	}
}

func TestTransferErrorMessage(t *testing.T) {
	err := &TransferError{Op: "fetch release", URL: "https://api.example/r", StatusCode: 404, Status: "404 Not Found"}
	want := "fetch release: https://api.example/r returned 404 Not Found"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}

	inner := errors.New("connection refused")
	wrapped := &TransferError{Op: "fetch verifier payload", Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Fatal("TransferError must unwrap to the transport error")
	}
}
