package capability

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

type fakeCaps struct {
	measurement string
	att         Attestation
	codeErr     error
	enclaveErr  error
	block       chan struct{}
}

func (f *fakeCaps) VerifyCode(_ context.Context, repo, digest string) (string, error) {
	if f.codeErr != nil {
		return "", f.codeErr
	}
	return f.measurement + ":" + repo + ":" + digest, nil
}

func (f *fakeCaps) VerifyEnclave(ctx context.Context, enclave string) (Attestation, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Attestation{}, ctx.Err()
		}
	}
	if f.enclaveErr != nil {
		return Attestation{}, f.enclaveErr
	}
	att := f.att
	att.Certificate = att.Certificate + "@" + enclave
	return att, nil
}

// connect wires a Client to Serve over in-memory pipes.
func connect(t *testing.T, caps Capabilities) (*Client, func()) {
	t.Helper()
	toChildR, toChildW := io.Pipe()
	toParentR, toParentW := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = Serve(ctx, toChildR, toParentW, caps)
		toParentW.Close()
	}()

	c := NewClient(toParentR, toChildW)
	go func() { _ = c.Listen() }()

	waitRegistered(t, c)
	return c, func() {
		cancel()
		toChildW.Close()
	}
}

func waitRegistered(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !c.Registered(NameVerifyCode, NameVerifyEnclave) {
		if time.Now().After(deadline) {
			t.Fatal("payload never registered both capabilities")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRoundTrip(t *testing.T) {
	c, stop := connect(t, &fakeCaps{measurement: "m1", att: Attestation{Measurement: "m1", Certificate: "cert"}})
	defer stop()

	ctx := context.Background()
	got, err := c.VerifyCode(ctx, "owner/repo", "abcd")
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if got != "m1:owner/repo:abcd" {
		t.Fatalf("VerifyCode = %q", got)
	}

	att, err := c.VerifyEnclave(ctx, "enclave.example")
	if err != nil {
		t.Fatalf("VerifyEnclave: %v", err)
	}
	if att.Measurement != "m1" || att.Certificate != "cert@enclave.example" {
		t.Fatalf("VerifyEnclave = %+v", att)
	}
}

func TestRemoteErrorPassthrough(t *testing.T) {
	c, stop := connect(t, &fakeCaps{codeErr: errors.New("sigstore bundle invalid")})
	defer stop()

	_, err := c.VerifyCode(context.Background(), "o/r", "d")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %T %v", err, err)
	}
	if re.Message != "sigstore bundle invalid" || re.Method != NameVerifyCode {
		t.Fatalf("unexpected remote error %+v", re)
	}
}

func TestPendingCallFailsWhenPayloadExits(t *testing.T) {
	toChildR, toChildW := io.Pipe()
	toParentR, toParentW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, toChildR) }()

	c := NewClient(toParentR, toChildW)
	listenDone := make(chan struct{})
	go func() {
		_ = c.Listen()
		close(listenDone)
	}()

	if _, err := toParentW.Write([]byte(`{"type":"register","name":"verifyCode"}` + "\n")); err != nil {
		t.Fatalf("write register: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.VerifyCode(context.Background(), "o/r", "d")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	toParentW.Close()
	<-listenDone

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never failed")
	}

	if c.Registered(NameVerifyCode) {
		t.Fatal("registrations must be withdrawn after the payload exits")
	}
	if _, err := c.VerifyEnclave(context.Background(), "e"); !errors.Is(err, ErrClosed) {
		t.Fatalf("call after close: expected ErrClosed, got %v", err)
	}
}

func TestNonProtocolLinesIgnored(t *testing.T) {
	toChildR, toChildW := io.Pipe()
	toParentR, toParentW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, toChildR) }()

	c := NewClient(toParentR, toChildW)
	go func() { _ = c.Listen() }()

	lines := "PASS\n\n{\"type\":\"register\",\"name\":\"verifyCode\"}\nnot json\n{\"type\":\"register\",\"name\":\"verifyEnclave\"}\n"
	if _, err := toParentW.Write([]byte(lines)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitRegistered(t, c)
	toParentW.Close()
}

func TestCallHonoursContext(t *testing.T) {
	block := make(chan struct{})
	c, stop := connect(t, &fakeCaps{block: block})
	defer func() {
		close(block)
		stop()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.VerifyEnclave(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
