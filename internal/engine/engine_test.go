package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aspect-build/enclaveproof/internal/capability"
	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/trust"
)

var testPayload = []byte("verifier-payload-bytes")

type stubCaps struct{}

func (stubCaps) VerifyCode(context.Context, string, string) (string, error) { return "m", nil }
func (stubCaps) VerifyEnclave(context.Context, string) (capability.Attestation, error) {
	return capability.Attestation{Measurement: "m", Certificate: "c"}, nil
}

type fakeInstance struct {
	readyAfter int32 // Exports succeeds on this call; 0 = never
	calls      atomic.Int32
	stop       chan struct{}
}

func (i *fakeInstance) Run() error {
	<-i.stop
	return nil
}

func (i *fakeInstance) Exports() (capability.Capabilities, bool) {
	n := i.calls.Add(1)
	if i.readyAfter > 0 && n >= i.readyAfter {
		return stubCaps{}, true
	}
	return nil, false
}

type fakeRuntime struct {
	readyAfter  int32
	activations atomic.Int32
	gate        chan struct{}
	gotPayload  []byte
	err         error

	mu   sync.Mutex
	inst *fakeInstance
}

func (r *fakeRuntime) Activate(_ context.Context, payload []byte) (Instance, error) {
	r.activations.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if r.err != nil {
		return nil, r.err
	}
	inst := &fakeInstance{readyAfter: r.readyAfter, stop: make(chan struct{})}
	r.mu.Lock()
	r.gotPayload = payload
	r.inst = inst
	r.mu.Unlock()
	return inst, nil
}

func payloadServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(10 * time.Millisecond)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Write(testPayload)
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func fastEngine(url string, rt Runtime, opts ...Option) *Engine {
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	return New(url, rt, opts...)
}

func TestEnsureReady_SingleFlight(t *testing.T) {
	ts, hits := payloadServer(t, http.StatusOK)
	rt := &fakeRuntime{readyAfter: 2}
	e := fastEngine(ts.URL, rt)

	if e.State() != StateUninitialized {
		t.Fatalf("state before first call = %s", e.State())
	}

	const callers = 25
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caps, err := e.EnsureReady(context.Background())
			if err == nil && caps == nil {
				err = errors.New("nil capabilities on success")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureReady: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("payload fetched %d times, want 1", got)
	}
	if got := rt.activations.Load(); got != 1 {
		t.Fatalf("payload activated %d times, want 1", got)
	}
	if string(rt.gotPayload) != string(testPayload) {
		t.Fatalf("runtime got payload %q", rt.gotPayload)
	}
	if e.State() != StateReady {
		t.Fatalf("state = %s, want ready", e.State())
	}
}

func TestEnsureReady_IdempotentAfterSuccess(t *testing.T) {
	ts, hits := payloadServer(t, http.StatusOK)
	rt := &fakeRuntime{readyAfter: 1}
	e := fastEngine(ts.URL, rt)

	if _, err := e.EnsureReady(context.Background()); err != nil {
		t.Fatalf("first EnsureReady: %v", err)
	}

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := e.EnsureReady(context.Background()); err != nil {
			t.Fatalf("EnsureReady: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("ready engine took %s to answer", elapsed)
	}
	if hits.Load() != 1 || rt.activations.Load() != 1 {
		t.Fatalf("hits=%d activations=%d, want 1/1", hits.Load(), rt.activations.Load())
	}
}

func TestEnsureReady_ExportsNeverRegister(t *testing.T) {
	ts, _ := payloadServer(t, http.StatusOK)
	rt := &fakeRuntime{}
	e := New(ts.URL, rt, WithPollInterval(10*time.Millisecond), WithPollAttempts(5))

	start := time.Now()
	_, err := e.EnsureReady(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, trust.ErrExportsNotReady) {
		t.Fatalf("expected ErrExportsNotReady, got %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Fatalf("gave up after %s, before the poll budget elapsed", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("wait was not bounded: %s", elapsed)
	}
	if got := rt.inst.calls.Load(); got != 5 {
		t.Fatalf("polled exports %d times, want 5", got)
	}
	if e.State() != StateFailed {
		t.Fatalf("state = %s, want failed", e.State())
	}
}

func TestEnsureReady_FetchFailureIsSticky(t *testing.T) {
	ts, hits := payloadServer(t, http.StatusNotFound)
	rt := &fakeRuntime{readyAfter: 1}
	e := fastEngine(ts.URL, rt)

	_, err := e.EnsureReady(context.Background())
	var te *trust.TransferError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransferError, got %v", err)
	}
	if te.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", te.StatusCode)
	}

	_, err2 := e.EnsureReady(context.Background())
	if err2 != err {
		t.Fatalf("second call returned a different failure: %v", err2)
	}
	if hits.Load() != 1 {
		t.Fatalf("failed load was retried: %d fetches", hits.Load())
	}
	if rt.activations.Load() != 0 {
		t.Fatal("runtime must not be activated after a failed fetch")
	}
}

func TestEnsureReady_PayloadPin(t *testing.T) {
	ts, _ := payloadServer(t, http.StatusOK)

	e := fastEngine(ts.URL, &fakeRuntime{readyAfter: 1}, WithPayloadSHA256("00"+hex.EncodeToString(make([]byte, 31))))
	if _, err := e.EnsureReady(context.Background()); !errors.Is(err, trust.ErrPayloadIntegrity) {
		t.Fatalf("expected ErrPayloadIntegrity, got %v", err)
	}

	sum := sha256.Sum256(testPayload)
	ok := fastEngine(ts.URL, &fakeRuntime{readyAfter: 1}, WithPayloadSHA256(hex.EncodeToString(sum[:])))
	if _, err := ok.EnsureReady(context.Background()); err != nil {
		t.Fatalf("pinned payload rejected: %v", err)
	}
}

func TestEnsureReady_ActivationError(t *testing.T) {
	ts, _ := payloadServer(t, http.StatusOK)
	boom := errors.New("exec format error")
	e := fastEngine(ts.URL, &fakeRuntime{err: boom})

	if _, err := e.EnsureReady(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected activation error, got %v", err)
	}
}

func TestEnsureReady_CallerContextDoesNotCancelLoad(t *testing.T) {
	ts, hits := payloadServer(t, http.StatusOK)
	rt := &fakeRuntime{readyAfter: 1, gate: make(chan struct{})}
	e := fastEngine(ts.URL, rt)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := e.EnsureReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
	if e.State() != StateInitializing {
		t.Fatalf("state = %s, want initializing", e.State())
	}

	close(rt.gate)
	if _, err := e.EnsureReady(context.Background()); err != nil {
		t.Fatalf("load should have completed: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("payload fetched %d times, want 1", hits.Load())
	}
}

func TestNew_NonPositivePollSettingsKeepDefaults(t *testing.T) {
	e := New("http://unused", nil, WithPollInterval(0), WithPollAttempts(-1))
	if e.pollInterval != DefaultPollInterval || e.pollAttempts != DefaultPollAttempts {
		t.Fatalf("interval=%s attempts=%d, want defaults", e.pollInterval, e.pollAttempts)
	}

	ts, _ := payloadServer(t, http.StatusOK)
	e = New(ts.URL, &fakeRuntime{readyAfter: 1}, WithPollInterval(0))
	if _, err := e.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady with zero interval: %v", err)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEnsureReady_VerifierExitIsLoggedAsError(t *testing.T) {
	var out lockedBuffer
	logx.SetOutput(&out)
	t.Cleanup(func() { logx.SetOutput(os.Stderr) })

	ts, _ := payloadServer(t, http.StatusOK)
	rt := &fakeRuntime{readyAfter: 1}
	e := fastEngine(ts.URL, rt)
	if _, err := e.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}

	rt.mu.Lock()
	close(rt.inst.stop)
	rt.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := out.String(); strings.Contains(got, "[ERROR]") && strings.Contains(got, "restarted") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("verifier exit not logged as an error: %q", out.String())
}
