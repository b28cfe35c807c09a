// Package engine loads the external verifier payload exactly once and hands
// out its capabilities.
//
// An Engine is a shared handle: every caller that needs the verifier holds
// the same *Engine, and the first EnsureReady starts the only load that will
// ever run for it. Concurrent and later callers attach to that load and see
// its outcome. A failed load stays failed.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aspect-build/enclaveproof/internal/capability"
	"github.com/aspect-build/enclaveproof/internal/logx"
	"github.com/aspect-build/enclaveproof/internal/trust"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollAttempts = 10
	DefaultFetchTimeout = 20 * time.Second
)

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// load is the memoized in-flight (or finished) initialization.
type load struct {
	done chan struct{}
	caps capability.Capabilities
	err  error
}

type Engine struct {
	payloadURL    string
	payloadSHA256 string
	runtime       Runtime
	httpClient    *http.Client
	pollInterval  time.Duration
	pollAttempts  int

	mu      sync.Mutex
	pending *load
}

type Option func(*Engine)

func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// WithPollInterval sets the readiness poll interval. Non-positive values
// keep the default.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithPollAttempts sets the readiness poll budget. Non-positive values keep
// the default.
func WithPollAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pollAttempts = n
		}
	}
}

// WithPayloadSHA256 pins the hex SHA-256 of the payload. A fetched payload
// with any other hash is rejected before activation.
func WithPayloadSHA256(hexDigest string) Option {
	return func(e *Engine) { e.payloadSHA256 = hexDigest }
}

// New returns an engine that will fetch its payload from payloadURL and
// activate it with rt. Nothing is fetched until EnsureReady.
func New(payloadURL string, rt Runtime, opts ...Option) *Engine {
	e := &Engine{
		payloadURL:   payloadURL,
		runtime:      rt,
		httpClient:   &http.Client{Timeout: DefaultFetchTimeout},
		pollInterval: DefaultPollInterval,
		pollAttempts: DefaultPollAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnsureReady returns the verifier capabilities, loading the payload on the
// first call. ctx bounds only this caller's wait; the load itself keeps
// running for the other callers if ctx ends first.
func (e *Engine) EnsureReady(ctx context.Context) (capability.Capabilities, error) {
	l := e.start()
	select {
	case <-l.done:
		return l.caps, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State reports where the engine is in its lifecycle.
func (e *Engine) State() State {
	e.mu.Lock()
	l := e.pending
	e.mu.Unlock()

	if l == nil {
		return StateUninitialized
	}
	select {
	case <-l.done:
		if l.err != nil {
			return StateFailed
		}
		return StateReady
	default:
		return StateInitializing
	}
}

func (e *Engine) start() *load {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == nil {
		e.pending = &load{done: make(chan struct{})}
		go e.run(e.pending)
	}
	return e.pending
}

func (e *Engine) run(l *load) {
	defer close(l.done)
	started := time.Now()
	l.caps, l.err = e.initialize(context.Background())
	if l.err != nil {
		logx.Errorf("engine: verifier load failed after %s: %v", time.Since(started).Round(time.Millisecond), l.err)
		return
	}
	logx.Infof("engine: verifier ready in %s", time.Since(started).Round(time.Millisecond))
}

func (e *Engine) initialize(ctx context.Context) (capability.Capabilities, error) {
	logx.Debugf("engine: fetching verifier payload url=%s", e.payloadURL)
	payload, err := e.fetchPayload(ctx)
	if err != nil {
		return nil, err
	}

	inst, err := e.runtime.Activate(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("activate verifier payload: %w", err)
	}

	go func() {
		err := inst.Run()
		// The engine never reloads, so every later capability call fails.
		logx.Errorf("engine: verifier exited (err=%v); capability calls will fail until this process is restarted", err)
	}()

	return e.waitExports(inst)
}

func (e *Engine) waitExports(inst Instance) (capability.Capabilities, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for i := 0; i < e.pollAttempts; i++ {
		<-ticker.C
		if caps, ok := inst.Exports(); ok {
			logx.Debugf("engine: verifier exports registered after %d poll(s)", i+1)
			return caps, nil
		}
	}
	return nil, trust.ErrExportsNotReady
}
