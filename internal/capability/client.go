package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/aspect-build/enclaveproof/internal/logx"
)

type reply struct {
	result json.RawMessage
	err    error
}

// Client is the parent side of the protocol. It implements Capabilities by
// forwarding each call to the payload and waiting for the matching reply.
//
// Listen must be running for registrations and replies to be observed.
type Client struct {
	r  io.Reader
	lw *lineWriter

	mu         sync.Mutex
	nextID     uint64
	pending    map[uint64]chan reply
	registered map[string]bool
	closed     bool
}

// NewClient returns a client reading payload messages from r and writing
// requests to w.
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{
		r:          r,
		lw:         &lineWriter{w: w},
		pending:    make(map[uint64]chan reply),
		registered: make(map[string]bool),
	}
}

// Listen reads payload messages until the stream ends. On return every
// pending call fails with ErrClosed and all registrations are withdrawn.
func (c *Client) Listen() error {
	sc := newScanner(c.r)
	for sc.Scan() {
		c.handle(sc.Bytes())
	}
	err := sc.Err()
	c.shutdown()
	return err
}

// Registered reports whether the payload announced every given name.
func (c *Client) Registered(names ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		if !c.registered[n] {
			return false
		}
	}
	return true
}

func (c *Client) handle(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var m message
	if err := json.Unmarshal(line, &m); err != nil {
		logx.Debugf("capability: ignoring non-protocol output %q", truncate(line, 120))
		return
	}

	switch m.Type {
	case typeRegister:
		c.mu.Lock()
		c.registered[m.Name] = true
		c.mu.Unlock()
		logx.Debugf("capability: payload registered %s", m.Name)
	case typeResult:
		c.deliver(m.ID, reply{result: m.Result})
	case typeError:
		c.deliver(m.ID, reply{err: &RemoteError{Method: m.Method, Message: m.Error}})
	default:
		logx.Debugf("capability: ignoring message type %q", m.Type)
	}
}

func (c *Client) deliver(id uint64, r reply) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		logx.Debugf("capability: reply for unknown call id=%d", id)
		return
	}
	ch <- r
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.registered = make(map[string]bool)
	for id, ch := range c.pending {
		ch <- reply{err: ErrClosed}
		delete(c.pending, id)
	}
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.lw.send(message{ID: id, Method: method, Params: raw}); err != nil {
		c.forget(id)
		return fmt.Errorf("send %s request: %w", method, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if err := json.Unmarshal(r.result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) VerifyCode(ctx context.Context, repo, digest string) (string, error) {
	var measurement string
	if err := c.call(ctx, NameVerifyCode, codeParams{Repo: repo, Digest: digest}, &measurement); err != nil {
		return "", err
	}
	return measurement, nil
}

func (c *Client) VerifyEnclave(ctx context.Context, enclave string) (Attestation, error) {
	var att Attestation
	if err := c.call(ctx, NameVerifyEnclave, enclaveParams{Enclave: enclave}, &att); err != nil {
		return Attestation{}, err
	}
	return att, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
