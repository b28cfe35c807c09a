package capability

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

const (
	typeRegister = "register"
	typeResult   = "result"
	typeError    = "error"

	maxLineSize = 4 << 20
)

// ErrClosed is returned for calls issued or pending after the payload's
// output stream ended.
var ErrClosed = errors.New("capability channel closed")

// RemoteError is a rejection reported by the payload.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

type message struct {
	Type   string          `json:"type,omitempty"`
	Name   string          `json:"name,omitempty"`
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type codeParams struct {
	Repo   string `json:"repo"`
	Digest string `json:"digest"`
}

type enclaveParams struct {
	Enclave string `json:"enclave"`
}

// lineWriter serializes whole messages onto w, one JSON document per line.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) send(m message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err = lw.w.Write(b)
	return err
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}
