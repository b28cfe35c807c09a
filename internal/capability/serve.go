package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Serve is the payload side of the protocol: it registers both capabilities,
// then answers requests read from r until r is exhausted. Requests are served
// concurrently; replies may be written in any order.
func Serve(ctx context.Context, r io.Reader, w io.Writer, caps Capabilities) error {
	lw := &lineWriter{w: w}
	for _, name := range []string{NameVerifyCode, NameVerifyEnclave} {
		if err := lw.send(message{Type: typeRegister, Name: name}); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	sc := newScanner(r)
	for sc.Scan() {
		var m message
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil || m.ID == 0 {
			continue
		}
		wg.Add(1)
		go func(m message) {
			defer wg.Done()
			_ = lw.send(dispatch(ctx, caps, m))
		}(m)
	}
	return sc.Err()
}

func dispatch(ctx context.Context, caps Capabilities, m message) message {
	fail := func(err error) message {
		return message{Type: typeError, ID: m.ID, Method: m.Method, Error: err.Error()}
	}

	var result any
	switch m.Method {
	case NameVerifyCode:
		var p codeParams
		if err := json.Unmarshal(m.Params, &p); err != nil {
			return fail(fmt.Errorf("invalid params: %w", err))
		}
		measurement, err := caps.VerifyCode(ctx, p.Repo, p.Digest)
		if err != nil {
			return fail(err)
		}
		result = measurement
	case NameVerifyEnclave:
		var p enclaveParams
		if err := json.Unmarshal(m.Params, &p); err != nil {
			return fail(fmt.Errorf("invalid params: %w", err))
		}
		att, err := caps.VerifyEnclave(ctx, p.Enclave)
		if err != nil {
			return fail(err)
		}
		result = att
	default:
		return fail(fmt.Errorf("unknown method %q", m.Method))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fail(err)
	}
	return message{Type: typeResult, ID: m.ID, Result: raw}
}
