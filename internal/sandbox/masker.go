package sandbox

import (
	"io"
	"sync"

	aho "github.com/petar-dambovaliev/aho-corasick"
)

const redacted = "[REDACTED]"

// MaskingWriter replaces every occurrence of the configured secrets in the
// stream written through it. A secret split across two writes is still
// caught: the last len(longest)-1 bytes stay buffered until more data or
// Flush arrives.
type MaskingWriter struct {
	mu       sync.Mutex
	out      io.Writer
	matcher  aho.AhoCorasick
	enabled  bool
	holdBack int
	buf      []byte
}

// NewMaskingWriter returns a writer redacting secrets on its way to out.
// Empty secrets are ignored; with none left, writes pass straight through.
func NewMaskingWriter(out io.Writer, secrets []string) *MaskingWriter {
	var patterns []string
	longest := 0
	for _, s := range secrets {
		if s == "" {
			continue
		}
		patterns = append(patterns, s)
		if len(s) > longest {
			longest = len(s)
		}
	}

	mw := &MaskingWriter{out: out}
	if len(patterns) == 0 {
		return mw
	}
	mw.enabled = true
	mw.holdBack = longest - 1
	builder := aho.NewAhoCorasickBuilder(aho.Opts{})
	mw.matcher = builder.Build(patterns)
	return mw
}

func (mw *MaskingWriter) Write(p []byte) (int, error) {
	if !mw.enabled {
		return mw.out.Write(p)
	}

	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.buf = append(mw.buf, p...)
	if err := mw.drain(false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush emits whatever is still held back.
func (mw *MaskingWriter) Flush() error {
	if !mw.enabled {
		return nil
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.drain(true)
}

func (mw *MaskingWriter) drain(all bool) error {
	if len(mw.buf) == 0 {
		return nil
	}

	limit := len(mw.buf)
	if !all {
		limit -= mw.holdBack
		if limit <= 0 {
			return nil
		}
	}

	// Matches are searched over the whole buffer so one that starts before
	// limit and ends after it is redacted as a unit.
	var out []byte
	pos, consumed := 0, limit
	for _, m := range mw.matcher.FindAll(string(mw.buf)) {
		if m.Start() < pos {
			continue
		}
		if m.Start() >= limit && !all {
			break
		}
		out = append(out, mw.buf[pos:m.Start()]...)
		out = append(out, redacted...)
		pos = m.End()
		if pos > consumed {
			consumed = pos
		}
	}
	if pos < limit {
		out = append(out, mw.buf[pos:limit]...)
	}

	if len(out) > 0 {
		if _, err := mw.out.Write(out); err != nil {
			return err
		}
	}
	mw.buf = append(mw.buf[:0], mw.buf[consumed:]...)
	return nil
}
