package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aspect-build/enclaveproof/internal/trust"
)

const (
	opFetchPayload = "fetch verifier payload"

	maxPayloadSize = 256 << 20
)

func (e *Engine) fetchPayload(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.payloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create payload request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &trust.TransferError{Op: opFetchPayload, URL: e.payloadURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &trust.TransferError{
			Op:         opFetchPayload,
			URL:        e.payloadURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize+1))
	if err != nil {
		return nil, &trust.TransferError{Op: opFetchPayload, URL: e.payloadURL, StatusCode: resp.StatusCode, Err: err}
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("verifier payload exceeds %d bytes", maxPayloadSize)
	}

	if e.payloadSHA256 != "" {
		sum := sha256.Sum256(payload)
		got := hex.EncodeToString(sum[:])
		if !strings.EqualFold(got, e.payloadSHA256) {
			return nil, fmt.Errorf("%w: expected sha256 %s, got %s", trust.ErrPayloadIntegrity, e.payloadSHA256, got)
		}
	}
	return payload, nil
}
