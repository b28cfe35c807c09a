package engine

import (
	"context"

	"github.com/aspect-build/enclaveproof/internal/capability"
)

// Runtime activates a fetched verifier payload.
type Runtime interface {
	Activate(ctx context.Context, payload []byte) (Instance, error)
}

// Instance is an activated payload.
type Instance interface {
	// Run drives the payload for the rest of the process lifetime. The engine
	// starts it in the background and never waits for it.
	Run() error
	// Exports returns the payload's capabilities once both of them have
	// registered. It must not block.
	Exports() (capability.Capabilities, bool)
}
