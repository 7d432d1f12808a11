// Package provider defines the contract every upstream language-model
// client implements, the message and stream-chunk model shared by the
// pool and the guard chain, and the classification of upstream errors.
package provider

import "context"

// Name identifies an upstream provider.
type Name string

// Known upstream providers.
const (
	OpenAI    Name = "openai"
	Anthropic Name = "anthropic"
)

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages under modules/provider.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// Stream sends a completion request and returns a channel of chunks.
	// Initial connection errors are returned directly. Mid-stream errors
	// are delivered as a ChunkError chunk. The channel is closed when the
	// upstream finishes or ctx is cancelled.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing. The pool calls it during recovery
// sweeps; the result is informational only.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
