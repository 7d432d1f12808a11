// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set the Func fields to control behavior. Unset funcs panic on call,
// except ModelNameFunc and HealthCheckFunc which have benign defaults.
// All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	StreamFunc      func(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error)
	ModelNameFunc   func() string
	HealthCheckFunc func(ctx context.Context) error

	mu            sync.Mutex
	completeCalls int
	streamCalls   int
	healthCalls   int
	requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc and tracks call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.completeCalls++
	m.requests = append(m.requests, req.Clone())
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	m.mu.Lock()
	m.streamCalls++
	m.requests = append(m.requests, req.Clone())
	m.mu.Unlock()
	return m.StreamFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc.
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.healthCalls++
	m.mu.Unlock()
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}

// CompleteCalls returns how many times Complete was called.
func (m *MockProvider) CompleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCalls
}

// StreamCalls returns how many times Stream was called.
func (m *MockProvider) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// HealthCalls returns how many times HealthCheck was called.
func (m *MockProvider) HealthCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthCalls
}

// Requests returns copies of every request received, in call order.
func (m *MockProvider) Requests() []provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.CompletionRequest(nil), m.requests...)
}

// Text returns a MockProvider whose Complete returns text and whose
// Stream emits text as a single block with the given ID.
func Text(text string) *MockProvider {
	return &MockProvider{
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{
				Content:      text,
				FinishReason: provider.FinishReasonStop,
				Usage:        provider.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
			}, nil
		},
		StreamFunc: func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return Chunks(Block("b0", text)...), nil
		},
	}
}

// Failing returns a MockProvider whose calls all fail with err.
func Failing(err error) *MockProvider {
	return &MockProvider{
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, err
		},
		StreamFunc: func(_ context.Context, _ provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return nil, err
		},
		HealthCheckFunc: func(_ context.Context) error { return err },
	}
}

// Block returns the start/delta/end chunks for one text block. Each
// element of parts becomes one text-delta.
func Block(id string, parts ...string) []provider.StreamChunk {
	out := make([]provider.StreamChunk, 0, len(parts)+2)
	out = append(out, provider.StreamChunk{Type: provider.ChunkTextStart, ID: id})
	for _, p := range parts {
		out = append(out, provider.StreamChunk{Type: provider.ChunkTextDelta, ID: id, Delta: p})
	}
	return append(out, provider.StreamChunk{Type: provider.ChunkTextEnd, ID: id})
}

// Chunks returns a closed, buffered channel holding chunks.
func Chunks(chunks ...provider.StreamChunk) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// Collect drains ch and returns every chunk received.
func Collect(ch <-chan provider.StreamChunk) []provider.StreamChunk {
	var out []provider.StreamChunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
