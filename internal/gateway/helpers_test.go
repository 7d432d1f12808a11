package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/orchestrator"
	"github.com/Inovico-app/inovy-sub002/internal/pool"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// fakeGenerator returns canned results and records the last request.
type fakeGenerator struct {
	result orchestrator.Result
	err    error

	// chunks are replayed by GenerateStream. A nil slice with a nil
	// streamErr yields an empty stream.
	chunks    []provider.StreamChunk
	streamErr error

	// block makes GenerateStream wait for ctx after replaying chunks.
	block bool

	mu      sync.Mutex
	prompt  string
	config  guard.Config
	stopped chan struct{}
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, cfg guard.Config) (orchestrator.Result, error) {
	f.record(prompt, cfg)
	return f.result, f.err
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, prompt string, cfg guard.Config) (<-chan provider.StreamChunk, error) {
	f.record(prompt, cfg)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan provider.StreamChunk)
	go func() {
		defer close(ch)
		if f.stopped != nil {
			defer close(f.stopped)
		}
		for _, c := range f.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
		if f.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (f *fakeGenerator) record(prompt string, cfg guard.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt = prompt
	f.config = cfg
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompt
}

// fakePool reports fixed pool figures.
type fakePool struct {
	degraded bool
	stats    []pool.Stats
}

func (p fakePool) Degraded() bool         { return p.degraded }
func (p fakePool) AllStats() []pool.Stats { return p.stats }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGateway builds a Gateway with a discarded logger.
func newTestGateway(t *testing.T, cfg Config, deps Deps) *Gateway {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	g, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

// newTestServer serves g's routes on an httptest server.
func newTestServer(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv
}
