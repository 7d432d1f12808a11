// Package gateway exposes the generation pipeline over HTTP: a JSON
// generate endpoint, a WebSocket stream endpoint, health, status and
// Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Inovico-app/inovy-sub002/internal/guard"
	"github.com/Inovico-app/inovy-sub002/internal/orchestrator"
	"github.com/Inovico-app/inovy-sub002/internal/pool"
	"github.com/Inovico-app/inovy-sub002/internal/provider"
	"github.com/Inovico-app/inovy-sub002/internal/security"
)

// ErrNoGenerator is returned by New when Deps.Generator is nil.
var ErrNoGenerator = errors.New("gateway: generator is required")

// Generator runs guarded chat turns.
type Generator interface {
	Generate(ctx context.Context, prompt string, cfg guard.Config) (orchestrator.Result, error)
	GenerateStream(ctx context.Context, prompt string, cfg guard.Config) (<-chan provider.StreamChunk, error)
}

// PoolStatus reports resource pool health.
type PoolStatus interface {
	Degraded() bool
	AllStats() []pool.Stats
}

// Deps are the collaborators of a Gateway. Generator is required.
type Deps struct {
	Generator Generator
	Pool      PoolStatus

	// Registry backs GET /metrics. When nil a private registry is used.
	Registry *prometheus.Registry

	// Limiter applies per-organization limits. Optional.
	Limiter *security.RateLimiter

	// Policy is the guard policy for every request. The zero value
	// redacts PII at the default confidence and audits.
	Policy Policy

	Logger *slog.Logger
}

// Gateway is the HTTP front of the pipeline.
type Gateway struct {
	config    Config
	generator Generator
	pool      PoolStatus
	registry  *prometheus.Registry
	limiter   *security.RateLimiter
	policy    Policy
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	startedAt time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a Gateway. The server is not started until Start.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if deps.Generator == nil {
		return nil, ErrNoGenerator
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	g := &Gateway{
		config:    cfg,
		generator: deps.Generator,
		pool:      deps.Pool,
		registry:  reg,
		limiter:   deps.Limiter,
		policy:    deps.Policy,
		metrics:   NewMetrics(reg),
		logger:    logger,
		now:       time.Now,
	}
	g.startedAt = g.now()
	return g, nil
}

// Start binds the listener and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return errors.New("gateway: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	g.server = &http.Server{
		Handler:      g.Handler(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	g.listener = ln
	g.done = make(chan struct{})
	g.startedAt = g.now()

	go func() {
		defer close(g.done)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: server error", "error", err)
		}
	}()

	g.logger.Info("gateway started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Stop gracefully shuts the server down within the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv, done := g.server, g.done
	g.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err != nil {
		// Hijacked WebSocket connections are not tracked by Shutdown.
		_ = srv.Close()
	}
	<-done
	g.logger.Info("gateway stopped")
	return err
}
