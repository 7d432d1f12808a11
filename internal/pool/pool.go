// Package pool maintains fixed-size sets of upstream model clients per
// provider, selects among them round-robin, retries transient failures
// with a fixed back-off schedule and lets failing clients self-heal.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// Sentinel errors for pool operations.
var (
	// ErrPoolEmpty indicates the provider has no configured clients.
	// It is a configuration error and is never retried.
	ErrPoolEmpty = errors.New("pool: no clients configured for provider")

	// ErrRetriesExhausted wraps the final error of a call that failed
	// every attempt.
	ErrRetriesExhausted = errors.New("pool: retries exhausted")
)

// Factory builds the client for one pool slot. Returning an error that
// wraps provider.ErrNoCredentials skips the provider entirely.
type Factory func(slot int) (provider.Provider, error)

// Spec describes one upstream provider to pool.
type Spec struct {
	Name    provider.Name
	Factory Factory
}

// Option configures optional Pool behavior.
type Option func(*Pool)

// WithLogger injects a structured logger into the Pool.
// When nil or omitted, all log output is silently discarded.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pool) { p.tracer = t }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithSleep overrides how the pool waits between retries. Used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pool) { p.sleep = sleep }
}

// group holds the clients of one provider and its rotation cursor.
type group struct {
	clients []*PooledClient
	cursor  atomic.Uint64

	retries   atomic.Uint64
	exhausted atomic.Uint64
}

// Pool owns every upstream client. It is safe for concurrent use; the
// client registry is immutable after New and all mutable state lives in
// atomics, so unrelated requests never contend on a lock.
type Pool struct {
	cfg    Config
	groups map[provider.Name]*group
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds cfg.Size clients for every spec. A provider whose factory
// reports missing credentials is kept with zero clients; calls for it
// fail with ErrPoolEmpty.
func New(specs []Spec, cfg Config, opts ...Option) (*Pool, error) {
	p := &Pool{
		cfg:    cfg.withDefaults(),
		groups: make(map[provider.Name]*group, len(specs)),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(nopHandler{})
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/Inovico-app/inovy-sub002/internal/pool")
	}

	created := p.now()
	for _, s := range specs {
		if _, dup := p.groups[s.Name]; dup {
			return nil, fmt.Errorf("pool: duplicate provider %q", s.Name)
		}
		g := &group{}
		p.groups[s.Name] = g

		for slot := range p.cfg.Size {
			cl, err := s.Factory(slot)
			if errors.Is(err, provider.ErrNoCredentials) {
				p.logger.Warn("pool: provider skipped, no credentials", "provider", s.Name)
				g.clients = nil
				break
			}
			if err != nil {
				return nil, fmt.Errorf("pool: building %s client %d: %w", s.Name, slot, err)
			}
			g.clients = append(g.clients, newPooledClient(s.Name, slot, cl, created))
		}
		p.logger.Info("pool: provider initialized", "provider", s.Name, "clients", len(g.clients))
	}
	return p, nil
}

// Providers returns the configured provider names in sorted order.
func (p *Pool) Providers() []provider.Name {
	names := make([]provider.Name, 0, len(p.groups))
	for n := range p.groups {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Clients returns the pooled clients of a provider. The slice is a copy.
func (p *Pool) Clients(name provider.Name) []*PooledClient {
	g := p.groups[name]
	if g == nil {
		return nil
	}
	return append([]*PooledClient(nil), g.clients...)
}

// SelectClient returns the next healthy client for the provider in
// round-robin order. When every client is unhealthy it still returns
// the next one in rotation so callers keep trying.
func (p *Pool) SelectClient(name provider.Name) (*PooledClient, error) {
	g := p.groups[name]
	if g == nil || len(g.clients) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPoolEmpty, name)
	}

	n := uint64(len(g.clients))
	start := g.cursor.Add(1) - 1
	for i := range n {
		c := g.clients[(start+i)%n]
		if c.Healthy() {
			return c, nil
		}
	}

	c := g.clients[start%n]
	p.logger.Warn("pool: no healthy client, using next in rotation",
		"provider", name,
		"slot", c.slot,
	)
	return c, nil
}

// WithClient runs fn with a selected client while counting it as an
// active request. The counter is released on every exit path,
// including a panic in fn.
func (p *Pool) WithClient(ctx context.Context, name provider.Name, fn func(ctx context.Context, c *PooledClient) error) error {
	c, err := p.SelectClient(name)
	if err != nil {
		return err
	}
	release := c.acquire()
	defer release()
	return fn(ctx, c)
}

// ExecuteWithRetry runs op through WithClient. Retryable failures are
// retried after each delay in the configured schedule; each attempt
// selects a client afresh. When every attempt fails, the client used
// by the last attempt is marked unhealthy and the final error is
// returned wrapped in ErrRetriesExhausted.
func (p *Pool) ExecuteWithRetry(ctx context.Context, name provider.Name, op func(ctx context.Context, c *PooledClient) error) error {
	ctx, span := p.tracer.Start(ctx, "pool.execute",
		trace.WithAttributes(attribute.String("provider", string(name))),
	)
	defer span.End()

	g := p.groups[name]
	for attempt := 0; ; attempt++ {
		var used *PooledClient
		err := p.WithClient(ctx, name, func(ctx context.Context, c *PooledClient) error {
			used = c
			return op(ctx, c)
		})
		if err == nil {
			span.SetAttributes(attribute.Int("pool.attempts", attempt+1))
			return nil
		}

		if errors.Is(err, ErrPoolEmpty) || !provider.IsRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "non-retryable failure")
			return err
		}

		if attempt >= len(p.cfg.RetryDelays) {
			g.exhausted.Add(1)
			if used.markUnhealthy(p.now()) {
				p.logger.Warn("pool: client marked unhealthy",
					"provider", name,
					"slot", used.slot,
					"error", err,
				)
			}
			span.SetAttributes(attribute.Int("pool.attempts", attempt+1))
			span.RecordError(err)
			span.SetStatus(codes.Error, "retries exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}

		delay := p.cfg.RetryDelays[attempt]
		g.retries.Add(1)
		p.logger.Warn("pool: transient failure, retrying",
			"provider", name,
			"slot", used.slot,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := p.sleep(ctx, delay); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled during back-off")
			return err
		}
	}
}

// Complete sends a single-shot completion with retry.
func (p *Pool) Complete(ctx context.Context, name provider.Name, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	var resp provider.CompletionResponse
	err := p.ExecuteWithRetry(ctx, name, func(ctx context.Context, c *PooledClient) error {
		r, err := c.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// Stream opens a streaming completion with exactly one attempt: once
// output has begun a retry would duplicate it. The client stays counted
// as active until the upstream channel closes or ctx is cancelled;
// callers that stop reading early must cancel ctx.
func (p *Pool) Stream(ctx context.Context, name provider.Name, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	c, err := p.SelectClient(name)
	if err != nil {
		return nil, err
	}
	release := c.acquire()

	src, err := c.provider.Stream(ctx, req)
	if err != nil {
		release()
		p.logger.Warn("pool: stream open failed",
			"provider", name,
			"slot", c.slot,
			"error", err,
		)
		return nil, err
	}

	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)
		defer release()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// HealthCheck runs one recovery sweep: every unhealthy client whose
// last check is older than the recovery window is flipped back to
// healthy. Providers implementing provider.HealthChecker are probed
// first, but the probe result never blocks recovery. It returns the
// number of recovered clients.
func (p *Pool) HealthCheck(ctx context.Context) int {
	now := p.now()
	recovered := 0
	for _, name := range p.Providers() {
		for _, c := range p.groups[name].clients {
			if c.Healthy() || now.Sub(c.LastHealthCheck()) < p.cfg.RecoveryWindow {
				continue
			}
			if hc, ok := c.provider.(provider.HealthChecker); ok {
				probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				if err := hc.HealthCheck(probeCtx); err != nil {
					p.logger.Debug("pool: health probe failed, recovering anyway",
						"provider", name,
						"slot", c.slot,
						"error", err,
					)
				}
				cancel()
			}
			c.markHealthy(now)
			recovered++
			p.logger.Info("pool: client recovered", "provider", name, "slot", c.slot)
		}
	}
	return recovered
}

// HealthCheckInterval returns the configured sweep interval.
func (p *Pool) HealthCheckInterval() time.Duration {
	return p.cfg.HealthCheckInterval
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
