package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when an organization exceeds its limits.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds per-organization limits.
type RateLimitConfig struct {
	// RequestsPerMin bounds generate calls per organization. Default: 60.
	RequestsPerMin int `yaml:"requests_per_min"`

	// TokensPerHour bounds upstream token usage per organization.
	// Zero means unlimited.
	TokensPerHour int `yaml:"tokens_per_hour"`
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RequestsPerMin <= 0 {
		c.RequestsPerMin = 60
	}
	if c.TokensPerHour < 0 {
		c.TokensPerHour = 0
	}
	return c
}

// RateLimiter applies sliding-window limits keyed by organization.
// Safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	config RateLimitConfig
	orgs   map[string]*orgWindows
	now    func() time.Time
}

type orgWindows struct {
	requests window
	tokens   window
}

// window is a sliding window of weighted events in chronological order.
type window struct {
	span   time.Duration
	events []event
	total  int
}

type event struct {
	at time.Time
	n  int
}

// NewRateLimiter creates a limiter. Zero-valued fields use defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config: cfg.withDefaults(),
		orgs:   make(map[string]*orgWindows),
		now:    time.Now,
	}
}

// Config returns the effective limits.
func (rl *RateLimiter) Config() RateLimitConfig { return rl.config }

// Allow records one request for org, or returns ErrRateLimited when the
// request or token budget is spent.
func (rl *RateLimiter) Allow(org string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.windows(org)
	w.requests.evict(now)
	w.tokens.evict(now)

	if w.requests.total >= rl.config.RequestsPerMin {
		return ErrRateLimited
	}
	if rl.config.TokensPerHour > 0 && w.tokens.total >= rl.config.TokensPerHour {
		return ErrRateLimited
	}
	w.requests.add(now, 1)
	return nil
}

// RecordTokens charges n tokens of upstream usage to org. Usage is only
// known after a call, so it is recorded unconditionally and enforced by
// the next Allow.
func (rl *RateLimiter) RecordTokens(org string, n int) {
	if n <= 0 || rl.config.TokensPerHour == 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.windows(org)
	w.tokens.evict(now)
	w.tokens.add(now, n)
}

// Forget drops every organization without events in its windows.
func (rl *RateLimiter) Forget() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for org, w := range rl.orgs {
		w.requests.evict(now)
		w.tokens.evict(now)
		if w.requests.total == 0 && w.tokens.total == 0 {
			delete(rl.orgs, org)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) windows(org string) *orgWindows {
	w, ok := rl.orgs[org]
	if !ok {
		w = &orgWindows{
			requests: window{span: time.Minute},
			tokens:   window{span: time.Hour},
		}
		rl.orgs[org] = w
	}
	return w
}

func (w *window) add(at time.Time, n int) {
	w.events = append(w.events, event{at: at, n: n})
	w.total += n
}

// evict drops events that fell out of the window.
func (w *window) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.events) && w.events[i].at.Before(cutoff) {
		w.total -= w.events[i].n
		i++
	}
	if i > 0 {
		w.events = w.events[i:]
	}
}
