package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/provider"
)

// PooledClient wraps one upstream client handle. Its health and load
// fields are mutated only by the owning Pool; callers get read access.
type PooledClient struct {
	name     provider.Name
	slot     int
	provider provider.Provider

	healthy   atomic.Bool
	lastCheck atomic.Int64 // unix nanoseconds
	active    atomic.Int64
}

func newPooledClient(name provider.Name, slot int, p provider.Provider, now time.Time) *PooledClient {
	c := &PooledClient{name: name, slot: slot, provider: p}
	c.healthy.Store(true)
	c.lastCheck.Store(now.UnixNano())
	return c
}

// Name returns the provider this client belongs to.
func (c *PooledClient) Name() provider.Name { return c.name }

// Slot returns the client's position in its provider's pool.
func (c *PooledClient) Slot() int { return c.slot }

// Provider returns the wrapped upstream client.
func (c *PooledClient) Provider() provider.Provider { return c.provider }

// Healthy reports whether the client is currently considered healthy.
func (c *PooledClient) Healthy() bool { return c.healthy.Load() }

// ActiveRequests returns the number of in-flight calls on this client.
func (c *PooledClient) ActiveRequests() int64 { return c.active.Load() }

// LastHealthCheck returns when the client's health last changed or was checked.
func (c *PooledClient) LastHealthCheck() time.Time {
	return time.Unix(0, c.lastCheck.Load())
}

// acquire increments the in-flight counter and returns a release func
// that decrements it exactly once no matter how often it is called.
func (c *PooledClient) acquire() (release func()) {
	c.active.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { c.active.Add(-1) })
	}
}

func (c *PooledClient) markUnhealthy(now time.Time) bool {
	c.lastCheck.Store(now.UnixNano())
	return c.healthy.Swap(false)
}

func (c *PooledClient) markHealthy(now time.Time) {
	c.lastCheck.Store(now.UnixNano())
	c.healthy.Store(true)
}
