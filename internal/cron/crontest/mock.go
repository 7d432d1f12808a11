// Package crontest provides test doubles for the collaborators of cron jobs.
package crontest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Inovico-app/inovy-sub002/internal/cron"
)

var (
	_ cron.HealthSweeper = (*MockSweeper)(nil)
	_ cron.AuditPruner   = (*MockPruner)(nil)
)

// MockSweeper records pool health sweeps and reports a fixed recovery count.
type MockSweeper struct {
	Recovered int
	Calls     atomic.Int32
}

// HealthCheck implements cron.HealthSweeper.
func (m *MockSweeper) HealthCheck(_ context.Context) int {
	m.Calls.Add(1)
	return m.Recovered
}

// MockPruner records audit prunes. PruneFunc, when set, decides the result.
type MockPruner struct {
	PruneFunc func(ctx context.Context, cutoff time.Time) (int, error)
	Calls     atomic.Int32
}

// PruneBefore implements cron.AuditPruner.
func (m *MockPruner) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.Calls.Add(1)
	if m.PruneFunc != nil {
		return m.PruneFunc(ctx, cutoff)
	}
	return 0, nil
}
