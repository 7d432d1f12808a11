package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// HealthSweeper is the subset of pool.Pool needed by PoolHealthJob.
// Defined here to avoid a dependency on the pool package.
type HealthSweeper interface {
	// HealthCheck runs one recovery sweep and returns how many clients
	// were flipped back to healthy.
	HealthCheck(ctx context.Context) int
}

// PoolHealthJob periodically lets unhealthy pooled clients recover.
type PoolHealthJob struct {
	Pool     HealthSweeper
	Interval time.Duration // zero = 60s
	Logger   *slog.Logger
}

// Compile-time interface check.
var _ Job = (*PoolHealthJob)(nil)

// Name implements Job.
func (j *PoolHealthJob) Name() string { return "pool_health" }

// Schedule implements Job.
func (j *PoolHealthJob) Schedule() string {
	if j.Interval > 0 {
		return Every(j.Interval)
	}
	return Every(60 * time.Second)
}

// Run performs one recovery sweep.
func (j *PoolHealthJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: pool health cancelled: %w", ctx.Err())
	}
	if n := j.Pool.HealthCheck(ctx); n > 0 && j.Logger != nil {
		j.Logger.Info("cron: pooled clients recovered", "count", n)
	}
	return nil
}

// AuditPruner is the subset of an audit store needed by AuditRetentionJob.
type AuditPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AuditRetentionJob deletes audit entries older than MaxAge.
type AuditRetentionJob struct {
	Store        AuditPruner
	MaxAge       time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "@daily"

	// Now is injectable for testing. Defaults to time.Now.
	Now func() time.Time
}

// Compile-time interface check.
var _ Job = (*AuditRetentionJob)(nil)

// Name implements Job.
func (j *AuditRetentionJob) Name() string { return "audit_retention" }

// Schedule implements Job.
func (j *AuditRetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@daily"
}

// Run removes entries recorded before now minus MaxAge.
func (j *AuditRetentionJob) Run(ctx context.Context) error {
	if j.MaxAge <= 0 {
		return nil
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	pruned, err := j.Store.PruneBefore(ctx, now().Add(-j.MaxAge))
	if err != nil {
		return fmt.Errorf("cron: audit retention: %w", err)
	}
	if pruned > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned audit entries", "count", pruned)
	}
	return nil
}
