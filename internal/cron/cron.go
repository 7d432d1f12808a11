// Package cron runs the periodic maintenance of the pipeline: pool health
// sweeps, audit retention and rate-limiter cleanup.
package cron

import (
	"context"
	"time"
)

// Job is one periodic task.
type Job interface {
	// Name is unique per scheduler and labels logs and metrics.
	Name() string

	// Schedule is a 5-field cron expression or a descriptor such as
	// "@daily" or "@every 1m0s".
	Schedule() string

	// Run performs one tick. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Every returns the "@every" descriptor for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}
