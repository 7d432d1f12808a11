package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is a schedule the Scheduler accepts.
func ValidateSchedule(expr string) error {
	_, err := scheduleParser.Parse(expr)
	return err
}

// Run outcomes recorded by the scheduler metrics.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeSkipped = "skipped"
)

type entry struct {
	job  Job
	busy sync.Mutex
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with itself: a tick that finds the previous run still busy is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	byName  map[string]*entry
	logger  *slog.Logger
	cancel  context.CancelFunc
	now     func() time.Time

	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]*entry),
		logger: logger,
		now:    time.Now,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inovy_cron_runs_total",
			Help: "Background job ticks by job and outcome.",
		}, []string{"job", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inovy_cron_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
}

// RegisterJob adds j. Names must be unique and the schedule must parse.
func (s *Scheduler) RegisterJob(j Job) error {
	if err := ValidateSchedule(j.Schedule()); err != nil {
		return fmt.Errorf("cron: job %q: invalid schedule %q: %w", j.Name(), j.Schedule(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byName[j.Name()]; dup {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	e := &entry{job: j}
	s.byName[j.Name()] = e
	s.entries = append(s.entries, e)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	return names
}

// Start begins executing registered jobs. Calling Start twice is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("cron: scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithParser(scheduleParser))
	for _, e := range s.entries {
		if _, err := c.AddFunc(e.job.Schedule(), func() { s.tick(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("cron: job %q: %w", e.job.Name(), err)
		}
	}

	s.cron, s.cancel = c, cancel
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

// RunNow executes the named job once on the caller's goroutine, subject to
// the same no-overlap rule as scheduled ticks.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: unknown job %q", name)
	}
	s.tick(ctx, e)
	return nil
}

func (s *Scheduler) tick(ctx context.Context, e *entry) {
	name := e.job.Name()
	if !e.busy.TryLock() {
		s.runs.WithLabelValues(name, outcomeSkipped).Inc()
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		return
	}
	defer e.busy.Unlock()

	start := s.now()
	if err := e.job.Run(ctx); err != nil {
		s.runs.WithLabelValues(name, outcomeError).Inc()
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return
	}
	s.runs.WithLabelValues(name, outcomeOK).Inc()
	s.lastSuccess.WithLabelValues(name).Set(float64(s.now().Unix()))
	s.logger.Debug("cron: job completed", "job", name, "elapsed", s.now().Sub(start))
}

// Collector exports per-job run counters and last-success timestamps.
func (s *Scheduler) Collector() prometheus.Collector {
	return collectors{s.runs, s.lastSuccess}
}

type collectors []prometheus.Collector

func (cs collectors) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range cs {
		c.Describe(ch)
	}
}

func (cs collectors) Collect(ch chan<- prometheus.Metric) {
	for _, c := range cs {
		c.Collect(ch)
	}
}

// Stop cancels running jobs and waits for them to return, or for ctx to
// expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for running jobs: %w", ctx.Err())
	}
}
