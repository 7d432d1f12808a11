package cron

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type funcJob struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

func (j *funcJob) Name() string     { return j.name }
func (j *funcJob) Schedule() string { return j.schedule }
func (j *funcJob) Run(ctx context.Context) error {
	if j.run == nil {
		return nil
	}
	return j.run(ctx)
}

func TestScheduler_RegisterJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jobs    []*funcJob
		wantErr string
	}{
		{"descriptors", []*funcJob{{name: "a", schedule: Every(time.Minute)}, {name: "b", schedule: "@daily"}}, ""},
		{"five fields", []*funcJob{{name: "a", schedule: "*/5 * * * *"}}, ""},
		{"duplicate", []*funcJob{{name: "a", schedule: "@hourly"}, {name: "a", schedule: "@daily"}}, "duplicate"},
		{"invalid", []*funcJob{{name: "bad", schedule: "invalid"}}, "invalid schedule"},
		{"six fields", []*funcJob{{name: "bad", schedule: "0 * * * * *"}}, "invalid schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewScheduler(nil)
			var err error
			for _, j := range tt.jobs {
				if err = s.RegisterJob(j); err != nil {
					break
				}
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("RegisterJob: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_Jobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	_ = s.RegisterJob(&funcJob{name: "pool_health", schedule: Every(time.Minute)})
	_ = s.RegisterJob(&funcJob{name: "audit_retention", schedule: "@daily"})

	got := s.Jobs()
	if len(got) != 2 || got[0] != "pool_health" || got[1] != "audit_retention" {
		t.Errorf("Jobs() = %v", got)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	_ = s.RegisterJob(&funcJob{name: "noop", schedule: "* * * * *"})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	if err := NewScheduler(nil).Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	fail := true
	_ = s.RegisterJob(&funcJob{name: "flaky", schedule: "@hourly", run: func(context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}})

	if err := s.RunNow(context.Background(), "flaky"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	fail = false
	if err := s.RunNow(context.Background(), "flaky"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	if got := testutil.ToFloat64(s.runs.WithLabelValues("flaky", outcomeError)); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.runs.WithLabelValues("flaky", outcomeOK)); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.lastSuccess.WithLabelValues("flaky")); got <= 0 {
		t.Errorf("last success = %v, want a timestamp", got)
	}

	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("RunNow on unknown job should fail")
	}
}

func TestScheduler_SkipsOverlappingTick(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	s := NewScheduler(nil)
	_ = s.RegisterJob(&funcJob{name: "slow", schedule: "@hourly", run: func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return nil
	}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.RunNow(context.Background(), "slow")
	}()
	<-started

	_ = s.RunNow(context.Background(), "slow")
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if got := testutil.ToFloat64(s.runs.WithLabelValues("slow", outcomeSkipped)); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
}

func TestScheduler_Collector(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	_ = s.RegisterJob(&funcJob{name: "noop", schedule: "@hourly"})
	_ = s.RunNow(context.Background(), "noop")

	if n := testutil.CollectAndCount(s.Collector()); n != 2 {
		t.Errorf("collected %d series, want 2", n)
	}
}

func TestScheduler_StopHonoursDeadline(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if err := s.RegisterJob(&funcJob{name: "stuck", schedule: "@every 1s", run: func(context.Context) error {
		time.Sleep(2 * time.Second)
		return nil
	}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop = %v, want deadline exceeded", err)
	}
}
