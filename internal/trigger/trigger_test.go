package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "ordersched/pkg/logx"
)

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC", Schedules: []string{"not a schedule"}}, nil, nil, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartRejectsBadTimezone(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Mars/Olympus", Schedules: []string{"0 11 * * *"}}, nil, nil, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	job := func(ctx context.Context, label string) error { return nil }
	s := New(Config{Timezone: "UTC", Schedules: []string{"0 11 * * *"}, TestSchedule: "59 23 * * *"}, job, nil, logx.Nop())

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Second start is a no-op, not a duplicate registration.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("re-start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Stop(stopCtx)
	s.Stop(stopCtx) // idempotent
}

func TestGateSkipsDisabledJobs(t *testing.T) {
	t.Parallel()
	var ran atomic.Int32
	job := func(ctx context.Context, label string) error {
		ran.Add(1)
		return nil
	}
	enabled := atomic.Bool{}
	s := New(Config{Timezone: "UTC", Schedules: []string{"0 11 * * *"}}, job, func() bool { return enabled.Load() }, logx.Nop())

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	s.fire("test")
	if got := ran.Load(); got != 0 {
		t.Fatalf("disabled gate still ran the job %d times", got)
	}

	enabled.Store(true)
	s.fire("test")
	if got := ran.Load(); got != 1 {
		t.Fatalf("enabled gate ran the job %d times, want 1", got)
	}
}
