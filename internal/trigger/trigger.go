// Package trigger fires the pipeline on the configured cron schedules.
// Schedules are five-field cron expressions evaluated in one fixed-offset
// timezone; an enabled gate is consulted at fire time so jobs can be
// paused from config without a restart.
package trigger

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "ordersched/pkg/logx"
)

type Config struct {
	Timezone     string
	Schedules    []string
	TestSchedule string
}

// Job runs one pipeline pass. The label identifies the schedule that fired.
type Job func(ctx context.Context, label string) error

type Service struct {
	cfg    Config
	job    Job
	gate   func() bool
	log    logx.Logger
	parser cron.Parser

	mu     sync.Mutex
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

// New builds the trigger service. gate is consulted on every fire; a nil
// gate means always enabled.
func New(cfg Config, job Job, gate func() bool, log logx.Logger) *Service {
	if gate == nil {
		gate = func() bool { return true }
	}
	return &Service{
		cfg:  cfg,
		job:  job,
		gate: gate,
		log:  log.With(logx.String("comp", "trigger")),
		// Five-field specs only; descriptors like @daily are accepted too.
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc, err := time.LoadLocation(strings.TrimSpace(s.cfg.Timezone))
	if err != nil {
		return fmt.Errorf("trigger timezone: %w", err)
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	specs := append([]string(nil), s.cfg.Schedules...)
	if t := strings.TrimSpace(s.cfg.TestSchedule); t != "" {
		specs = append(specs, t)
		s.log.Warn("test schedule active", logx.String("spec", t))
	}

	for _, spec := range specs {
		spec := spec
		if _, err := c.AddFunc(spec, func() { s.fire(spec) }); err != nil {
			s.cancel()
			s.runCtx, s.cancel = nil, nil
			return fmt.Errorf("trigger schedule %q: %w", spec, err)
		}
	}

	c.Start()
	s.c = c
	s.log.Info("triggers started",
		logx.Int("schedules", len(specs)),
		logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.runCtx, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopped := c.Stop()
	if cancel != nil {
		cancel()
	}
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.log.Info("triggers stopped")
}

func (s *Service) fire(label string) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if !s.gate() {
		s.log.Info("job skipped (jobs disabled)", logx.String("schedule", label))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in scheduled job",
				logx.String("schedule", label),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	s.log.Info("job fired", logx.String("schedule", label))
	if err := s.job(ctx, label); err != nil {
		s.log.Error("job failed", logx.String("schedule", label), logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	s.log.Info("job finished", logx.String("schedule", label), logx.Duration("took", time.Since(start)))
}
