// Package app assembles the daemon: config, logging, storage, the rotation
// and slot ledgers, the API client and the cron triggers, plus the pipeline
// pass that ties them together.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ordersched/internal/calendar"
	"ordersched/internal/config"
	"ordersched/internal/pontta"
	"ordersched/internal/rotation"
	"ordersched/internal/slots"
	"ordersched/internal/storage"
	"ordersched/internal/trigger"
	logx "ordersched/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	db     *storage.DB
	cal    *calendar.Calendar
	rot    *rotation.Ledger
	slots  *slots.Scheduler
	client *pontta.Client
	trig   *trigger.Service

	wg        sync.WaitGroup
	stopWatch context.CancelFunc
}

// New loads the config, wires every component and prepares (but does not
// start) the triggers.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgMgr: mgr, logSvc: logSvc, log: log}
	if err := a.wire(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func loggingConfig(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
	}
	lc.File.Enabled = cfg.Logging.File.Enabled
	lc.File.Path = cfg.Logging.File.Path
	return lc
}

func (a *App) wire(cfg *config.Config) error {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	db, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: busy,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.SyncRoster(ctx, rosterEntries(cfg)); err != nil {
		return err
	}

	a.rot = rotation.NewLedger(db, a.log)
	if err := a.rot.Bootstrap(ctx, rotation.Primary, ""); err != nil {
		return err
	}
	if err := a.rot.Bootstrap(ctx, rotation.Secondary, cfg.Rotation.SecondaryInitial); err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Jobs.Timezone)
	if err != nil {
		return fmt.Errorf("jobs.timezone: %w", err)
	}
	a.cal = calendar.New(loc)
	a.slots = slots.New(db, a.cal, a.log)

	timeout, err := config.ParseDurationOrDefault("pontta.timeout", cfg.Pontta.Timeout, 15*time.Second)
	if err != nil {
		return err
	}
	client, err := pontta.New(pontta.Config{
		BaseURL:      cfg.Pontta.BaseURL,
		Email:        cfg.Pontta.Email,
		Password:     cfg.Pontta.Password,
		BusinessUnit: cfg.Pontta.BusinessUnit,
		Timeout:      timeout,
		Retries:      cfg.Pontta.Retries,
		RatePerSec:   cfg.Pontta.RatePerSec,
	}, a.log)
	if err != nil {
		return err
	}
	a.client = client

	a.trig = trigger.New(trigger.Config{
		Timezone:     cfg.Jobs.Timezone,
		Schedules:    cfg.Jobs.Schedules,
		TestSchedule: cfg.Jobs.TestSchedule,
	}, a.runJob, a.jobsEnabled, a.log)

	return nil
}

func rosterEntries(cfg *config.Config) []storage.RosterEntry {
	out := make([]storage.RosterEntry, 0, len(cfg.Roster))
	for _, d := range cfg.Roster {
		out = append(out, storage.RosterEntry{
			ID:        d.ID,
			Name:      d.Name,
			CanCheck:  d.CanCheck == nil || *d.CanCheck,
			Secondary: d.Secondary,
		})
	}
	return out
}

// jobsEnabled re-reads the config on every trigger fire, so flipping
// jobs.enabled in the file pauses the pipeline without a restart.
func (a *App) jobsEnabled() bool {
	cfg := a.cfgMgr.Get()
	return cfg == nil || cfg.Jobs.Enabled == nil || *cfg.Jobs.Enabled
}

func (a *App) runJob(ctx context.Context, label string) error {
	return a.RunPass(ctx)
}

// Start launches the config watcher and the cron triggers.
func (a *App) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel

	updates := a.cfgMgr.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(watchCtx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				// Logging is the only hot-reloadable section; storage,
				// roster and schedules need a restart.
				a.logSvc.Apply(loggingConfig(cfg))
				a.log.Info("logging config applied")
			}
		}
	}()

	if err := a.trig.Start(ctx); err != nil {
		cancel()
		return err
	}
	a.log.Info("started")
	return nil
}

// Stop winds everything down. Safe to call after a failed Start.
func (a *App) Stop(ctx context.Context) {
	if a.trig != nil {
		a.trig.Stop(ctx)
	}
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.wg.Wait()
	if a.db != nil {
		_ = a.db.Close()
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
}
