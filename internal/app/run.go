package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ordersched/internal/config"
	"ordersched/internal/planner"
	"ordersched/internal/pontta"
	"ordersched/internal/rotation"
	logx "ordersched/pkg/logx"
)

// taskCreator adapts the API client to the planner, binding the bearer
// token of one pipeline pass.
type taskCreator struct {
	client *pontta.Client
	token  string
}

func (c *taskCreator) CreateTask(ctx context.Context, orderID string, t planner.Task) error {
	pt := pontta.Task{
		Title:       t.Title,
		Responsible: t.AssigneeID,
		Deadline:    t.Deadline,
		Alert:       t.Alert,
		Type:        "OTHER",
	}
	if t.Minutes > 0 {
		m := strconv.Itoa(t.Minutes)
		pt.Time = &m
	}
	return c.client.CreateTask(ctx, c.token, orderID, pt)
}

// RunPass executes one full pipeline pass: authenticate, list the day's
// orders, and plan tasks for every order not yet processed.
//
// Per-order failures are logged and skipped; the order stays unrecorded and
// is retried on the next pass. An exhausted rotation aborts the pass, since
// every remaining order would fail the same way.
func (a *App) RunPass(ctx context.Context) error {
	cfg := a.cfgMgr.Get()
	if cfg == nil {
		return errors.New("no config loaded")
	}
	log := a.log.With(logx.String("comp", "pipeline"))
	started := time.Now()

	token, err := a.client.Authenticate(ctx)
	if err != nil {
		return err
	}

	start, end, err := a.queryWindow(cfg)
	if err != nil {
		return err
	}

	summaries, err := a.client.ListOrders(ctx, token, start, end)
	if err != nil {
		return err
	}
	log.Info("orders listed",
		logx.Int("count", len(summaries)),
		logx.Time("start", start),
		logx.Time("end", end))

	orderDelay, err := config.ParseDurationOrDefault("jobs.order_delay", cfg.Jobs.OrderDelay, 500*time.Millisecond)
	if err != nil {
		return err
	}
	envDelay, err := config.ParseDurationOrDefault("jobs.env_delay", cfg.Jobs.EnvDelay, 300*time.Millisecond)
	if err != nil {
		return err
	}

	pl := planner.New(a.rot, a.cal, a.slots, &taskCreator{client: a.client, token: token}, planner.Config{
		CheckMinDays: cfg.Tasks.CheckMinDays,
		ReviewDays:   cfg.Tasks.ReviewDays,
		SendDays:     cfg.Tasks.SendDays,
		ApprovalDays: cfg.Tasks.ApprovalDays,
		UseSlots:     cfg.Slots.Enabled,
		EnvDelay:     envDelay,
	}, a.log)

	var processed, skipped, failed int
	for i, sum := range summaries {
		if i > 0 && orderDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(orderDelay):
			}
		}

		done, err := a.processOrder(ctx, log, pl, token, sum)
		switch {
		case errors.Is(err, rotation.ErrRotationExhausted):
			return fmt.Errorf("pass aborted at order %s: %w", sum.Code, err)
		case err != nil:
			failed++
			log.Warn("order failed; will retry next pass", logx.String("order", sum.Code), logx.Err(err))
		case done:
			processed++
		default:
			skipped++
		}
	}

	log.Info("pass finished",
		logx.Int("processed", processed),
		logx.Int("skipped", skipped),
		logx.Int("failed", failed),
		logx.Duration("took", time.Since(started)))
	return nil
}

// processOrder handles one summary row. done=true means tasks were created
// (or the order had nothing to plan); false with nil error means it was
// already processed earlier.
func (a *App) processOrder(ctx context.Context, log logx.Logger, pl *planner.Planner, token string, sum pontta.OrderSummary) (bool, error) {
	exists, err := a.db.OrderExists(ctx, sum.Code)
	if err != nil {
		return false, err
	}
	if exists {
		log.Debug("order already processed", logx.String("order", sum.Code))
		return false, nil
	}

	details, err := a.client.OrderDetails(ctx, token, sum.Code)
	if err != nil {
		return false, err
	}
	if len(details) == 0 {
		return false, fmt.Errorf("order %s: no detail payload", sum.Code)
	}
	ord := details[0]

	envs := make([]string, 0, len(ord.Items))
	for _, it := range ord.Items {
		if name := strings.TrimSpace(it.Name); name != "" {
			envs = append(envs, name)
		}
	}
	if len(envs) == 0 {
		// Nothing to plan; record it so it is not refetched every pass.
		log.Info("order has no environments", logx.String("order", sum.Code))
		return true, a.db.RecordOrder(ctx, ord.ID, ord.Code)
	}

	plans, err := pl.ProcessOrder(ctx, planner.Order{
		ID:           ord.ID,
		Code:         ord.Code,
		SaleDate:     ord.SaleDate,
		Environments: envs,
	})
	if err != nil {
		return false, err
	}

	var envFailed int
	for _, p := range plans {
		if p.Err != nil {
			envFailed++
		}
	}
	if envFailed > 0 {
		// Partial orders stay unrecorded and retry whole next pass.
		return false, fmt.Errorf("order %s: %d of %d environments failed", ord.Code, envFailed, len(plans))
	}

	if err := a.db.RecordOrder(ctx, ord.ID, ord.Code); err != nil {
		// Tasks exist; a failed record only risks duplicate work later.
		log.Error("record order failed", logx.String("order", ord.Code), logx.Err(err))
	}
	return true, nil
}

// queryWindow is [today 00:00, today 23:59:59.999] in the jobs timezone,
// unless pontta.start/end pin an explicit RFC3339 range.
func (a *App) queryWindow(cfg *config.Config) (time.Time, time.Time, error) {
	if cfg.Pontta.Start != "" || cfg.Pontta.End != "" {
		start, err := time.Parse(time.RFC3339, cfg.Pontta.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("pontta.start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, cfg.Pontta.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("pontta.end: %w", err)
		}
		return start.UTC(), end.UTC(), nil
	}

	loc := a.cal.Location()
	now := time.Now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).UTC()
	return start, a.cal.EndOfDay(now), nil
}
