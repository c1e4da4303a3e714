// Package planner turns one sales order into follow-up tasks: per
// environment it picks the responsible designer from the rotation, computes
// the four staged deadlines and hands the tasks to the task creator. The
// rotation only advances after all four tasks of an environment were
// created, so a failed environment is retried with the same designer on a
// later run.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ordersched/internal/calendar"
	"ordersched/internal/rotation"
	"ordersched/internal/slots"
	logx "ordersched/pkg/logx"
)

// Stage titles as they appear on the created tasks.
const (
	TitleCheck    = "Checagem de medida"
	TitleReview   = "Revisão do Projeto"
	TitleSend     = "Envio para o Cliente"
	TitleApproval = "Aprovação do Projeto Executivo"
)

// ErrNoEnvironments marks an order whose items carry no usable environment
// names. Such orders are zero work, not failures.
var ErrNoEnvironments = errors.New("planner: order has no environments")

// Order is the validated input shape for planning.
type Order struct {
	ID           string
	Code         string
	SaleDate     time.Time
	Environments []string
}

// Validate rejects malformed order payloads at the boundary.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" || strings.TrimSpace(o.Code) == "" {
		return errors.New("planner: order id and code are required")
	}
	if o.SaleDate.IsZero() {
		return fmt.Errorf("planner: order %s has no sale date", o.Code)
	}
	if len(o.Environments) == 0 {
		return fmt.Errorf("order %s: %w", o.Code, ErrNoEnvironments)
	}
	return nil
}

// Task is one planned follow-up task.
type Task struct {
	Title      string
	AssigneeID string
	Deadline   time.Time
	Alert      *time.Time
	Minutes    int // slot duration; 0 when the task has no time block
}

// Creator posts one task onto a sales order. Implemented by the API client.
type Creator interface {
	CreateTask(ctx context.Context, orderID string, t Task) error
}

// EnvironmentPlan is the outcome for one environment: either four created
// tasks and the designer who owns them, or the error that stopped it.
type EnvironmentPlan struct {
	Environment string
	Ordinal     int
	Designer    rotation.Designer
	Tasks       []Task
	Err         error
}

type Config struct {
	CheckMinDays int
	ReviewDays   int
	SendDays     int
	ApprovalDays int

	// UseSlots books a concrete appointment slot for the measurement
	// check instead of a bare end-of-day deadline.
	UseSlots bool

	// EnvDelay is the pause between environments (downstream rate limit).
	EnvDelay time.Duration
}

type Planner struct {
	rot    *rotation.Ledger
	cal    *calendar.Calendar
	slots  *slots.Scheduler
	create Creator
	policy calendar.CheckPolicy
	cfg    Config
	log    logx.Logger
	now    func() time.Time
}

func New(rot *rotation.Ledger, cal *calendar.Calendar, sl *slots.Scheduler, create Creator, cfg Config, log logx.Logger) *Planner {
	return &Planner{
		rot:    rot,
		cal:    cal,
		slots:  sl,
		create: create,
		policy: calendar.DefaultCheckPolicy,
		cfg:    cfg,
		log:    log.With(logx.String("comp", "planner")),
		now:    time.Now,
	}
}

// ProcessOrder plans and creates tasks for every environment of one order.
//
// Per-environment failures are contained: the plan for that environment
// carries the error, the rotation stays where it was, and the next
// environment proceeds. Only a rotation read failure (a configuration
// error, nothing holds the turn) aborts the order.
func (p *Planner) ProcessOrder(ctx context.Context, ord Order) ([]EnvironmentPlan, error) {
	if err := ord.Validate(); err != nil {
		return nil, err
	}

	log := p.log.With(logx.String("order", ord.Code))
	plans := make([]EnvironmentPlan, 0, len(ord.Environments))

	for i, env := range ord.Environments {
		if i > 0 && p.cfg.EnvDelay > 0 {
			select {
			case <-ctx.Done():
				return plans, ctx.Err()
			case <-time.After(p.cfg.EnvDelay):
			}
		}

		plan := p.planEnvironment(ctx, ord, env, i+1)
		plans = append(plans, plan)
		if plan.Err != nil {
			if errors.Is(plan.Err, rotation.ErrRotationExhausted) {
				return plans, fmt.Errorf("order %s environment %q: %w", ord.Code, env, plan.Err)
			}
			log.Warn("environment skipped",
				logx.String("environment", env),
				logx.Int("ordinal", plan.Ordinal),
				logx.Err(plan.Err))
			continue
		}
		log.Info("environment planned",
			logx.String("environment", env),
			logx.Int("ordinal", plan.Ordinal),
			logx.String("designer", plan.Designer.Name),
			logx.Time("check", plan.Tasks[0].Deadline),
			logx.Time("approval", plan.Tasks[3].Deadline))
	}
	return plans, nil
}

func (p *Planner) planEnvironment(ctx context.Context, ord Order, env string, ordinal int) EnvironmentPlan {
	plan := EnvironmentPlan{Environment: env, Ordinal: ordinal}

	designer, err := p.rot.Current(ctx, rotation.Primary)
	if err != nil {
		plan.Err = err
		return plan
	}
	plan.Designer = designer

	// Designers without the checkpoint capability hand the measurement
	// check to whoever follows them in the rotation; their other three
	// tasks are unaffected and the rotation itself is not disturbed.
	checkDesigner := designer
	if !designer.CanCheck {
		checkDesigner, err = p.rot.PeekAfter(ctx, rotation.Primary, designer.ID)
		if err != nil {
			plan.Err = fmt.Errorf("checkpoint designer after %s: %w", designer.Name, err)
			return plan
		}
	}

	tasks, err := p.buildTasks(ctx, ord, env, ordinal, designer, checkDesigner)
	if err != nil {
		plan.Err = err
		return plan
	}

	for _, t := range tasks {
		if err := p.create.CreateTask(ctx, ord.ID, t); err != nil {
			plan.Err = fmt.Errorf("create %q: %w", t.Title, err)
			return plan
		}
	}
	plan.Tasks = tasks

	// All four tasks exist; only now does the turn pass on.
	if _, err := p.rot.Advance(ctx, rotation.Primary, designer.ID); err != nil {
		plan.Err = fmt.Errorf("advance rotation past %s: %w", designer.Name, err)
		return plan
	}
	return plan
}

// buildTasks computes the four staged deadlines for one environment.
//
// The review/send/approval chain always starts from the rule-computed
// check date; a booked slot refines the checkpoint task itself (concrete
// start/end plus alert) without shifting the later stages.
func (p *Planner) buildTasks(ctx context.Context, ord Order, env string, ordinal int, designer, checkDesigner rotation.Designer) ([]Task, error) {
	checkDate := p.cal.CheckDeadline(ord.SaleDate, p.cfg.CheckMinDays, p.policy, p.now())

	check := Task{
		Title:      taskTitle(ordinal, env, TitleCheck),
		AssigneeID: checkDesigner.ID,
		Deadline:   checkDate,
	}
	if p.cfg.UseSlots && p.slots != nil {
		slot, err := p.slots.NextSlot(ctx, checkDesigner.ID, checkDate)
		if err != nil {
			return nil, fmt.Errorf("book check slot: %w", err)
		}
		alert := slot.Alert
		check.Deadline = slot.End
		check.Alert = &alert
		check.Minutes = 90
	}

	review := p.cal.AddBusinessDays(checkDate, p.cfg.ReviewDays)
	send := p.cal.AddBusinessDays(review, p.cfg.SendDays)
	approval := p.cal.AddBusinessDays(send, p.cfg.ApprovalDays)

	return []Task{
		check,
		{Title: taskTitle(ordinal, env, TitleReview), AssigneeID: designer.ID, Deadline: review},
		{Title: taskTitle(ordinal, env, TitleSend), AssigneeID: designer.ID, Deadline: send},
		{Title: taskTitle(ordinal, env, TitleApproval), AssigneeID: designer.ID, Deadline: approval},
	}, nil
}

func taskTitle(ordinal int, env, stage string) string {
	return fmt.Sprintf("%02d - %s %s", ordinal, env, stage)
}

// SetNow overrides the clock. Test hook.
func (p *Planner) SetNow(now func() time.Time) { p.now = now }

// SetPolicy overrides the check policy. Test hook.
func (p *Planner) SetPolicy(pol calendar.CheckPolicy) { p.policy = pol }
