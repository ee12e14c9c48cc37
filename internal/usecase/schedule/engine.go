// Package schedule mirrors the remote schedules and owns their lifecycle.
//
// The engine never computes when a cron expression fires next. Every
// NextExecution comes from the remote authority; after a confirmed create
// or update the engine re-reads the remote list to pick it up.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ordito/internal/cronexpr"
	"ordito/internal/domain"
	"ordito/internal/usecase/eventbus"
)

// Engine is the client-side source of truth for schedules.
type Engine struct {
	gateway domain.ScheduleGateway
	bus     domain.EventBus
	logger  *slog.Logger
	nowFn   func() time.Time

	mu        sync.RWMutex
	schedules []domain.Schedule
}

// New creates an empty Engine. bus may be nil.
func New(gateway domain.ScheduleGateway, bus domain.EventBus, logger *slog.Logger) *Engine {
	return &Engine{gateway: gateway, bus: bus, logger: logger, nowFn: time.Now}
}

// Refresh replaces the mirror with the remote schedule list.
func (e *Engine) Refresh(ctx context.Context) error {
	if err := e.reload(ctx); err != nil {
		return err
	}
	eventbus.Emit(ctx, e.bus, domain.EventScheduleRefreshed, nil)
	return nil
}

func (e *Engine) reload(ctx context.Context) error {
	list, err := e.gateway.GetSchedules(ctx)
	if err != nil {
		return err
	}
	mirror := make([]domain.Schedule, len(list))
	for i, s := range list {
		mirror[i] = s.Clone()
	}
	e.mu.Lock()
	e.schedules = mirror
	e.mu.Unlock()
	return nil
}

// List returns copies of all schedules in mirror order.
func (e *Engine) List() []domain.Schedule {
	return e.filter(func(domain.Schedule) bool { return true })
}

// Get returns a copy of the schedule with the given ID.
func (e *Engine) Get(id string) (domain.Schedule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i := e.indexOf(id); i >= 0 {
		return e.schedules[i].Clone(), true
	}
	return domain.Schedule{}, false
}

// State returns the lifecycle state of a schedule.
func (e *Engine) State(id string) (domain.ScheduleState, bool) {
	s, ok := e.Get(id)
	if !ok {
		return "", false
	}
	return s.State(), true
}

// ByGroup returns every schedule targeting the group or one of its commands.
func (e *Engine) ByGroup(groupID string) []domain.Schedule {
	return e.filter(func(s domain.Schedule) bool {
		return s.Target != nil && s.Target.TargetGroupID() == groupID
	})
}

// ByCommand returns the schedules targeting one command.
func (e *Engine) ByCommand(groupID, commandID string) []domain.Schedule {
	want := domain.CommandTarget{GroupID: groupID, CommandID: commandID}
	return e.filter(func(s domain.Schedule) bool {
		ct, ok := s.Target.(domain.CommandTarget)
		return ok && ct == want
	})
}

// Infos describes every schedule against the groups known to lookup.
func (e *Engine) Infos(lookup domain.GroupLookup) []domain.ScheduleInfo {
	list := e.List()
	out := make([]domain.ScheduleInfo, len(list))
	for i, s := range list {
		out[i] = domain.DescribeSchedule(s, lookup)
	}
	return out
}

// Info describes a single schedule.
func (e *Engine) Info(id string, lookup domain.GroupLookup) (domain.ScheduleInfo, bool) {
	s, ok := e.Get(id)
	if !ok {
		return domain.ScheduleInfo{}, false
	}
	return domain.DescribeSchedule(s, lookup), true
}

// Validate asks the remote authority whether expr is satisfiable and for a
// preview of its next execution times. Expressions without six fields are
// rejected locally.
func (e *Engine) Validate(ctx context.Context, expr string) (domain.CronValidation, error) {
	if err := cronexpr.CheckShape(expr); err != nil {
		return domain.CronValidation{}, domain.NewSubSystemError("schedule", "ScheduleEngine.Validate", domain.ErrInvalidInput, err.Error())
	}
	return e.gateway.ValidateCronExpression(ctx, expr)
}

// Add creates a schedule. It starts Active.
func (e *Engine) Add(ctx context.Context, target domain.ScheduleTarget, pattern domain.SchedulePattern, maxExecutions *uint) (string, error) {
	const op = "ScheduleEngine.Add"

	spec, err := buildSpec(op, target, pattern, maxExecutions)
	if err != nil {
		return "", err
	}
	if err := e.checkExpression(ctx, op, spec.Expression); err != nil {
		return "", err
	}

	id, err := e.gateway.CreateSchedule(ctx, spec)
	if err != nil {
		return "", err
	}

	if err := e.reload(ctx); err != nil {
		e.logger.Warn("schedule created but reload failed", "schedule_id", id, "error", err)
		e.mu.Lock()
		if e.indexOf(id) < 0 {
			e.schedules = append(e.schedules, provisional(id, spec, e.nowFn()))
		}
		e.mu.Unlock()
	}

	eventbus.Emit(ctx, e.bus, domain.EventScheduleCreated, domain.ScheduleChanged{ScheduleID: id, IsActive: true})
	e.logger.Info("schedule created", "schedule_id", id, "expression", spec.Expression)
	return id, nil
}

// Update applies patch to a schedule. An ID that is not mirrored is a no-op.
func (e *Engine) Update(ctx context.Context, id string, patch domain.SchedulePatch) error {
	const op = "ScheduleEngine.Update"

	current, ok := e.Get(id)
	if !ok {
		e.logger.Debug("update for unknown schedule", "schedule_id", id)
		return nil
	}

	target, pattern, maxExec := current.Target, current.Pattern, current.MaxExecutions
	if patch.Target != nil {
		target = patch.Target
	}
	if patch.Pattern != nil {
		pattern = patch.Pattern
	}
	switch {
	case patch.ClearMax:
		maxExec = nil
	case patch.MaxExecutions != nil:
		maxExec = patch.MaxExecutions
	}

	spec, err := buildSpec(op, target, pattern, maxExec)
	if err != nil {
		return err
	}
	if err := e.checkExpression(ctx, op, spec.Expression); err != nil {
		return err
	}

	if err := e.gateway.UpdateSchedule(ctx, id, spec); err != nil {
		return err
	}

	if err := e.reload(ctx); err != nil {
		e.logger.Warn("schedule updated but reload failed", "schedule_id", id, "error", err)
		e.mu.Lock()
		if i := e.indexOf(id); i >= 0 {
			s := &e.schedules[i]
			s.Target = spec.Target
			s.Pattern = domain.CronPattern{Expression: spec.Expression}
			s.MaxExecutions = spec.MaxExecutions
		}
		e.mu.Unlock()
	}

	eventbus.Emit(ctx, e.bus, domain.EventScheduleUpdated, domain.ScheduleChanged{ScheduleID: id, IsActive: true})
	return nil
}

// Delete removes a schedule.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.gateway.DeleteSchedule(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	i := e.indexOf(id)
	if i >= 0 {
		e.schedules = append(e.schedules[:i:i], e.schedules[i+1:]...)
	}
	e.mu.Unlock()

	if i < 0 {
		e.logger.Debug("confirmed delete for unknown schedule", "schedule_id", id)
		return nil
	}
	eventbus.Emit(ctx, e.bus, domain.EventScheduleDeleted, domain.ScheduleChanged{ScheduleID: id})
	return nil
}

// Toggle flips a schedule between Active and Paused and returns the new
// IsActive. An Exhausted schedule is rejected with domain.ErrExhausted
// without contacting the gateway. An ID that is not mirrored is a no-op.
func (e *Engine) Toggle(ctx context.Context, id string) (bool, error) {
	const op = "ScheduleEngine.Toggle"

	current, ok := e.Get(id)
	if !ok {
		e.logger.Debug("toggle for unknown schedule", "schedule_id", id)
		return false, nil
	}
	if current.State() == domain.ScheduleExhausted {
		return current.IsActive, domain.NewSubSystemError("schedule", op, domain.ErrExhausted, id)
	}

	active, err := e.gateway.ToggleSchedule(ctx, id)
	if err != nil {
		return current.IsActive, err
	}

	e.mu.Lock()
	if i := e.indexOf(id); i >= 0 {
		e.schedules[i].IsActive = active
	}
	e.mu.Unlock()

	eventbus.Emit(ctx, e.bus, domain.EventScheduleToggled, domain.ScheduleChanged{ScheduleID: id, IsActive: active})
	return active, nil
}

// checkExpression runs the remote validator and turns a negative verdict
// into a validation error.
func (e *Engine) checkExpression(ctx context.Context, op, expr string) error {
	v, err := e.gateway.ValidateCronExpression(ctx, expr)
	if err != nil {
		return err
	}
	if !v.IsValid {
		detail := v.ErrorMessage
		if detail == "" {
			detail = "invalid cron expression"
		}
		return domain.NewSubSystemError("schedule", op, domain.ErrInvalidInput, detail)
	}
	return nil
}

func (e *Engine) filter(keep func(domain.Schedule) bool) []domain.Schedule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Schedule, 0, len(e.schedules))
	for _, s := range e.schedules {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// indexOf must be called with e.mu held.
func (e *Engine) indexOf(id string) int {
	for i := range e.schedules {
		if e.schedules[i].ID == id {
			return i
		}
	}
	return -1
}

// buildSpec validates the parts of a schedule that need no remote call. The
// expression is sent in normal form: comma lists sorted, full lists as "*".
func buildSpec(op string, target domain.ScheduleTarget, pattern domain.SchedulePattern, maxExecutions *uint) (domain.ScheduleSpec, error) {
	switch t := target.(type) {
	case domain.GroupTarget:
		if t.GroupID == "" {
			return domain.ScheduleSpec{}, domain.NewSubSystemError("schedule", op, domain.ErrInvalidInput, "group ID is required")
		}
	case domain.CommandTarget:
		if t.GroupID == "" || t.CommandID == "" {
			return domain.ScheduleSpec{}, domain.NewSubSystemError("schedule", op, domain.ErrInvalidInput, "group and command IDs are required")
		}
	default:
		return domain.ScheduleSpec{}, domain.NewSubSystemError("schedule", op, domain.ErrInvalidInput, "target is required")
	}

	cron, ok := pattern.(domain.CronPattern)
	if !ok {
		return domain.ScheduleSpec{}, domain.NewSubSystemError("schedule", op, domain.ErrUnsupportedPattern, "only cron patterns are accepted")
	}
	expr, err := cronexpr.Normalize(cron.Expression)
	if err != nil {
		return domain.ScheduleSpec{}, domain.NewSubSystemError("schedule", op, domain.ErrInvalidInput, err.Error())
	}
	if maxExecutions != nil && *maxExecutions == 0 {
		return domain.ScheduleSpec{}, domain.NewSubSystemError("schedule", op, domain.ErrInvalidInput, "max executions must be positive")
	}

	spec := domain.ScheduleSpec{Target: target, Expression: expr}
	if maxExecutions != nil {
		m := *maxExecutions
		spec.MaxExecutions = &m
	}
	return spec, nil
}

// provisional is the local stand-in for a confirmed schedule the engine
// could not re-read. NextExecution stays zero until the next Refresh.
func provisional(id string, spec domain.ScheduleSpec, now time.Time) domain.Schedule {
	return domain.Schedule{
		ID:            id,
		Target:        spec.Target,
		Pattern:       domain.CronPattern{Expression: spec.Expression},
		IsActive:      true,
		CreatedAt:     now,
		MaxExecutions: spec.MaxExecutions,
	}
}
