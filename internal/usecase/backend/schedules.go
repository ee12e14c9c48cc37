package backend

import (
	"context"
	"fmt"
	"slices"
	"time"

	"ordito/internal/domain"
	"ordito/internal/infra/tracer"
	"ordito/internal/usecase/scheduling"
)

// CreateSchedule validates spec, computes the first execution and starts
// firing the new schedule.
func (s *Service) CreateSchedule(ctx context.Context, spec domain.ScheduleSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next, err := s.checkSpec("create_schedule", spec, now)
	if err != nil {
		return "", err
	}

	sch := domain.Schedule{
		ID:            s.newID(),
		Target:        spec.Target,
		Pattern:       domain.CronPattern{Expression: spec.Expression},
		IsActive:      true,
		CreatedAt:     now,
		NextExecution: next,
		MaxExecutions: copyUint(spec.MaxExecutions),
	}
	if err := s.store.SaveSchedule(ctx, sch); err != nil {
		return "", s.storageError("create_schedule", err)
	}
	if err := s.register(sch); err != nil {
		s.logger.Warn("failed to schedule", "schedule_id", sch.ID, "error", err)
	}
	s.schedules = append(s.schedules, sch)

	s.logger.Info("schedule created", "schedule_id", sch.ID, "expression", spec.Expression)
	return sch.ID, nil
}

// GetSchedules returns every schedule in creation order. Active schedules
// report the next run planned by the scheduler.
func (s *Service) GetSchedules(ctx context.Context) ([]domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, len(s.schedules))
	for i, sch := range s.schedules {
		sch = sch.Clone()
		if sch.IsActive {
			if next, ok := s.scheduler.NextRun(sch.ID); ok {
				sch.NextExecution = next
			}
		}
		out[i] = sch
	}
	return out, nil
}

// UpdateSchedule replaces target, expression and limit of a schedule and
// re-arms it: the count restarts at zero and the schedule becomes active.
func (s *Service) UpdateSchedule(ctx context.Context, id string, spec domain.ScheduleSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.scheduleIndex(id)
	if i < 0 {
		return reject("update_schedule", "Schedule not found")
	}
	now := s.now()
	next, err := s.checkSpec("update_schedule", spec, now)
	if err != nil {
		return err
	}

	sch := s.schedules[i].Clone()
	sch.Target = spec.Target
	sch.Pattern = domain.CronPattern{Expression: spec.Expression}
	sch.MaxExecutions = copyUint(spec.MaxExecutions)
	sch.ExecutionCount = 0
	sch.IsActive = true
	sch.NextExecution = next
	if err := s.store.SaveSchedule(ctx, sch); err != nil {
		return s.storageError("update_schedule", err)
	}
	if err := s.register(sch); err != nil {
		s.logger.Warn("failed to reschedule", "schedule_id", id, "error", err)
	}
	s.schedules[i] = sch

	s.logger.Info("schedule updated", "schedule_id", id, "expression", spec.Expression)
	return nil
}

// DeleteSchedule stops and removes a schedule.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.scheduleIndex(id)
	if i < 0 {
		return reject("delete_schedule", "Schedule not found")
	}
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return s.storageError("delete_schedule", err)
	}
	s.scheduler.Remove(id)
	s.schedules = slices.Delete(s.schedules, i, i+1)

	s.logger.Info("schedule deleted", "schedule_id", id)
	return nil
}

// ToggleSchedule flips the active flag and returns the new value.
// An exhausted schedule cannot be activated.
func (s *Service) ToggleSchedule(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.scheduleIndex(id)
	if i < 0 {
		return false, reject("toggle_schedule", "Schedule not found")
	}
	sch := s.schedules[i].Clone()
	if !sch.IsActive && sch.Exhausted() {
		return false, reject("toggle_schedule", "Schedule has reached its maximum number of executions")
	}

	sch.IsActive = !sch.IsActive
	if sch.IsActive {
		if next, err := scheduling.NextAfter(sch.Expression(), s.now()); err == nil {
			sch.NextExecution = next
		}
	}
	if err := s.store.SaveSchedule(ctx, sch); err != nil {
		return false, s.storageError("toggle_schedule", err)
	}
	if sch.IsActive {
		if err := s.register(sch); err != nil {
			s.logger.Warn("failed to schedule", "schedule_id", id, "error", err)
		}
	} else {
		s.scheduler.Remove(id)
	}
	s.schedules[i] = sch

	s.logger.Info("schedule toggled", "schedule_id", id, "is_active", sch.IsActive)
	return sch.IsActive, nil
}

// ValidateCronExpression reports whether expr parses and previews its next
// fire times. An invalid expression is a verdict, not an error.
func (s *Service) ValidateCronExpression(ctx context.Context, expr string) (domain.CronValidation, error) {
	times, err := scheduling.Preview(expr, s.now(), PreviewCount)
	if err != nil {
		return domain.CronValidation{
			IsValid:        false,
			ErrorMessage:   err.Error(),
			NextExecutions: []time.Time{},
		}, nil
	}
	return domain.CronValidation{IsValid: true, NextExecutions: times}, nil
}

// Fire runs schedule id once, the way the scheduler does when it is due.
// A successful run counts toward the limit; reaching the limit deactivates
// the schedule. Paused and exhausted schedules are skipped.
func (s *Service) Fire(ctx context.Context, id string) (err error) {
	s.mu.Lock()
	i := s.scheduleIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.NewSubSystemError("schedule", "Service.Fire", domain.ErrNotFound, id)
	}
	sch := s.schedules[i].Clone()
	if !sch.IsActive || sch.Exhausted() {
		s.mu.Unlock()
		s.logger.Debug("schedule not active, skipping", "schedule_id", id)
		return nil
	}
	if s.firing[id] {
		s.mu.Unlock()
		s.logger.Debug("schedule still running, skipping", "schedule_id", id)
		return nil
	}
	s.firing[id] = true
	defer func() {
		s.mu.Lock()
		delete(s.firing, id)
		s.mu.Unlock()
	}()
	var group domain.CommandGroup
	gi := s.groupIndex(sch.Target.TargetGroupID())
	if gi >= 0 {
		group = s.groups[gi].Clone()
	}
	s.mu.Unlock()

	ctx, span := tracer.StartFiring(ctx, id, sch.Target.TargetGroupID())
	defer func() { tracer.End(span, err) }()

	if gi < 0 {
		s.logger.Warn("group not found for schedule", "schedule_id", id, "group_id", sch.Target.TargetGroupID())
		return nil
	}

	var (
		label     string
		entries   []domain.ExecutionEntry
		succeeded bool
		runErr    error
	)
	switch t := sch.Target.(type) {
	case domain.GroupTarget:
		label = group.Title
		entries = s.runGroup(ctx, group)
		succeeded = true
	case domain.CommandTarget:
		cmd, _, ok := group.FindCommand(t.CommandID)
		if !ok {
			s.logger.Warn("command not found for schedule", "schedule_id", id, "command_id", t.CommandID)
			return nil
		}
		label = cmd.Label
		out, err := s.runCommand(ctx, cmd)
		if err != nil {
			entries = []domain.ExecutionEntry{domain.FailureEntry(label, err.Error())}
			runErr = err
		} else {
			entries = []domain.ExecutionEntry{domain.SuccessEntry(label, out)}
			succeeded = true
		}
	}

	sch, ok := s.recordFiring(ctx, id, succeeded)
	if !ok {
		return runErr
	}

	tracer.ExecutionCount(span, sch.ExecutionCount)
	summary := domain.Summarize(entries)
	s.logger.Info("schedule fired", "schedule_id", id, "label", label,
		"summary", summary, "execution_count", sch.ExecutionCount, "is_active", sch.IsActive)
	s.emit(ctx, domain.EventScheduleFired, domain.ScheduleFired{
		ScheduleID:     id,
		Label:          label,
		Summary:        summary,
		ExecutionCount: sch.ExecutionCount,
		IsActive:       sch.IsActive,
	})

	return runErr
}

// recordFiring applies the outcome of a firing. It reports false, counting
// nothing, when the schedule was deleted, paused or exhausted while running.
func (s *Service) recordFiring(ctx context.Context, id string, succeeded bool) (domain.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.scheduleIndex(id)
	if i < 0 {
		s.logger.Debug("schedule deleted while firing", "schedule_id", id)
		return domain.Schedule{}, false
	}
	sch := s.schedules[i].Clone()
	if !sch.IsActive || sch.Exhausted() {
		s.logger.Debug("schedule paused or exhausted while firing", "schedule_id", id)
		return domain.Schedule{}, false
	}
	now := s.now()
	if succeeded {
		sch.ExecutionCount++
		sch.LastExecution = &now
	}
	if sch.Exhausted() {
		sch.IsActive = false
		s.scheduler.Remove(id)
		s.logger.Info("schedule completed", "schedule_id", id, "execution_count", sch.ExecutionCount)
	} else if next, err := scheduling.NextAfter(sch.Expression(), now); err == nil {
		sch.NextExecution = next
	}

	if err := s.store.SaveSchedule(ctx, sch); err != nil {
		s.logger.Error("failed to persist firing", "schedule_id", id, "error", err)
	}
	s.schedules[i] = sch
	return sch.Clone(), true
}

// checkSpec validates a create/update payload against the current groups
// and returns the first execution time. Must be called with s.mu held.
func (s *Service) checkSpec(method string, spec domain.ScheduleSpec, now time.Time) (time.Time, error) {
	if spec.Target == nil {
		return time.Time{}, reject(method, "Schedule target is required")
	}
	if spec.MaxExecutions != nil && *spec.MaxExecutions == 0 {
		return time.Time{}, reject(method, "Max executions must be greater than zero")
	}
	next, err := scheduling.NextAfter(spec.Expression, now)
	if err != nil {
		return time.Time{}, reject(method, fmt.Sprintf("Invalid cron expression '%s': %v", spec.Expression, err))
	}

	groupID := spec.Target.TargetGroupID()
	gi := s.groupIndex(groupID)
	if gi < 0 {
		return time.Time{}, reject(method, fmt.Sprintf("Group with ID '%s' not found", groupID))
	}
	if commandID := domain.TargetCommandID(spec.Target); commandID != "" {
		g := s.groups[gi]
		if _, _, ok := g.FindCommand(commandID); !ok {
			return time.Time{}, reject(method,
				fmt.Sprintf("Command with ID '%s' not found in group '%s'", commandID, g.Title))
		}
	}
	return next, nil
}

// register schedules sch for firing, replacing any earlier registration.
func (s *Service) register(sch domain.Schedule) error {
	id := sch.ID
	return s.scheduler.Add(id, sch.Expression(), func(ctx context.Context) error {
		return s.Fire(ctx, id)
	})
}

func copyUint(p *uint) *uint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
