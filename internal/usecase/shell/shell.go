// Package shell wires the client-side stores into one facade and applies
// the cross-store rules: what happens to schedules when their group or
// command is deleted, and how remote notifications refresh the mirrors.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ordito/internal/domain"
	"ordito/internal/usecase/entity"
	"ordito/internal/usecase/ledger"
	"ordito/internal/usecase/schedule"
	"ordito/internal/usecase/search"
)

// OrphanPolicy decides the fate of schedules whose target was deleted.
type OrphanPolicy string

const (
	// OrphanCascade deletes the dependent schedules after a confirmed delete.
	OrphanCascade OrphanPolicy = "cascade"
	// OrphanKeep leaves them for the remote authority; Orphans reports them.
	OrphanKeep OrphanPolicy = "keep"
)

// ParseOrphanPolicy parses a policy name. Empty means OrphanCascade.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch OrphanPolicy(s) {
	case "", OrphanCascade:
		return OrphanCascade, nil
	case OrphanKeep:
		return OrphanKeep, nil
	default:
		return "", fmt.Errorf("orphan policy %q: %w", s, domain.ErrInvalidInput)
	}
}

// Shell owns the stores of one client session.
type Shell struct {
	Entities  *entity.Store
	Schedules *schedule.Engine
	Ledger    *ledger.Ledger
	Executor  *ledger.Executor
	Search    *search.Index

	policy OrphanPolicy
	logger *slog.Logger
	unsub  []func()
}

// New builds a Shell on top of gateway. When bus is non-nil the shell
// refreshes its schedules whenever a schedule fires.
func New(gateway domain.RemoteGateway, bus domain.EventBus, policy OrphanPolicy, logger *slog.Logger) *Shell {
	entities := entity.New(gateway, bus, logger)
	led := ledger.New(bus, logger)
	s := &Shell{
		Entities:  entities,
		Schedules: schedule.New(gateway, bus, logger),
		Ledger:    led,
		Executor:  ledger.NewExecutor(gateway, entities, led, logger),
		Search:    search.NewIndex(),
		policy:    policy,
		logger:    logger,
	}
	if bus != nil {
		s.unsub = append(s.unsub, bus.Subscribe(domain.EventScheduleFired, s.HandleRemoteEvent))
	}
	return s
}

// Policy returns the orphan policy in effect.
func (s *Shell) Policy() OrphanPolicy { return s.policy }

// Load refreshes groups and schedules from the remote authority.
func (s *Shell) Load(ctx context.Context) error {
	return errors.Join(s.Entities.Refresh(ctx), s.Schedules.Refresh(ctx))
}

// DeleteGroup deletes a group, then applies the orphan policy to the
// schedules that targeted it or its commands.
func (s *Shell) DeleteGroup(ctx context.Context, groupID string) error {
	if err := s.Entities.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	return s.cascade(ctx, s.Schedules.ByGroup(groupID))
}

// DeleteCommand deletes a command, then applies the orphan policy to the
// schedules that targeted it.
func (s *Shell) DeleteCommand(ctx context.Context, groupID, commandID string) error {
	if err := s.Entities.DeleteCommand(ctx, groupID, commandID); err != nil {
		return err
	}
	return s.cascade(ctx, s.Schedules.ByCommand(groupID, commandID))
}

func (s *Shell) cascade(ctx context.Context, dependents []domain.Schedule) error {
	if s.policy != OrphanCascade || len(dependents) == 0 {
		return nil
	}
	var errs []error
	for _, sch := range dependents {
		if err := s.Schedules.Delete(ctx, sch.ID); err != nil {
			s.logger.Warn("cascade delete failed", "schedule_id", sch.ID, "error", err)
			errs = append(errs, fmt.Errorf("delete schedule %s: %w", sch.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ImportData imports jsonText and reloads schedules, which the import may have added.
func (s *Shell) ImportData(ctx context.Context, jsonText string) (string, error) {
	msg, err := s.Entities.ImportData(ctx, jsonText)
	if err != nil {
		return msg, err
	}
	if err := s.Schedules.Refresh(ctx); err != nil {
		return msg, domain.WrapOp("Shell.ImportData: refresh schedules", err)
	}
	return msg, nil
}

// ScheduleInfos describes every schedule against the mirrored groups.
func (s *Shell) ScheduleInfos() []domain.ScheduleInfo {
	return s.Schedules.Infos(s.Entities)
}

// Orphans lists the schedules whose group or command is no longer mirrored.
func (s *Shell) Orphans() []domain.ScheduleInfo {
	var out []domain.ScheduleInfo
	for _, info := range s.ScheduleInfos() {
		if info.Orphaned {
			out = append(out, info)
		}
	}
	return out
}

// View is the filtered group list plus its stats.
type View struct {
	Groups []domain.CommandGroup
	Stats  search.Stats
}

// View applies the current search query to the mirrored groups.
func (s *Shell) View() View {
	groups := s.Entities.Groups()
	return View{Groups: s.Search.Filter(groups), Stats: s.Search.Stats(groups)}
}

// HandleRemoteEvent reacts to notifications from the remote authority.
// Firing changes counts and next execution times, so schedules are re-read.
func (s *Shell) HandleRemoteEvent(ctx context.Context, event domain.Event) {
	switch event.Type {
	case domain.EventScheduleFired:
		var fired domain.ScheduleFired
		if err := event.Decode(&fired); err == nil {
			s.logger.Debug("schedule fired", "schedule_id", fired.ScheduleID, "summary", string(fired.Summary))
		}
		if err := s.Schedules.Refresh(ctx); err != nil {
			s.logger.Warn("schedule refresh after firing failed", "error", err)
		}
	}
}

// Close detaches the shell from the event bus.
func (s *Shell) Close() {
	for _, fn := range s.unsub {
		fn()
	}
	s.unsub = nil
}
