// Package entity mirrors the groups and commands held by the remote authority.
//
// Every mutation is confirm-then-apply: input is validated locally, the
// gateway is called without holding the lock, and only a confirmed change is
// applied to the mirror. A rejected call leaves the mirror untouched and the
// gateway error is returned as is.
package entity

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"ordito/internal/domain"
	"ordito/internal/usecase/eventbus"
)

// Store is the client-side source of truth for groups and commands.
type Store struct {
	gateway domain.EntityGateway
	bus     domain.EventBus
	logger  *slog.Logger

	mu     sync.RWMutex
	groups []domain.CommandGroup
}

// New creates an empty Store. Call Refresh to load the remote state.
// bus may be nil.
func New(gateway domain.EntityGateway, bus domain.EventBus, logger *slog.Logger) *Store {
	return &Store{gateway: gateway, bus: bus, logger: logger}
}

// Refresh replaces the mirror with the remote group list.
func (s *Store) Refresh(ctx context.Context) error {
	groups, err := s.gateway.GetGroups(ctx)
	if err != nil {
		return err
	}
	mirror := make([]domain.CommandGroup, len(groups))
	for i, g := range groups {
		mirror[i] = g.Clone()
	}

	s.mu.Lock()
	s.groups = mirror
	s.mu.Unlock()

	eventbus.Emit(ctx, s.bus, domain.EventEntitiesRefreshed, nil)
	s.logger.Debug("entities refreshed", "groups", len(mirror))
	return nil
}

// Groups returns a deep copy of every group in mirror order.
func (s *Store) Groups() []domain.CommandGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CommandGroup, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.Clone()
	}
	return out
}

// Group returns a copy of the group with the given ID.
func (s *Store) Group(id string) (domain.CommandGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.groups[i].Clone(), true
	}
	return domain.CommandGroup{}, false
}

// Command returns the command commandID of group groupID.
func (s *Store) Command(groupID, commandID string) (domain.Command, bool) {
	g, ok := s.Group(groupID)
	if !ok {
		return domain.Command{}, false
	}
	cmd, _, found := g.FindCommand(commandID)
	return cmd, found
}

// CreateGroup creates a group with the given title and appends it with no commands.
func (s *Store) CreateGroup(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.NewSubSystemError("entity", "EntityStore.CreateGroup", domain.ErrInvalidInput, "title must not be empty")
	}

	id, err := s.gateway.CreateGroup(ctx, title)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.groups = append(s.groups, domain.CommandGroup{ID: id, Title: title, Commands: []domain.Command{}})
	s.mu.Unlock()

	eventbus.Emit(ctx, s.bus, domain.EventGroupCreated, domain.GroupChanged{GroupID: id, Title: title})
	s.logger.Info("group created", "group_id", id)
	return id, nil
}

// UpdateGroup renames a group in place. An unchanged title does not reach the gateway.
func (s *Store) UpdateGroup(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.NewSubSystemError("entity", "EntityStore.UpdateGroup", domain.ErrInvalidInput, "title must not be empty")
	}
	if g, ok := s.Group(id); ok && g.Title == title {
		return nil
	}

	if err := s.gateway.UpdateGroup(ctx, id, title); err != nil {
		return err
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i >= 0 {
		s.groups[i].Title = title
	}
	s.mu.Unlock()

	if i < 0 {
		s.logger.Debug("confirmed update for unknown group", "group_id", id)
		return nil
	}
	eventbus.Emit(ctx, s.bus, domain.EventGroupUpdated, domain.GroupChanged{GroupID: id, Title: title})
	return nil
}

// DeleteGroup removes a group and its commands.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	if err := s.gateway.DeleteGroup(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i >= 0 {
		s.groups = append(s.groups[:i:i], s.groups[i+1:]...)
	}
	s.mu.Unlock()

	if i < 0 {
		s.logger.Debug("confirmed delete for unknown group", "group_id", id)
		return nil
	}
	eventbus.Emit(ctx, s.bus, domain.EventGroupDeleted, domain.GroupChanged{GroupID: id})
	s.logger.Info("group deleted", "group_id", id)
	return nil
}

// AddCommand appends a command to a group.
func (s *Store) AddCommand(ctx context.Context, groupID string, in domain.CommandInput) (string, error) {
	in, err := normalizeInput("EntityStore.AddCommand", in)
	if err != nil {
		return "", err
	}

	id, err := s.gateway.AddCommand(ctx, groupID, in)
	if err != nil {
		return "", err
	}

	applied := s.apply(groupID, func(g *domain.CommandGroup) {
		g.Commands = append(g.Commands, domain.Command{ID: id, Label: in.Label, Cmd: in.Cmd, Detached: in.Detached})
	})
	if !applied {
		s.logger.Debug("confirmed command add for unknown group", "group_id", groupID, "command_id", id)
		return id, nil
	}
	eventbus.Emit(ctx, s.bus, domain.EventCommandAdded, domain.CommandChanged{GroupID: groupID, CommandID: id, Label: in.Label})
	return id, nil
}

// UpdateCommand replaces a command's fields, keeping its ID and position.
func (s *Store) UpdateCommand(ctx context.Context, groupID, commandID string, in domain.CommandInput) error {
	in, err := normalizeInput("EntityStore.UpdateCommand", in)
	if err != nil {
		return err
	}

	if err := s.gateway.UpdateCommand(ctx, groupID, commandID, in); err != nil {
		return err
	}

	found := false
	s.apply(groupID, func(g *domain.CommandGroup) {
		if _, i, ok := g.FindCommand(commandID); ok {
			g.Commands[i] = domain.Command{ID: commandID, Label: in.Label, Cmd: in.Cmd, Detached: in.Detached}
			found = true
		}
	})
	if !found {
		s.logger.Debug("confirmed update for unknown command", "group_id", groupID, "command_id", commandID)
		return nil
	}
	eventbus.Emit(ctx, s.bus, domain.EventCommandUpdated, domain.CommandChanged{GroupID: groupID, CommandID: commandID, Label: in.Label})
	return nil
}

// DeleteCommand removes a command from its group. Other groups are untouched.
func (s *Store) DeleteCommand(ctx context.Context, groupID, commandID string) error {
	if err := s.gateway.DeleteCommand(ctx, groupID, commandID); err != nil {
		return err
	}

	found := false
	s.apply(groupID, func(g *domain.CommandGroup) {
		if _, i, ok := g.FindCommand(commandID); ok {
			g.Commands = append(g.Commands[:i:i], g.Commands[i+1:]...)
			found = true
		}
	})
	if !found {
		s.logger.Debug("confirmed delete for unknown command", "group_id", groupID, "command_id", commandID)
		return nil
	}
	eventbus.Emit(ctx, s.bus, domain.EventCommandDeleted, domain.CommandChanged{GroupID: groupID, CommandID: commandID})
	return nil
}

// ExportData asks the remote authority to export everything.
func (s *Store) ExportData(ctx context.Context) (string, error) {
	return s.gateway.ExportData(ctx)
}

// ImportData sends jsonText to the remote authority and reloads the mirror.
// Text that is not valid JSON never reaches the gateway.
func (s *Store) ImportData(ctx context.Context, jsonText string) (string, error) {
	if !json.Valid([]byte(jsonText)) {
		return "", domain.NewSubSystemError("import", "EntityStore.ImportData", domain.ErrInvalidInput, "import data is not valid JSON")
	}

	msg, err := s.gateway.ImportData(ctx, jsonText)
	if err != nil {
		return "", err
	}
	eventbus.Emit(ctx, s.bus, domain.EventDataImported, nil)
	if err := s.Refresh(ctx); err != nil {
		return msg, domain.WrapOp("EntityStore.ImportData: refresh", err)
	}
	return msg, nil
}

// apply runs fn on group groupID under the write lock. It reports whether the group exists.
func (s *Store) apply(groupID string, fn func(*domain.CommandGroup)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(groupID)
	if i < 0 {
		return false
	}
	fn(&s.groups[i])
	return true
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id string) int {
	for i := range s.groups {
		if s.groups[i].ID == id {
			return i
		}
	}
	return -1
}

func normalizeInput(op string, in domain.CommandInput) (domain.CommandInput, error) {
	in.Label = strings.TrimSpace(in.Label)
	in.Cmd = strings.TrimSpace(in.Cmd)
	if in.Label == "" {
		return in, domain.NewSubSystemError("command", op, domain.ErrInvalidInput, "label must not be empty")
	}
	if in.Cmd == "" {
		return in, domain.NewSubSystemError("command", op, domain.ErrInvalidInput, "command must not be empty")
	}
	return in, nil
}
