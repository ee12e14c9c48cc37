// Package backend is the reference remote authority: it persists groups,
// commands and schedules, executes commands, and fires schedules on their
// cron expressions. It implements domain.RemoteGateway in process.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"ordito/internal/domain"
	"ordito/internal/usecase/eventbus"
	"ordito/internal/usecase/scheduling"
)

// PreviewCount is the number of upcoming fire times returned by validation.
const PreviewCount = 5

// Store persists the backend state.
type Store interface {
	ListGroups(ctx context.Context) ([]domain.CommandGroup, error)
	SaveGroup(ctx context.Context, g domain.CommandGroup) error
	DeleteGroup(ctx context.Context, id string) error
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
	SaveSchedule(ctx context.Context, s domain.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
}

// CommandRunner executes command lines.
type CommandRunner interface {
	Run(ctx context.Context, line string) (string, error)
	Start(ctx context.Context, line string) (string, error)
}

// Config holds configuration for the Service.
type Config struct {
	ExportDir string         // where ExportData writes (default: current directory)
	Location  *time.Location // zone cron expressions are evaluated in (default: local)
}

var _ domain.RemoteGateway = (*Service)(nil)

// Service implements domain.RemoteGateway on top of a Store, a CommandRunner
// and a scheduling.Scheduler.
type Service struct {
	store     Store
	runner    CommandRunner
	scheduler *scheduling.Scheduler
	bus       domain.EventBus
	logger    *slog.Logger
	config    Config
	nowFn     func() time.Time

	mu        sync.Mutex
	groups    []domain.CommandGroup
	schedules []domain.Schedule
	firing    map[string]bool // schedule IDs with a run in progress
	entropy   io.Reader
}

// New creates a Service. Call LoadAndSchedule before serving requests.
func New(store Store, runner CommandRunner, scheduler *scheduling.Scheduler, bus domain.EventBus, cfg Config, logger *slog.Logger) *Service {
	if cfg.ExportDir == "" {
		cfg.ExportDir = "."
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	now := time.Now()
	return &Service{
		store:     store,
		runner:    runner,
		scheduler: scheduler,
		bus:       bus,
		logger:    logger,
		config:    cfg,
		nowFn:     time.Now,
		firing:    make(map[string]bool),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
	}
}

// LoadAndSchedule loads persisted state and schedules active schedules.
// Should be called once during startup.
func (s *Service) LoadAndSchedule(ctx context.Context) error {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("backend: load groups: %w", err)
	}
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("backend: load schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
	s.schedules = schedules

	scheduled := 0
	for _, sch := range schedules {
		if !sch.IsActive || sch.Exhausted() {
			continue
		}
		if err := s.register(sch); err != nil {
			s.logger.Warn("failed to schedule persisted schedule", "schedule_id", sch.ID, "error", err)
			continue
		}
		scheduled++
	}

	s.logger.Info("backend state loaded",
		"groups", len(groups), "schedules", len(schedules), "scheduled", scheduled)
	return nil
}

// --- groups ---

// CreateGroup creates an empty group.
func (s *Service) CreateGroup(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", reject("create_group", "Group title cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := domain.CommandGroup{ID: s.newID(), Title: title, Commands: []domain.Command{}}
	if err := s.store.SaveGroup(ctx, g); err != nil {
		return "", s.storageError("create_group", err)
	}
	s.groups = append(s.groups, g)
	s.logger.Info("group created", "group_id", g.ID)
	return g.ID, nil
}

// GetGroups returns every group in creation order.
func (s *Service) GetGroups(ctx context.Context) ([]domain.CommandGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CommandGroup, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.Clone()
	}
	return out, nil
}

// UpdateGroup renames a group.
func (s *Service) UpdateGroup(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return reject("update_group", "Group title cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.groupIndex(id)
	if i < 0 {
		return reject("update_group", "Group not found")
	}
	g := s.groups[i].Clone()
	g.Title = title
	if err := s.store.SaveGroup(ctx, g); err != nil {
		return s.storageError("update_group", err)
	}
	s.groups[i] = g
	return nil
}

// DeleteGroup removes a group and its commands. Schedules targeting the
// group are left to the caller.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.groupIndex(id)
	if i < 0 {
		return reject("delete_group", "Group not found")
	}
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		return s.storageError("delete_group", err)
	}
	s.groups = slices.Delete(s.groups, i, i+1)
	s.logger.Info("group deleted", "group_id", id)
	return nil
}

// --- commands ---

// AddCommand appends a command to a group.
func (s *Service) AddCommand(ctx context.Context, groupID string, in domain.CommandInput) (string, error) {
	if err := checkCommand(in); err != "" {
		return "", reject("add_command", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.groupIndex(groupID)
	if i < 0 {
		return "", reject("add_command", "Group not found")
	}
	g := s.groups[i].Clone()
	c := domain.Command{ID: s.newID(), Label: in.Label, Cmd: in.Cmd, Detached: in.Detached}
	g.Commands = append(g.Commands, c)
	if err := s.store.SaveGroup(ctx, g); err != nil {
		return "", s.storageError("add_command", err)
	}
	s.groups[i] = g
	return c.ID, nil
}

// UpdateCommand replaces the fields of a command.
func (s *Service) UpdateCommand(ctx context.Context, groupID, commandID string, in domain.CommandInput) error {
	if err := checkCommand(in); err != "" {
		return reject("update_command", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.groupIndex(groupID)
	if i < 0 {
		return reject("update_command", "Group not found")
	}
	g := s.groups[i].Clone()
	_, j, ok := g.FindCommand(commandID)
	if !ok {
		return reject("update_command", "Command not found")
	}
	g.Commands[j] = domain.Command{ID: commandID, Label: in.Label, Cmd: in.Cmd, Detached: in.Detached}
	if err := s.store.SaveGroup(ctx, g); err != nil {
		return s.storageError("update_command", err)
	}
	s.groups[i] = g
	return nil
}

// DeleteCommand removes a command from its group.
func (s *Service) DeleteCommand(ctx context.Context, groupID, commandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.groupIndex(groupID)
	if i < 0 {
		return reject("delete_command", "Group not found")
	}
	g := s.groups[i].Clone()
	_, j, ok := g.FindCommand(commandID)
	if !ok {
		return reject("delete_command", "Command not found")
	}
	g.Commands = slices.Delete(g.Commands, j, j+1)
	if err := s.store.SaveGroup(ctx, g); err != nil {
		return s.storageError("delete_command", err)
	}
	s.groups[i] = g
	return nil
}

// --- execution ---

// ExecuteCommand runs cmd and waits for its output.
func (s *Service) ExecuteCommand(ctx context.Context, cmd string) (string, error) {
	out, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return "", reject("execute_command", err.Error())
	}
	return out, nil
}

// ExecuteCommandDetached starts cmd in the background.
func (s *Service) ExecuteCommandDetached(ctx context.Context, cmd string) (string, error) {
	out, err := s.runner.Start(ctx, cmd)
	if err != nil {
		return "", reject("execute_command_detached", err.Error())
	}
	return out, nil
}

// ExecuteGroupCommands runs every command of a group in order. A failing
// command yields a failure entry and does not stop the rest.
func (s *Service) ExecuteGroupCommands(ctx context.Context, groupID string) ([]domain.ExecutionEntry, error) {
	g, ok := s.group(groupID)
	if !ok {
		return nil, reject("execute_group_commands", "Group not found")
	}
	return s.runGroup(ctx, g), nil
}

func (s *Service) runGroup(ctx context.Context, g domain.CommandGroup) []domain.ExecutionEntry {
	entries := make([]domain.ExecutionEntry, 0, len(g.Commands))
	for _, c := range g.Commands {
		out, err := s.runCommand(ctx, c)
		if err != nil {
			entries = append(entries, domain.FailureEntry(c.Label, err.Error()))
			continue
		}
		entries = append(entries, domain.SuccessEntry(c.Label, out))
	}
	return entries
}

func (s *Service) runCommand(ctx context.Context, c domain.Command) (string, error) {
	if c.Detached {
		return s.runner.Start(ctx, c.Cmd)
	}
	return s.runner.Run(ctx, c.Cmd)
}

// --- helpers ---

func (s *Service) group(id string) (domain.CommandGroup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.groupIndex(id); i >= 0 {
		return s.groups[i].Clone(), true
	}
	return domain.CommandGroup{}, false
}

// groupIndex must be called with s.mu held.
func (s *Service) groupIndex(id string) int {
	return slices.IndexFunc(s.groups, func(g domain.CommandGroup) bool { return g.ID == id })
}

// scheduleIndex must be called with s.mu held.
func (s *Service) scheduleIndex(id string) int {
	return slices.IndexFunc(s.schedules, func(sch domain.Schedule) bool { return sch.ID == id })
}

// newID must be called with s.mu held.
func (s *Service) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.nowFn()), s.entropy).String()
}

func (s *Service) now() time.Time {
	return s.nowFn().In(s.config.Location)
}

func (s *Service) storageError(method string, err error) error {
	s.logger.Error("storage write failed", "method", method, "error", err)
	return reject(method, fmt.Sprintf("Failed to save data: %v", err))
}

func (s *Service) emit(ctx context.Context, eventType domain.EventType, payload any) {
	eventbus.Emit(ctx, s.bus, eventType, payload)
}

func checkCommand(in domain.CommandInput) string {
	switch {
	case strings.TrimSpace(in.Label) == "":
		return "Command label cannot be empty"
	case strings.TrimSpace(in.Cmd) == "":
		return "Command cannot be empty"
	}
	return ""
}

func reject(method, msg string) error {
	return &domain.GatewayError{Method: method, Message: msg}
}
