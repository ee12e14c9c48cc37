// Package fakegw provides an in-memory domain.RemoteGateway for tests.
package fakegw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ordito/internal/domain"
)

// Gateway is a scriptable in-memory remote authority. IDs are sequential
// ("g1", "c1", "s1"). Failures are injected per method with Fail.
type Gateway struct {
	mu        sync.Mutex
	groups    []domain.CommandGroup
	schedules []domain.Schedule
	calls     map[string]int
	fail      map[string]error
	seq       map[string]int

	// Outputs maps a command line to its execution result. Unknown command
	// lines echo themselves.
	Outputs map[string]domain.ExecutionEntry
	// Invalid maps an expression to the validator's error message.
	Invalid map[string]string
	// Now is used for schedule timestamps.
	Now time.Time
	// OnCall runs at the start of every call, outside the lock.
	OnCall func(method string)
}

// New returns an empty Gateway.
func New() *Gateway {
	return &Gateway{
		calls:   make(map[string]int),
		fail:    make(map[string]error),
		seq:     make(map[string]int),
		Outputs: make(map[string]domain.ExecutionEntry),
		Invalid: make(map[string]string),
		Now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Fail makes every later call to method return err. A nil err clears it.
func (g *Gateway) Fail(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, method)
		return
	}
	g.fail[method] = err
}

// Reject makes method fail with a GatewayError carrying msg.
func (g *Gateway) Reject(method, msg string) {
	g.Fail(method, &domain.GatewayError{Method: method, Message: msg})
}

// Calls returns how many times method was called.
func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// SetSchedule replaces or inserts a schedule as the remote side would after firing.
func (g *Gateway) SetSchedule(s domain.Schedule) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.schedules {
		if g.schedules[i].ID == s.ID {
			g.schedules[i] = s.Clone()
			return
		}
	}
	g.schedules = append(g.schedules, s.Clone())
}

// SeedGroup inserts a group directly.
func (g *Gateway) SeedGroup(group domain.CommandGroup) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups = append(g.groups, group.Clone())
}

func (g *Gateway) enter(method string) error {
	if g.OnCall != nil {
		g.OnCall(method)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[method]++
	return g.fail[method]
}

func (g *Gateway) nextID(prefix string) string {
	g.seq[prefix]++
	return fmt.Sprintf("%s%d", prefix, g.seq[prefix])
}

func (g *Gateway) groupIndex(id string) int {
	for i := range g.groups {
		if g.groups[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *Gateway) scheduleIndex(id string) int {
	for i := range g.schedules {
		if g.schedules[i].ID == id {
			return i
		}
	}
	return -1
}

func notFound(method, msg string) error {
	return &domain.GatewayError{Method: method, Message: msg}
}

func (g *Gateway) CreateGroup(_ context.Context, title string) (string, error) {
	if err := g.enter("CreateGroup"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID("g")
	g.groups = append(g.groups, domain.CommandGroup{ID: id, Title: title, Commands: []domain.Command{}})
	return id, nil
}

func (g *Gateway) GetGroups(_ context.Context) ([]domain.CommandGroup, error) {
	if err := g.enter("GetGroups"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.CommandGroup, len(g.groups))
	for i, grp := range g.groups {
		out[i] = grp.Clone()
	}
	return out, nil
}

func (g *Gateway) UpdateGroup(_ context.Context, id, title string) error {
	if err := g.enter("UpdateGroup"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.groupIndex(id)
	if i < 0 {
		return notFound("UpdateGroup", "Group not found")
	}
	g.groups[i].Title = title
	return nil
}

func (g *Gateway) DeleteGroup(_ context.Context, id string) error {
	if err := g.enter("DeleteGroup"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.groupIndex(id)
	if i < 0 {
		return notFound("DeleteGroup", "Group not found")
	}
	g.groups = append(g.groups[:i], g.groups[i+1:]...)
	return nil
}

func (g *Gateway) AddCommand(_ context.Context, groupID string, in domain.CommandInput) (string, error) {
	if err := g.enter("AddCommand"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.groupIndex(groupID)
	if i < 0 {
		return "", notFound("AddCommand", "Group not found")
	}
	id := g.nextID("c")
	g.groups[i].Commands = append(g.groups[i].Commands, domain.Command{ID: id, Label: in.Label, Cmd: in.Cmd, Detached: in.Detached})
	return id, nil
}

func (g *Gateway) UpdateCommand(_ context.Context, groupID, commandID string, in domain.CommandInput) error {
	if err := g.enter("UpdateCommand"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.groupIndex(groupID)
	if i < 0 {
		return notFound("UpdateCommand", "Group not found")
	}
	_, j, ok := g.groups[i].FindCommand(commandID)
	if !ok {
		return notFound("UpdateCommand", "Command not found")
	}
	g.groups[i].Commands[j] = domain.Command{ID: commandID, Label: in.Label, Cmd: in.Cmd, Detached: in.Detached}
	return nil
}

func (g *Gateway) DeleteCommand(_ context.Context, groupID, commandID string) error {
	if err := g.enter("DeleteCommand"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.groupIndex(groupID)
	if i < 0 {
		return notFound("DeleteCommand", "Group not found")
	}
	_, j, ok := g.groups[i].FindCommand(commandID)
	if !ok {
		return notFound("DeleteCommand", "Command not found")
	}
	cmds := g.groups[i].Commands
	g.groups[i].Commands = append(cmds[:j], cmds[j+1:]...)
	return nil
}

func (g *Gateway) ExecuteCommand(_ context.Context, cmd string) (string, error) {
	if err := g.enter("ExecuteCommand"); err != nil {
		return "", err
	}
	return g.output("ExecuteCommand", cmd)
}

func (g *Gateway) ExecuteCommandDetached(_ context.Context, cmd string) (string, error) {
	if err := g.enter("ExecuteCommandDetached"); err != nil {
		return "", err
	}
	return "Process started successfully in background", nil
}

func (g *Gateway) output(method, cmd string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.Outputs[cmd]
	if !ok {
		return cmd, nil
	}
	if e.Failed {
		return "", &domain.GatewayError{Method: method, Message: e.Message}
	}
	return e.Output, nil
}

func (g *Gateway) ExecuteGroupCommands(_ context.Context, groupID string) ([]domain.ExecutionEntry, error) {
	if err := g.enter("ExecuteGroupCommands"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	i := g.groupIndex(groupID)
	if i < 0 {
		g.mu.Unlock()
		return nil, notFound("ExecuteGroupCommands", "Group not found")
	}
	cmds := g.groups[i].Clone().Commands
	g.mu.Unlock()

	entries := make([]domain.ExecutionEntry, 0, len(cmds))
	for _, c := range cmds {
		out, err := g.output("ExecuteGroupCommands", c.Cmd)
		if err != nil {
			entries = append(entries, domain.FailureEntry(c.Label, err.Error()))
			continue
		}
		entries = append(entries, domain.SuccessEntry(c.Label, out))
	}
	return entries, nil
}

func (g *Gateway) CreateSchedule(_ context.Context, spec domain.ScheduleSpec) (string, error) {
	if err := g.enter("CreateSchedule"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID("s")
	g.schedules = append(g.schedules, domain.Schedule{
		ID:            id,
		Target:        spec.Target,
		Pattern:       domain.CronPattern{Expression: spec.Expression},
		IsActive:      true,
		CreatedAt:     g.Now,
		NextExecution: g.Now.Add(time.Hour),
		MaxExecutions: spec.MaxExecutions,
	})
	return id, nil
}

func (g *Gateway) GetSchedules(_ context.Context) ([]domain.Schedule, error) {
	if err := g.enter("GetSchedules"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Schedule, len(g.schedules))
	for i, s := range g.schedules {
		out[i] = s.Clone()
	}
	return out, nil
}

func (g *Gateway) UpdateSchedule(_ context.Context, id string, spec domain.ScheduleSpec) error {
	if err := g.enter("UpdateSchedule"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.scheduleIndex(id)
	if i < 0 {
		return notFound("UpdateSchedule", "Schedule not found")
	}
	s := &g.schedules[i]
	s.Target = spec.Target
	s.Pattern = domain.CronPattern{Expression: spec.Expression}
	s.MaxExecutions = spec.MaxExecutions
	s.ExecutionCount = 0
	s.IsActive = true
	s.NextExecution = g.Now.Add(2 * time.Hour)
	return nil
}

func (g *Gateway) DeleteSchedule(_ context.Context, id string) error {
	if err := g.enter("DeleteSchedule"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.scheduleIndex(id)
	if i < 0 {
		return notFound("DeleteSchedule", "Schedule not found")
	}
	g.schedules = append(g.schedules[:i], g.schedules[i+1:]...)
	return nil
}

func (g *Gateway) ToggleSchedule(_ context.Context, id string) (bool, error) {
	if err := g.enter("ToggleSchedule"); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.scheduleIndex(id)
	if i < 0 {
		return false, notFound("ToggleSchedule", "Schedule not found")
	}
	g.schedules[i].IsActive = !g.schedules[i].IsActive
	return g.schedules[i].IsActive, nil
}

func (g *Gateway) ValidateCronExpression(_ context.Context, expr string) (domain.CronValidation, error) {
	if err := g.enter("ValidateCronExpression"); err != nil {
		return domain.CronValidation{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if msg, bad := g.Invalid[expr]; bad {
		return domain.CronValidation{IsValid: false, ErrorMessage: msg}, nil
	}
	next := make([]time.Time, 5)
	for i := range next {
		next[i] = g.Now.Add(time.Duration(i+1) * time.Hour)
	}
	return domain.CronValidation{IsValid: true, NextExecutions: next}, nil
}

func (g *Gateway) ExportData(_ context.Context) (string, error) {
	if err := g.enter("ExportData"); err != nil {
		return "", err
	}
	return "Data exported to: /tmp/ordito-commands.json", nil
}

func (g *Gateway) ImportData(_ context.Context, _ string) (string, error) {
	if err := g.enter("ImportData"); err != nil {
		return "", err
	}
	return "Data imported successfully (0 added, 0 skipped)", nil
}

var _ domain.RemoteGateway = (*Gateway)(nil)
