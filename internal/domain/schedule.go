package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleTarget selects what a schedule runs: a whole group or one command.
// The interface is sealed; the only implementations are GroupTarget and CommandTarget.
type ScheduleTarget interface {
	TargetGroupID() string
	isScheduleTarget()
}

// GroupTarget runs every command of a group.
type GroupTarget struct {
	GroupID string
}

// CommandTarget runs a single command of a group.
type CommandTarget struct {
	GroupID   string
	CommandID string
}

func (t GroupTarget) TargetGroupID() string   { return t.GroupID }
func (t CommandTarget) TargetGroupID() string { return t.GroupID }
func (GroupTarget) isScheduleTarget()         {}
func (CommandTarget) isScheduleTarget()       {}

// TargetCommandID returns the command ID of a CommandTarget, or "" for a group target.
func TargetCommandID(t ScheduleTarget) string {
	if ct, ok := t.(CommandTarget); ok {
		return ct.CommandID
	}
	return ""
}

// TargetFromIDs builds a target from the flat wire form where an empty
// command ID means the whole group.
func TargetFromIDs(groupID, commandID string) ScheduleTarget {
	if commandID == "" {
		return GroupTarget{GroupID: groupID}
	}
	return CommandTarget{GroupID: groupID, CommandID: commandID}
}

// SchedulePattern describes when a schedule fires. Sealed: CronPattern or CalendarPattern.
type SchedulePattern interface {
	isSchedulePattern()
}

// CronPattern is the canonical six-field cron expression
// (second minute hour day-of-month month day-of-week).
type CronPattern struct {
	Expression string
}

// Recurrence is the repeat rule of a legacy calendar pattern.
type Recurrence struct {
	Kind         RecurrenceKind
	EveryMinutes uint // only for RecurrenceCustom
}

// RecurrenceKind enumerates the legacy calendar recurrences.
type RecurrenceKind string

const (
	RecurrenceOnce    RecurrenceKind = "once"
	RecurrenceDaily   RecurrenceKind = "daily"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
	RecurrenceCustom  RecurrenceKind = "custom"
)

// CalendarPattern is the legacy instant-plus-recurrence form. It can be
// represented but is never accepted by the schedule engine.
type CalendarPattern struct {
	At         time.Time
	Recurrence Recurrence
}

func (CronPattern) isSchedulePattern()     {}
func (CalendarPattern) isSchedulePattern() {}

// ScheduleState is the lifecycle state derived from a schedule's fields.
type ScheduleState string

const (
	ScheduleActive    ScheduleState = "active"
	SchedulePaused    ScheduleState = "paused"
	ScheduleExhausted ScheduleState = "exhausted"
)

// Schedule binds a time pattern to a group or command.
type Schedule struct {
	ID             string
	Target         ScheduleTarget
	Pattern        SchedulePattern
	IsActive       bool
	CreatedAt      time.Time
	LastExecution  *time.Time
	NextExecution  time.Time
	ExecutionCount uint
	MaxExecutions  *uint
}

// State derives the lifecycle state. Exhausted takes precedence over IsActive.
func (s Schedule) State() ScheduleState {
	if s.Exhausted() {
		return ScheduleExhausted
	}
	if s.IsActive {
		return ScheduleActive
	}
	return SchedulePaused
}

// Exhausted reports whether the execution limit has been reached.
func (s Schedule) Exhausted() bool {
	return s.MaxExecutions != nil && s.ExecutionCount >= *s.MaxExecutions
}

// Expression returns the cron expression, or "" for a non-cron pattern.
func (s Schedule) Expression() string {
	if p, ok := s.Pattern.(CronPattern); ok {
		return p.Expression
	}
	return ""
}

// Clone returns a copy that shares no pointers with s.
func (s Schedule) Clone() Schedule {
	out := s
	if s.LastExecution != nil {
		t := *s.LastExecution
		out.LastExecution = &t
	}
	if s.MaxExecutions != nil {
		m := *s.MaxExecutions
		out.MaxExecutions = &m
	}
	return out
}

// Spec returns the create/update payload describing s.
func (s Schedule) Spec() ScheduleSpec {
	spec := ScheduleSpec{Target: s.Target, Expression: s.Expression()}
	if s.MaxExecutions != nil {
		m := *s.MaxExecutions
		spec.MaxExecutions = &m
	}
	return spec
}

// scheduleWire is the flat JSON form shared by the RPC protocol and export files.
type scheduleWire struct {
	ID             string     `json:"id"`
	GroupID        string     `json:"group_id"`
	CommandID      *string    `json:"command_id"`
	CronExpression string     `json:"cron_expression"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastExecution  *time.Time `json:"last_execution,omitempty"`
	NextExecution  time.Time  `json:"next_execution"`
	ExecutionCount uint       `json:"execution_count"`
	MaxExecutions  *uint      `json:"max_executions,omitempty"`
}

// MarshalJSON encodes the schedule in its flat wire form. Only cron patterns
// have a wire form.
func (s Schedule) MarshalJSON() ([]byte, error) {
	p, ok := s.Pattern.(CronPattern)
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", s.ID, ErrUnsupportedPattern)
	}
	if s.Target == nil {
		return nil, fmt.Errorf("schedule %s: missing target", s.ID)
	}
	w := scheduleWire{
		ID:             s.ID,
		GroupID:        s.Target.TargetGroupID(),
		CronExpression: p.Expression,
		IsActive:       s.IsActive,
		CreatedAt:      s.CreatedAt,
		LastExecution:  s.LastExecution,
		NextExecution:  s.NextExecution,
		ExecutionCount: s.ExecutionCount,
		MaxExecutions:  s.MaxExecutions,
	}
	if id := TargetCommandID(s.Target); id != "" {
		w.CommandID = &id
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire form.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var w scheduleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	commandID := ""
	if w.CommandID != nil {
		commandID = *w.CommandID
	}
	*s = Schedule{
		ID:             w.ID,
		Target:         TargetFromIDs(w.GroupID, commandID),
		Pattern:        CronPattern{Expression: w.CronExpression},
		IsActive:       w.IsActive,
		CreatedAt:      w.CreatedAt,
		LastExecution:  w.LastExecution,
		NextExecution:  w.NextExecution,
		ExecutionCount: w.ExecutionCount,
		MaxExecutions:  w.MaxExecutions,
	}
	return nil
}

// ScheduleSpec is the payload for creating or replacing a schedule.
type ScheduleSpec struct {
	Target        ScheduleTarget
	Expression    string
	MaxExecutions *uint
}

type scheduleSpecWire struct {
	GroupID        string  `json:"group_id"`
	CommandID      *string `json:"command_id"`
	CronExpression string  `json:"cron_expression"`
	MaxExecutions  *uint   `json:"max_executions,omitempty"`
}

// MarshalJSON encodes the spec in the flat wire form.
func (s ScheduleSpec) MarshalJSON() ([]byte, error) {
	if s.Target == nil {
		return nil, fmt.Errorf("schedule spec: missing target")
	}
	w := scheduleSpecWire{
		GroupID:        s.Target.TargetGroupID(),
		CronExpression: s.Expression,
		MaxExecutions:  s.MaxExecutions,
	}
	if id := TargetCommandID(s.Target); id != "" {
		w.CommandID = &id
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire form.
func (s *ScheduleSpec) UnmarshalJSON(data []byte) error {
	var w scheduleSpecWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	commandID := ""
	if w.CommandID != nil {
		commandID = *w.CommandID
	}
	*s = ScheduleSpec{
		Target:        TargetFromIDs(w.GroupID, commandID),
		Expression:    w.CronExpression,
		MaxExecutions: w.MaxExecutions,
	}
	return nil
}

// SchedulePatch holds optional changes for a schedule update.
// A nil field leaves the current value in place.
type SchedulePatch struct {
	Target        ScheduleTarget
	Pattern       SchedulePattern
	MaxExecutions *uint
	ClearMax      bool
}

// CronValidation is the remote verdict on a cron expression plus a preview
// of upcoming fire times.
type CronValidation struct {
	IsValid        bool        `json:"is_valid"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	NextExecutions []time.Time `json:"next_executions"`
}

// ScheduleKind tells group schedules from command schedules for display.
type ScheduleKind string

const (
	ScheduleKindGroup   ScheduleKind = "group"
	ScheduleKindCommand ScheduleKind = "command"
)

// ScheduleInfo is a schedule enriched with a display name resolved against
// the current groups.
type ScheduleInfo struct {
	Schedule
	DisplayName string
	Kind        ScheduleKind
	Orphaned    bool
}

// GroupLookup resolves groups by ID.
type GroupLookup interface {
	Group(id string) (CommandGroup, bool)
}

// DescribeSchedule builds the ScheduleInfo of s against the groups known to lookup.
func DescribeSchedule(s Schedule, lookup GroupLookup) ScheduleInfo {
	info := ScheduleInfo{Schedule: s, Kind: ScheduleKindGroup}
	expr := s.Expression()

	group, ok := lookup.Group(s.Target.TargetGroupID())
	if !ok {
		info.DisplayName = fmt.Sprintf("[Unknown Group] (%s)", expr)
		info.Orphaned = true
		if _, isCmd := s.Target.(CommandTarget); isCmd {
			info.Kind = ScheduleKindCommand
		}
		return info
	}

	switch t := s.Target.(type) {
	case GroupTarget:
		info.DisplayName = fmt.Sprintf("Group: %s (%s)", group.Title, expr)
	case CommandTarget:
		info.Kind = ScheduleKindCommand
		if cmd, _, found := group.FindCommand(t.CommandID); found {
			info.DisplayName = fmt.Sprintf("%s → %s (%s)", group.Title, cmd.Label, expr)
		} else {
			info.DisplayName = fmt.Sprintf("%s → [Unknown Command] (%s)", group.Title, expr)
			info.Orphaned = true
		}
	}
	return info
}
