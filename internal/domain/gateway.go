package domain

import "context"

// GroupGateway manages groups on the remote authority.
type GroupGateway interface {
	CreateGroup(ctx context.Context, title string) (string, error)
	GetGroups(ctx context.Context) ([]CommandGroup, error)
	UpdateGroup(ctx context.Context, id, title string) error
	DeleteGroup(ctx context.Context, id string) error
}

// CommandGateway manages the commands of a group on the remote authority.
type CommandGateway interface {
	AddCommand(ctx context.Context, groupID string, in CommandInput) (string, error)
	UpdateCommand(ctx context.Context, groupID, commandID string, in CommandInput) error
	DeleteCommand(ctx context.Context, groupID, commandID string) error
}

// ExecutionGateway runs commands. It is the only place commands actually execute.
type ExecutionGateway interface {
	ExecuteCommand(ctx context.Context, cmd string) (string, error)
	ExecuteCommandDetached(ctx context.Context, cmd string) (string, error)
	ExecuteGroupCommands(ctx context.Context, groupID string) ([]ExecutionEntry, error)
}

// ScheduleGateway manages schedules. The remote side owns the execution clock
// and computes every next execution time.
type ScheduleGateway interface {
	CreateSchedule(ctx context.Context, spec ScheduleSpec) (string, error)
	GetSchedules(ctx context.Context) ([]Schedule, error)
	UpdateSchedule(ctx context.Context, id string, spec ScheduleSpec) error
	DeleteSchedule(ctx context.Context, id string) error
	ToggleSchedule(ctx context.Context, id string) (bool, error)
	ValidateCronExpression(ctx context.Context, expr string) (CronValidation, error)
}

// DataGateway imports and exports the full data set.
type DataGateway interface {
	ExportData(ctx context.Context) (string, error)
	ImportData(ctx context.Context, jsonText string) (string, error)
}

// EntityGateway is what the entity store needs.
type EntityGateway interface {
	GroupGateway
	CommandGateway
	DataGateway
}

// RemoteGateway is the full remote authority contract.
type RemoteGateway interface {
	GroupGateway
	CommandGateway
	ExecutionGateway
	ScheduleGateway
	DataGateway
}
