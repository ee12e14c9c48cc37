package ledger

import (
	"context"
	"log/slog"

	"ordito/internal/domain"
)

// CommandSource resolves the groups and commands an Executor runs.
type CommandSource interface {
	Group(id string) (domain.CommandGroup, bool)
	Command(groupID, commandID string) (domain.Command, bool)
}

// Executor runs commands through the gateway and records every attempt.
type Executor struct {
	gateway domain.ExecutionGateway
	source  CommandSource
	ledger  *Ledger
	logger  *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(gateway domain.ExecutionGateway, source CommandSource, ledger *Ledger, logger *slog.Logger) *Executor {
	return &Executor{gateway: gateway, source: source, ledger: ledger, logger: logger}
}

// RunCommand runs one mirrored command, detached or awaited per its flag.
// An unknown command is reported without an attempt and without a record.
func (x *Executor) RunCommand(ctx context.Context, groupID, commandID string) (domain.ExecutionRecord, error) {
	cmd, ok := x.source.Command(groupID, commandID)
	if !ok {
		return domain.ExecutionRecord{}, domain.NewSubSystemError("command", "Executor.RunCommand", domain.ErrNotFound, commandID)
	}
	return x.RunCommandLine(ctx, cmd.Label, cmd.Cmd, cmd.Detached)
}

// RunCommandLine runs an ad-hoc command line and records the outcome under label.
func (x *Executor) RunCommandLine(ctx context.Context, label, line string, detached bool) (domain.ExecutionRecord, error) {
	var (
		out string
		err error
	)
	if detached {
		out, err = x.gateway.ExecuteCommandDetached(ctx, line)
	} else {
		out, err = x.gateway.ExecuteCommand(ctx, line)
	}
	if err != nil {
		x.logger.Warn("command failed", "label", label, "error", err)
	}

	id := x.ledger.RecordSingle(ctx, label, out, err)
	rec, _ := x.ledger.Get(id)
	return rec, err
}

// RunGroup runs every command of a group. A rejected call is recorded as a
// single failure entry labeled with the group title.
func (x *Executor) RunGroup(ctx context.Context, groupID string) (domain.ExecutionRecord, error) {
	label := groupID
	if g, ok := x.source.Group(groupID); ok {
		label = g.Title
	}

	entries, err := x.gateway.ExecuteGroupCommands(ctx, groupID)
	var id string
	if err != nil {
		x.logger.Warn("group execution failed", "group_id", groupID, "error", err)
		id = x.ledger.RecordSingle(ctx, label, "", err)
	} else {
		id = x.ledger.RecordGroup(ctx, label, entries)
	}

	rec, _ := x.ledger.Get(id)
	return rec, err
}
