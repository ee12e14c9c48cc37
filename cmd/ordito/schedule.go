package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ordito/internal/cronexpr"
	"ordito/internal/domain"
	"ordito/internal/usecase/shell"
)

// findSchedule resolves a schedule by ID or unique ID prefix.
func findSchedule(sh *shell.Shell, ref string) (domain.Schedule, error) {
	if sch, ok := sh.Schedules.Get(ref); ok {
		return sch, nil
	}
	var match []domain.Schedule
	for _, sch := range sh.Schedules.List() {
		if strings.HasPrefix(sch.ID, ref) {
			match = append(match, sch)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return domain.Schedule{}, domain.NewSubSystemError("schedule", "cli", domain.ErrNotFound, fmt.Sprintf("no schedule %q", ref))
	default:
		return domain.Schedule{}, domain.NewSubSystemError("schedule", "cli", domain.ErrInvalidInput,
			fmt.Sprintf("%d schedules start with %q", len(match), ref))
	}
}

// lookupPreset finds a preset by its 1-based position in 'ordito cron
// presets' or by case-insensitive name.
func lookupPreset(ref string) (cronexpr.Preset, error) {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(cronexpr.Presets) {
		return cronexpr.Presets[n-1], nil
	}
	for _, p := range cronexpr.Presets {
		if strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return cronexpr.Preset{}, fmt.Errorf("unknown preset %q: %w", ref, domain.ErrInvalidInput)
}

// patternFlags are the flags that choose a cron expression.
type patternFlags struct {
	expr   string
	preset string
}

func (p *patternFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.expr, "cron", "", `six-field cron expression, e.g. "0 30 9 * * 1,2,3,4,5"`)
	cmd.Flags().StringVar(&p.preset, "preset", "", "preset name or number from 'ordito cron presets'")
	cmd.MarkFlagsMutuallyExclusive("cron", "preset")
}

// expression returns the chosen expression, or "" when neither flag is set.
func (p *patternFlags) expression() (string, error) {
	if p.preset != "" {
		preset, err := lookupPreset(p.preset)
		if err != nil {
			return "", err
		}
		return preset.Expression, nil
	}
	return strings.TrimSpace(p.expr), nil
}

// resolveTarget turns group and optional command references into a target.
func resolveTarget(sh *shell.Shell, groupRef, commandRef string) (domain.ScheduleTarget, error) {
	g, err := findGroup(sh, groupRef)
	if err != nil {
		return nil, err
	}
	if commandRef == "" {
		return domain.GroupTarget{GroupID: g.ID}, nil
	}
	c, err := findCommand(g, commandRef)
	if err != nil {
		return nil, err
	}
	return domain.CommandTarget{GroupID: g.ID, CommandID: c.ID}, nil
}

func newScheduleCmd(opts *globalOptions) *cobra.Command {
	schedule := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"schedules"},
		Short:   "Manage cron schedules of groups and commands",
	}
	schedule.AddCommand(
		newScheduleListCmd(opts),
		newScheduleAddCmd(opts),
		newScheduleEditCmd(opts),
		newScheduleToggleCmd(opts),
		newScheduleRmCmd(opts),
		newScheduleValidateCmd(opts),
	)
	return schedule
}

func newScheduleListCmd(opts *globalOptions) *cobra.Command {
	var orphans bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List schedules with their state and next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(_ context.Context, s *session) error {
				infos := s.shell.ScheduleInfos()
				if orphans {
					infos = s.shell.Orphans()
				}
				printSchedules(cmd.OutOrStdout(), infos, time.Now())
				return nil
			})
		},
	}
	list.Flags().BoolVar(&orphans, "orphans", false, "only schedules whose group or command is gone")
	return list
}

func newScheduleAddCmd(opts *globalOptions) *cobra.Command {
	var (
		pattern patternFlags
		maxRuns uint
	)
	add := &cobra.Command{
		Use:   "add <group> [command]",
		Short: "Schedule a group, or one command of it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := pattern.expression()
			if err != nil {
				return err
			}
			if expr == "" {
				return fmt.Errorf("one of --cron or --preset is required: %w", domain.ErrInvalidInput)
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				commandRef := ""
				if len(args) == 2 {
					commandRef = args[1]
				}
				target, err := resolveTarget(s.shell, args[0], commandRef)
				if err != nil {
					return err
				}
				var limit *uint
				if cmd.Flags().Changed("max") {
					limit = &maxRuns
				}
				id, err := s.shell.Schedules.Add(ctx, target, domain.CronPattern{Expression: expr}, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	pattern.register(add)
	add.Flags().UintVar(&maxRuns, "max", 0, "stop after this many successful runs")
	return add
}

func newScheduleEditCmd(opts *globalOptions) *cobra.Command {
	var (
		pattern    patternFlags
		maxRuns    uint
		clearMax   bool
		groupRef   string
		commandRef string
	)
	edit := &cobra.Command{
		Use:   "edit <schedule>",
		Short: "Change the pattern, target or run limit of a schedule",
		Long: `Change the pattern, target or run limit of a schedule. The schedule
is re-armed: its run count restarts at zero and it becomes active.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := pattern.expression()
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				sch, err := findSchedule(s.shell, args[0])
				if err != nil {
					return err
				}

				var patch domain.SchedulePatch
				if expr != "" {
					patch.Pattern = domain.CronPattern{Expression: expr}
				}
				if groupRef != "" {
					target, err := resolveTarget(s.shell, groupRef, commandRef)
					if err != nil {
						return err
					}
					patch.Target = target
				} else if commandRef != "" {
					target, err := resolveTarget(s.shell, sch.Target.TargetGroupID(), commandRef)
					if err != nil {
						return err
					}
					patch.Target = target
				}
				if cmd.Flags().Changed("max") {
					patch.MaxExecutions = &maxRuns
				}
				patch.ClearMax = clearMax
				return s.shell.Schedules.Update(ctx, sch.ID, patch)
			})
		},
	}
	pattern.register(edit)
	edit.Flags().UintVar(&maxRuns, "max", 0, "new run limit")
	edit.Flags().BoolVar(&clearMax, "clear-max", false, "remove the run limit")
	edit.Flags().StringVar(&groupRef, "group", "", "new target group")
	edit.Flags().StringVar(&commandRef, "command", "", "new target command (within --group, or the current group)")
	edit.MarkFlagsMutuallyExclusive("max", "clear-max")
	return edit
}

func newScheduleToggleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <schedule>",
		Short: "Pause an active schedule or resume a paused one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				sch, err := findSchedule(s.shell, args[0])
				if err != nil {
					return err
				}
				active, err := s.shell.Schedules.Toggle(ctx, sch.ID)
				if err != nil {
					return err
				}
				state := domain.SchedulePaused
				if active {
					state = domain.ScheduleActive
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sch.ID, state)
				return nil
			})
		},
	}
}

func newScheduleRmCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <schedule>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				sch, err := findSchedule(s.shell, args[0])
				if err != nil {
					return err
				}
				return s.shell.Schedules.Delete(ctx, sch.ID)
			})
		},
	}
}

func newScheduleValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <expression>",
		Short: "Check a cron expression and preview its next runs",
		Long: `Ask the server whether a six-field cron expression is valid and list
its next five fire times. The fields may be passed as separate arguments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.Join(args, " ")
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				v, err := s.shell.Schedules.Validate(ctx, expr)
				if err != nil {
					return err
				}
				printValidation(cmd.OutOrStdout(), expr, v, time.Now())
				if !v.IsValid {
					return &exitError{code: 1}
				}
				return nil
			})
		},
	}
}
