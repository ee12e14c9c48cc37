package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ordito/internal/domain"
	"ordito/internal/usecase/shell"
)

// findGroup resolves a group by ID or, failing that, by case-insensitive title.
func findGroup(sh *shell.Shell, ref string) (domain.CommandGroup, error) {
	if g, ok := sh.Entities.Group(ref); ok {
		return g, nil
	}
	var match []domain.CommandGroup
	for _, g := range sh.Entities.Groups() {
		if strings.EqualFold(g.Title, ref) {
			match = append(match, g)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return domain.CommandGroup{}, domain.NewSubSystemError("group", "cli", domain.ErrNotFound, fmt.Sprintf("no group %q", ref))
	default:
		return domain.CommandGroup{}, domain.NewSubSystemError("group", "cli", domain.ErrInvalidInput,
			fmt.Sprintf("%d groups are titled %q, use the ID", len(match), ref))
	}
}

// findCommand resolves a command of g by ID or case-insensitive label.
func findCommand(g domain.CommandGroup, ref string) (domain.Command, error) {
	if c, _, ok := g.FindCommand(ref); ok {
		return c, nil
	}
	var match []domain.Command
	for _, c := range g.Commands {
		if strings.EqualFold(c.Label, ref) {
			match = append(match, c)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return domain.Command{}, domain.NewSubSystemError("command", "cli", domain.ErrNotFound,
			fmt.Sprintf("no command %q in group %q", ref, g.Title))
	default:
		return domain.Command{}, domain.NewSubSystemError("command", "cli", domain.ErrInvalidInput,
			fmt.Sprintf("%d commands are labeled %q, use the ID", len(match), ref))
	}
}

func newGroupsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List groups and their commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(_ context.Context, s *session) error {
				view := s.shell.View()
				printGroups(cmd.OutOrStdout(), view.Groups)
				printStats(cmd.OutOrStdout(), "", view.Stats)
				return nil
			})
		},
	}
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Show the groups and commands matching a query",
		Long: `Search matches the query case-insensitively against group titles and
command labels and lines. A group whose title matches is shown whole.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withSession(cmd, opts, func(_ context.Context, s *session) error {
				s.shell.Search.SetQuery(query)
				view := s.shell.View()
				printGroups(cmd.OutOrStdout(), view.Groups)
				printStats(cmd.OutOrStdout(), query, view.Stats)
				return nil
			})
		},
	}
}

func newGroupCmd(opts *globalOptions) *cobra.Command {
	group := &cobra.Command{
		Use:   "group",
		Short: "Create, rename and delete groups",
	}

	group.AddCommand(&cobra.Command{
		Use:   "add <title>",
		Short: "Create an empty group",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				id, err := s.shell.Entities.CreateGroup(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "rename <group> <title>",
		Short: "Change the title of a group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				g, err := findGroup(s.shell, args[0])
				if err != nil {
					return err
				}
				return s.shell.Entities.UpdateGroup(ctx, g.ID, strings.Join(args[1:], " "))
			})
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "rm <group>",
		Short: "Delete a group with its commands",
		Long: `Delete a group with its commands. Schedules that target the group are
deleted too unless schedules.orphan_policy is "keep".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				g, err := findGroup(s.shell, args[0])
				if err != nil {
					return err
				}
				return s.shell.DeleteGroup(ctx, g.ID)
			})
		},
	})

	return group
}

func newCommandCmd(opts *globalOptions) *cobra.Command {
	command := &cobra.Command{
		Use:   "command",
		Short: "Add, edit and delete the commands of a group",
	}

	var detached bool
	add := &cobra.Command{
		Use:   "add <group> <label> <command line>",
		Short: "Append a command to a group",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				g, err := findGroup(s.shell, args[0])
				if err != nil {
					return err
				}
				id, err := s.shell.Entities.AddCommand(ctx, g.ID, domain.CommandInput{
					Label:    args[1],
					Cmd:      strings.Join(args[2:], " "),
					Detached: detached,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	add.Flags().BoolVar(&detached, "detached", false, "start the command in the background instead of waiting for it")
	command.AddCommand(add)

	var (
		label, line string
		editDetach  bool
	)
	edit := &cobra.Command{
		Use:   "edit <group> <command>",
		Short: "Change the label, line or mode of a command",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				g, err := findGroup(s.shell, args[0])
				if err != nil {
					return err
				}
				c, err := findCommand(g, args[1])
				if err != nil {
					return err
				}
				in := c.Input()
				if cmd.Flags().Changed("label") {
					in.Label = label
				}
				if cmd.Flags().Changed("cmd") {
					in.Cmd = line
				}
				if cmd.Flags().Changed("detached") {
					in.Detached = editDetach
				}
				return s.shell.Entities.UpdateCommand(ctx, g.ID, c.ID, in)
			})
		},
	}
	edit.Flags().StringVar(&label, "label", "", "new label")
	edit.Flags().StringVar(&line, "cmd", "", "new command line")
	edit.Flags().BoolVar(&editDetach, "detached", false, "run in the background")
	command.AddCommand(edit)

	command.AddCommand(&cobra.Command{
		Use:   "rm <group> <command>",
		Short: "Delete a command",
		Long: `Delete a command. Schedules that target it are deleted too unless
schedules.orphan_policy is "keep".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				g, err := findGroup(s.shell, args[0])
				if err != nil {
					return err
				}
				c, err := findCommand(g, args[1])
				if err != nil {
					return err
				}
				return s.shell.DeleteCommand(ctx, g.ID, c.ID)
			})
		},
	})

	return command
}
