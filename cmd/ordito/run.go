package main

import (
	"context"

	"github.com/spf13/cobra"

	"ordito/internal/domain"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		line     string
		detached bool
	)
	run := &cobra.Command{
		Use:   "run [group] [command]",
		Short: "Run a group, one of its commands, or an ad-hoc line",
		Long: `Run every command of a group in order, or a single command of it.
With --line, run an ad-hoc command line instead. The outcome is printed
with a summary; the exit status is 1 when any command failed.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if line == "" && len(args) == 0 {
				return cmd.Usage()
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				var (
					rec domain.ExecutionRecord
					err error
				)
				switch {
				case line != "":
					rec, err = s.shell.Executor.RunCommandLine(ctx, "ad-hoc", line, detached)
				case len(args) == 1:
					g, ferr := findGroup(s.shell, args[0])
					if ferr != nil {
						return ferr
					}
					rec, err = s.shell.Executor.RunGroup(ctx, g.ID)
				default:
					g, ferr := findGroup(s.shell, args[0])
					if ferr != nil {
						return ferr
					}
					c, ferr := findCommand(g, args[1])
					if ferr != nil {
						return ferr
					}
					rec, err = s.shell.Executor.RunCommand(ctx, g.ID, c.ID)
				}

				// A rejected or failed run still has a record to show.
				if rec.ID == "" {
					return err
				}
				printRecord(cmd.OutOrStdout(), rec)
				if rec.ErrorCount() > 0 {
					return &exitError{code: 1}
				}
				return nil
			})
		},
	}
	run.Flags().StringVar(&line, "line", "", "run this command line instead of a stored command")
	run.Flags().BoolVar(&detached, "detached", false, "with --line, start it in the background")
	return run
}
