package main

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ordito/internal/adapter/cli/cronui"
	"ordito/internal/adapter/cli/theme"
	"ordito/internal/cronexpr"
	"ordito/internal/domain"
)

func newCronCmd() *cobra.Command {
	cron := &cobra.Command{
		Use:   "cron",
		Short: "Compose and explain six-field cron expressions",
		Long: `Compose and explain cron expressions offline. Fields are
second minute hour day-of-month month day-of-week, and the builder only
produces "*", single values and comma lists.`,
	}
	cron.AddCommand(newCronBuildCmd(), newCronDescribeCmd(), newCronPresetsCmd())
	return cron
}

// cronBuildFlags holds one raw flag value per field. "*" selects every value.
type cronBuildFlags struct {
	interactive bool
	from        string
	second      string
	minute      string
	hour        string
	days        string
	months      string
	weekdays    string
}

func newCronBuildCmd() *cobra.Command {
	var f cronBuildFlags
	build := &cobra.Command{
		Use:   "build",
		Short: "Build an expression field by field",
		Example: `  ordito cron build --hour 9 --weekdays 1,2,3,4,5
  ordito cron build --from "0 0 9 * * 1" --minute 30
  ordito cron build -i`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := f.apply(cmd)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			if f.interactive {
				ok, err := editInteractively(cmd, b)
				if err != nil || !ok {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, b.String())
			fmt.Fprintln(out, theme.Dim.Render(b.Describe()))
			return nil
		},
	}
	build.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "edit the expression in the terminal, starting from the flags")
	build.Flags().StringVar(&f.from, "from", "", "start from this expression instead of "+strconv.Quote(cronexpr.DefaultExpression))
	build.Flags().StringVar(&f.second, "second", "", `second 0-59, or "*"`)
	build.Flags().StringVar(&f.minute, "minute", "", `minute 0-59, or "*"`)
	build.Flags().StringVar(&f.hour, "hour", "", `hour 0-23, or "*"`)
	build.Flags().StringVar(&f.days, "days", "", `days of month 1-31 as a comma list, or "*"`)
	build.Flags().StringVar(&f.months, "months", "", `months 1-12 as a comma list, or "*"`)
	build.Flags().StringVar(&f.weekdays, "weekdays", "", `weekdays 0-6 (0 = Sunday) as a comma list, or "*"`)
	return build
}

// apply builds the expression, touching only the fields whose flag was set.
func (f *cronBuildFlags) apply(cmd *cobra.Command) (*cronexpr.Builder, error) {
	b := cronexpr.NewBuilder()
	if f.from != "" {
		var err error
		if b, err = cronexpr.FromExpression(f.from); err != nil {
			return nil, err
		}
	}

	singles := []struct {
		flag  string
		value string
		set   func(int) error
		clear func()
	}{
		{"second", f.second, b.SetSecond, b.ClearSecond},
		{"minute", f.minute, b.SetMinute, b.ClearMinute},
		{"hour", f.hour, b.SetHour, b.ClearHour},
	}
	for _, s := range singles {
		if !cmd.Flags().Changed(s.flag) {
			continue
		}
		if s.value == cronexpr.Wildcard {
			s.clear()
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(s.value))
		if err != nil {
			return nil, fmt.Errorf("--%s: %q is not a number", s.flag, s.value)
		}
		if err := s.set(v); err != nil {
			return nil, err
		}
	}

	multis := []struct {
		flag  string
		value string
		set   func(...int) error
	}{
		{"days", f.days, b.SetDays},
		{"months", f.months, b.SetMonths},
		{"weekdays", f.weekdays, b.SetWeekdays},
	}
	for _, m := range multis {
		if !cmd.Flags().Changed(m.flag) {
			continue
		}
		if m.value == cronexpr.Wildcard {
			m.set()
			continue
		}
		values, err := parseIntList(m.value)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", m.flag, err)
		}
		if err := m.set(values...); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// editInteractively runs the terminal editor over b. It reports false when
// the user cancelled.
func editInteractively(cmd *cobra.Command, b *cronexpr.Builder) (bool, error) {
	p := tea.NewProgram(cronui.New(b),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.ErrOrStderr()),
	)
	result, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("cron editor: %w", err)
	}
	m, ok := result.(cronui.Model)
	if !ok {
		return false, fmt.Errorf("cron editor: unexpected result %T", result)
	}
	if m.Cancelled() {
		fmt.Fprintln(cmd.ErrOrStderr(), "cancelled")
		return false, nil
	}
	return true, nil
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func newCronDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <expression>",
		Short: "Explain an expression in words",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.Join(args, " ")
			fs, err := cronexpr.Parse(expr)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cronexpr.Serialize(fs))
			fmt.Fprintln(cmd.OutOrStdout(), theme.Dim.Render(cronexpr.Describe(fs)))
			return nil
		},
	}
}

func newCronPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in expressions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for i, p := range cronexpr.Presets {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-22s %s\n", i+1, p.Expression, p.Name)
			}
		},
	}
}
