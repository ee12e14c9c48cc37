package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ordito/internal/adapter/cli/theme"
	"ordito/internal/domain"
	"ordito/internal/usecase/search"
)

// exitError ends the process with code without printing anything more;
// the command already reported the failure.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func relTime(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func printGroups(w io.Writer, groups []domain.CommandGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, theme.Dim.Render("no groups"))
		return
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%s %s\n", theme.GroupTitle.Render(g.Title), theme.Dim.Render("("+g.ID+")"))
		for _, c := range g.Commands {
			mode := ""
			if c.Detached {
				mode = " " + theme.TextMuted.Render("[detached]")
			}
			fmt.Fprintf(w, "  %s %s %s %s%s %s\n",
				theme.SymbolBullet, c.Label, theme.SymbolArrowR, theme.CommandLine.Render(c.Cmd), mode,
				theme.Dim.Render("("+c.ID+")"))
		}
	}
}

func printStats(w io.Writer, query string, stats search.Stats) {
	if !stats.IsSearching {
		fmt.Fprintf(w, "%s groups, %s commands\n",
			humanize.Comma(int64(stats.TotalGroups)), humanize.Comma(int64(stats.TotalCommands)))
		return
	}
	if !stats.HasResults {
		fmt.Fprintf(w, "no matches for %q\n", query)
		return
	}
	fmt.Fprintf(w, "%q matched %d of %d groups and %d of %d commands\n",
		query, stats.FoundGroups, stats.TotalGroups, stats.FoundCommands, stats.TotalCommands)
}

func printRecord(w io.Writer, rec domain.ExecutionRecord) {
	fmt.Fprintf(w, "%s  %s  %s\n",
		theme.Bold.Render(rec.Label), theme.Summary(rec.Summary()),
		theme.Timestamp.Render(rec.CreatedAt.Format(time.DateTime)))
	for _, e := range rec.Entries {
		if e.Failed {
			fmt.Fprintf(w, "%s %s: %s\n", theme.Entry(true), e.Label, e.Text())
			continue
		}
		fmt.Fprintf(w, "%s %s\n", theme.Entry(false), e.Label)
		if out := strings.TrimRight(e.Output, "\n"); out != "" {
			for _, line := range strings.Split(out, "\n") {
				fmt.Fprintln(w, "    "+line)
			}
		}
	}
	fmt.Fprintf(w, "%d succeeded, %d failed\n", rec.SuccessCount(), rec.ErrorCount())
}

func printSchedules(w io.Writer, infos []domain.ScheduleInfo, now time.Time) {
	if len(infos) == 0 {
		fmt.Fprintln(w, theme.Dim.Render("no schedules"))
		return
	}
	for _, info := range infos {
		name := info.DisplayName
		if info.Orphaned {
			name = theme.TextWarning.Render(name)
		}
		fmt.Fprintf(w, "%s  %s  %s\n", theme.Dim.Render(info.ID), theme.State(info.State()), name)

		count := humanize.Comma(int64(info.ExecutionCount))
		if info.MaxExecutions != nil {
			count += " / " + humanize.Comma(int64(*info.MaxExecutions))
		}
		next := "-"
		if info.State() == domain.ScheduleActive && !info.NextExecution.IsZero() {
			next = relTime(info.NextExecution, now)
		}
		last := "never"
		if info.LastExecution != nil {
			last = relTime(*info.LastExecution, now)
		}
		fmt.Fprintf(w, "    next %s, last %s, runs %s\n", next, last, count)
	}
}

func printValidation(w io.Writer, expr string, v domain.CronValidation, now time.Time) {
	if !v.IsValid {
		fmt.Fprintf(w, "%s %s: %s\n", theme.Entry(true), expr, v.ErrorMessage)
		return
	}
	fmt.Fprintf(w, "%s %s\n", theme.Entry(false), expr)
	for _, t := range v.NextExecutions {
		fmt.Fprintf(w, "    %s  %s\n", t.Format(time.DateTime), theme.Dim.Render(relTime(t, now)))
	}
}
