// Package theme holds the styles the CLI renders groups, schedules and
// execution records with. Colors adapt to light and dark terminals.
//
// NO_COLOR (https://no-color.org/) is respected by lipgloss through its
// color profile detection, and output to a pipe is never colored.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"ordito/internal/domain"
)

var (
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	TextError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)
	TextInfo    = lipgloss.NewStyle().Foreground(ColorInfo)
	TextAccent  = lipgloss.NewStyle().Foreground(ColorAccent)
	TextMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
)

var (
	GroupTitle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	CommandLine = lipgloss.NewStyle().
			Foreground(ColorInfo)

	ErrorTitle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	Timestamp = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Faint(true)
)

// Summary styles an execution summary: green when everything succeeded,
// red when everything failed and amber in between.
func Summary(s domain.ExecutionSummary) string {
	switch s {
	case domain.SummaryAllSuccess:
		return TextSuccess.Render(SymbolSuccess + " " + string(s))
	case domain.SummaryAllFailure:
		return TextError.Render(SymbolError + " " + string(s))
	default:
		return TextWarning.Render(SymbolWarning + " " + string(s))
	}
}

// State styles a schedule lifecycle state.
func State(s domain.ScheduleState) string {
	switch s {
	case domain.ScheduleActive:
		return TextSuccess.Render(string(s))
	case domain.ScheduleExhausted:
		return TextMuted.Render(string(s))
	default:
		return TextWarning.Render(string(s))
	}
}

// Entry returns the status symbol of one execution entry.
func Entry(failed bool) string {
	if failed {
		return TextError.Render(SymbolError)
	}
	return TextSuccess.Render(SymbolSuccess)
}
