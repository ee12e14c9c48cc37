// Package cronui is the interactive cron expression editor behind
// 'ordito cron build -i'.
package cronui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ordito/internal/adapter/cli/theme"
	"ordito/internal/cronexpr"
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Left   key.Binding
	Right  key.Binding
	Toggle key.Binding
	All    key.Binding
	Reset  key.Binding
	Accept key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Left, k.Toggle, k.All, k.Reset, k.Accept, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultKeys() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "field")),
		Down:   key.NewBinding(key.WithKeys("down", "j")),
		Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/→", "value")),
		Right:  key.NewBinding(key.WithKeys("right", "l")),
		Toggle: key.NewBinding(key.WithKeys(" ", "space", "x"), key.WithHelp("space", "toggle")),
		All:    key.NewBinding(key.WithKeys("a", "*"), key.WithHelp("a", "every value")),
		Reset:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		Accept: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "done")),
		Quit:   key.NewBinding(key.WithKeys("esc", "q", "ctrl+c"), key.WithHelp("esc", "cancel")),
	}
}

var (
	focusStyle  = lipgloss.NewStyle().Foreground(theme.ColorAccent).Bold(true)
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	exprStyle   = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorInfo)
)

// Model edits a cronexpr.Builder one field at a time.
type Model struct {
	builder *cronexpr.Builder
	field   cronexpr.Field
	cursor  [cronexpr.FieldCount]int
	keys    keyMap
	help    help.Model

	accepted  bool
	cancelled bool
}

// New returns an editor over b. Value cursors start at each field's
// first selected value, or its minimum.
func New(b *cronexpr.Builder) Model {
	m := Model{builder: b, keys: defaultKeys(), help: help.New()}
	fs := b.Fields()
	for f := cronexpr.Second; f <= cronexpr.DayOfWeek; f++ {
		m.cursor[f] = f.Min()
		if vs := fs.Get(f); len(vs) > 0 && !fs.IsWildcard(f) {
			m.cursor[f] = vs[0]
		}
	}
	return m
}

// Expression returns the expression as edited so far.
func (m Model) Expression() string { return m.builder.String() }

// Accepted reports whether the user confirmed the expression.
func (m Model) Accepted() bool { return m.accepted }

// Cancelled reports whether the user left without confirming.
func (m Model) Cancelled() bool { return m.cancelled }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Accept):
			m.accepted = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.field = (m.field + cronexpr.FieldCount - 1) % cronexpr.FieldCount
		case key.Matches(msg, m.keys.Down):
			m.field = (m.field + 1) % cronexpr.FieldCount
		case key.Matches(msg, m.keys.Left):
			m.moveCursor(-1)
		case key.Matches(msg, m.keys.Right):
			m.moveCursor(1)
		case key.Matches(msg, m.keys.Toggle):
			m.toggle()
		case key.Matches(msg, m.keys.All):
			m.selectAll()
		case key.Matches(msg, m.keys.Reset):
			m.builder.Reset()
		}
	}
	return m, nil
}

func (m *Model) moveCursor(delta int) {
	f := m.field
	v := m.cursor[f] - f.Min() + delta
	v = (v%f.Size() + f.Size()) % f.Size()
	m.cursor[f] = v + f.Min()
}

// toggle flips the value under the cursor. On a wildcard multi-select
// field it selects just that value. A time field holds at most one value,
// so toggling its current value clears it.
func (m *Model) toggle() {
	f, v := m.field, m.cursor[m.field]
	if f.MultiSelect() {
		if m.builder.Fields().IsWildcard(f) {
			_ = setMulti(m.builder, f, v)
			return
		}
		_ = m.builder.Toggle(f, v)
		return
	}
	cur := m.builder.Fields().Get(f)
	if len(cur) == 1 && cur[0] == v {
		clearTime(m.builder, f)
		return
	}
	_ = setTime(m.builder, f, v)
}

// selectAll makes the focused field a wildcard.
func (m *Model) selectAll() {
	if m.field.MultiSelect() {
		m.builder.SelectAll(m.field)
		return
	}
	clearTime(m.builder, m.field)
}

func setTime(b *cronexpr.Builder, f cronexpr.Field, v int) error {
	switch f {
	case cronexpr.Second:
		return b.SetSecond(v)
	case cronexpr.Minute:
		return b.SetMinute(v)
	default:
		return b.SetHour(v)
	}
}

func setMulti(b *cronexpr.Builder, f cronexpr.Field, vs ...int) error {
	switch f {
	case cronexpr.DayOfMonth:
		return b.SetDays(vs...)
	case cronexpr.Month:
		return b.SetMonths(vs...)
	default:
		return b.SetWeekdays(vs...)
	}
}

func clearTime(b *cronexpr.Builder, f cronexpr.Field) {
	switch f {
	case cronexpr.Second:
		b.ClearSecond()
	case cronexpr.Minute:
		b.ClearMinute()
	default:
		b.ClearHour()
	}
}

// valueLabel names v the way the field is usually read.
func valueLabel(f cronexpr.Field, v int) string {
	switch f {
	case cronexpr.DayOfWeek:
		return cronexpr.WeekdayName(v)[:3]
	case cronexpr.Month:
		return cronexpr.MonthName(v)[:3]
	default:
		return strconv.Itoa(v)
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(theme.Bold.Render("Cron builder"))
	sb.WriteString("\n\n")

	fields := strings.Fields(m.builder.String())
	selected := m.builder.Fields()
	for f := cronexpr.Second; f <= cronexpr.DayOfWeek; f++ {
		marker, name := "  ", fmt.Sprintf("%-13s", f)
		if f == m.field {
			marker, name = focusStyle.Render("> "), focusStyle.Render(name)
		}
		fmt.Fprintf(&sb, "%s%s %-12s", marker, name, fields[f])

		if f == m.field {
			label := valueLabel(f, m.cursor[f])
			state := "off"
			if slices.Contains(selected.Get(f), m.cursor[f]) {
				state = "on"
			}
			fmt.Fprintf(&sb, " %s %s", cursorStyle.Render(" "+label+" "), theme.Dim.Render(state))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(exprStyle.Render(m.builder.String()))
	sb.WriteString("\n")
	sb.WriteString(theme.Dim.Render(m.builder.Describe()))
	sb.WriteString("\n\n")
	sb.WriteString(m.help.View(m.keys))
	sb.WriteString("\n")
	return sb.String()
}
