// Package tui renders a live pipeline dashboard. It consumes the same event
// stream as the JSONL sink, so interactive and headless consumers see
// identical information.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aetherlens/internal/events"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errLogStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// eventMsg wraps a pipeline event for the bubbletea update loop.
type eventMsg struct {
	event events.Event
}

// testRow is the dashboard state for one test.
type testRow struct {
	label    string
	kind     string
	status   string // "running", or a terminal events.Status
	progress string
	err      string
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	target string
	order  []string
	rows   map[string]*testRow
	logs   []string
	done   bool
}

// NewModel creates a dashboard for a run against target.
func NewModel(target string) Model {
	return Model{
		target: target,
		rows:   make(map[string]*testRow),
	}
}

// Sink adapts a running tea.Program into an event sink. Delivery happens on
// the program's own goroutine via Send.
func Sink(p *tea.Program) events.CallbackSink {
	return func(ev events.Event) {
		p.Send(eventMsg{event: ev})
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case eventMsg:
		m.apply(msg.event)
		if m.done {
			return m, tea.Quit
		}
	}
	return m, nil
}

// apply folds one pipeline event into the dashboard state.
func (m *Model) apply(ev events.Event) {
	switch ev := ev.(type) {
	case events.TestStarted:
		if _, seen := m.rows[ev.Label]; !seen {
			m.order = append(m.order, ev.Label)
		}
		m.rows[ev.Label] = &testRow{label: ev.Label, kind: ev.Kind, status: "running"}
	case events.TestProgress:
		if row, ok := m.rows[ev.Label]; ok {
			row.progress = ev.StatusText
		}
	case events.TestFinished:
		if row, ok := m.rows[ev.Label]; ok {
			row.status = string(ev.Status)
			row.err = ev.Error
			row.progress = ""
		}
	case events.LogEvent:
		line := ev.Message
		if ev.Level == events.LevelError {
			line = errLogStyle.Render(line)
		} else {
			line = logStyle.Render(line)
		}
		m.logs = append(m.logs, line)
		if len(m.logs) > 8 {
			m.logs = m.logs[len(m.logs)-8:]
		}
	case events.ResultEvent:
		m.done = true
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("aether-lens · %s", m.target)))
	b.WriteString("\n\n")

	for _, label := range m.order {
		row := m.rows[label]
		b.WriteString(fmt.Sprintf("  %s %s", statusBadge(row.status), row.label))
		if row.progress != "" {
			b.WriteString(runningStyle.Render("  " + row.progress))
		}
		if row.err != "" {
			b.WriteString(failedStyle.Render("  " + firstLine(row.err)))
		}
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, line := range m.logs {
			b.WriteString("  " + line + "\n")
		}
	}
	b.WriteString("\n  press q to quit\n")
	return b.String()
}

// statusBadge renders the colored status marker for a row.
func statusBadge(status string) string {
	switch status {
	case string(events.StatusPassed):
		return passedStyle.Render("PASS")
	case string(events.StatusFailed):
		return failedStyle.Render("FAIL")
	case string(events.StatusSkipped):
		return skippedStyle.Render("SKIP")
	default:
		return runningStyle.Render(" .. ")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
