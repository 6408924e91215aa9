// Package progress renders a live terminal view of one model's batch,
// fed by the dispatcher's event stream.
package progress

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/postsim/internal/dispatch"
	"github.com/san-kum/postsim/internal/report"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type eventMsg dispatch.Event

type doneMsg struct{}

// Model is the bubbletea state for one batch run.
type Model struct {
	name   string
	op     string
	total  int
	events <-chan dispatch.Event

	ok      int
	skipped int
	failed  int
	last    string
	width   int
}

func New(name, op string, total int, events <-chan dispatch.Event) Model {
	return Model{name: name, op: op, total: total, events: events, width: 80}
}

func waitForEvent(ch <-chan dispatch.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd { return waitForEvent(m.events) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			// The dispatcher keeps sending until its channel closes;
			// leaving early must not block it.
			if m.events != nil {
				go func(ch <-chan dispatch.Event) {
					for range ch {
					}
				}(m.events)
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case eventMsg:
		switch msg.Status {
		case report.OK:
			m.ok++
			m.last = fmt.Sprintf("t=%g done", msg.Item.Time)
		case report.Skipped:
			m.skipped++
			m.last = fmt.Sprintf("t=%g skipped", msg.Item.Time)
		case report.Failed:
			m.failed++
			m.last = fmt.Sprintf("t=%g failed: %v", msg.Item.Time, msg.Err)
		}
		return m, waitForEvent(m.events)
	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) resolved() int { return m.ok + m.skipped + m.failed }

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(cyan.Render(m.name))
	b.WriteString(dim.Render(" · " + m.op))
	b.WriteString("\n\n")

	barWidth := m.width - 20
	if barWidth < 10 {
		barWidth = 10
	}
	frac := 0.0
	if m.total > 0 {
		frac = float64(m.resolved()) / float64(m.total)
	}
	filled := int(frac * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	b.WriteString(fmt.Sprintf("  %s %d/%d\n\n", cyan.Render(bar), m.resolved(), m.total))

	b.WriteString(fmt.Sprintf("  %s %d  %s %d  %s %d\n",
		green.Render("ok"), m.ok,
		yellow.Render("skipped"), m.skipped,
		red.Render("failed"), m.failed))

	if m.last != "" {
		b.WriteString("\n  " + dim.Render(m.last) + "\n")
	}
	return b.String()
}
