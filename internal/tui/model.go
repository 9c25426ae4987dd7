package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/timebill/internal/app"
)

// Model is the root Bubble Tea model: a bordered frame around the timer
// screen with a key help footer.
type Model struct {
	timer  *TimerModel
	help   help.Model
	width  int
	height int
}

// New creates a new root model
func New(svc Services) Model {
	return Model{
		timer: NewTimerModel(svc),
		help:  help.New(),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.timer.Init()
}

// Update implements tea.Model. Quitting leaves a running timer running; it
// is persisted and can be stopped later from the CLI.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, DefaultKeyMap.Quit) {
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.timer, cmd = m.timer.Update(msg)
	return m, cmd
}

// View implements tea.Model - renders header + timer screen + footer
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Render("timebill - Timer")
	footer := m.help.View(DefaultKeyMap)

	innerWidth := m.width - 6 // account for border (2) + padding (4)
	if innerWidth < 20 {
		innerWidth = 20
	}
	dividerWidth := innerWidth - 12
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := lipgloss.NewStyle().Foreground(borderColor).Render(strings.Repeat("─", dividerWidth))

	body := fmt.Sprintf("%s\n%s\n\n%s\n%s\n%s", header, divider, m.timer.View(), divider, footer)

	frame := appBorderStyle.
		Width(innerWidth).
		Height(m.height - 4) // leave room for border top/bottom
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, frame.Render(body))
}

// Run starts the TUI for the app's local owner
func Run(a *app.App) error {
	svc := Services{
		Timer:   a.Timer,
		Entries: a.Entries,
		Catalog: a.Catalog,
		Clock:   a.Clock,
		Owner:   a.Owner(),
	}
	p := tea.NewProgram(New(svc), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
