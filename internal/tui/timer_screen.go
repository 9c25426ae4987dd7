package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/service"
)

const recentEntries = 5

// Services is what the timer screen needs from the app
type Services struct {
	Timer   service.TimerService
	Entries service.EntryService
	Catalog service.CatalogService
	Clock   domain.Clock
	Owner   string
}

// tickTimer returns a command that sends tickMsg every second
func tickTimer() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// TimerModel lists projects and drives the owner's single running timer
type TimerModel struct {
	svc Services

	projects []*domain.Project
	cursor   int
	running  *domain.RunningTimer
	recent   []*domain.TimeEntry
	now      time.Time

	err       error
	statusMsg string
}

// NewTimerModel creates a new TimerModel
func NewTimerModel(svc Services) *TimerModel {
	return &TimerModel{svc: svc, now: svc.Clock.Now()}
}

// Init loads projects and timer state and starts the ticker
func (m *TimerModel) Init() tea.Cmd {
	return tea.Batch(m.loadProjects(), m.loadTimer(), tickTimer())
}

func (m *TimerModel) loadProjects() tea.Cmd {
	return func() tea.Msg {
		projects, err := m.svc.Catalog.ListProjects(context.Background(), m.svc.Owner)
		return projectsLoadedMsg{projects: projects, err: err}
	}
}

// loadTimer reads the running timer and the latest entries. The timer may
// have been started or stopped elsewhere, so this runs on every tick.
func (m *TimerModel) loadTimer() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		running, err := m.svc.Timer.Running(ctx, m.svc.Owner)
		if err != nil {
			return timerLoadedMsg{err: err}
		}

		recent, err := m.svc.Entries.List(ctx, m.svc.Owner, domain.EntryFilter{Limit: recentEntries})
		if err != nil {
			return timerLoadedMsg{err: err}
		}

		return timerLoadedMsg{running: running, recent: recent}
	}
}

func (m *TimerModel) startTimer(project *domain.Project) tea.Cmd {
	return func() tea.Msg {
		entry, err := m.svc.Timer.Start(context.Background(), m.svc.Owner, project.ID, "")
		if err != nil {
			return errorMsg{err: err}
		}
		return timerStartedMsg{entry: entry, project: project}
	}
}

func (m *TimerModel) stopTimer() tea.Cmd {
	return func() tea.Msg {
		entry, err := m.svc.Timer.Stop(context.Background(), m.svc.Owner)
		if err != nil {
			return errorMsg{err: err}
		}
		return timerStoppedMsg{entry: entry}
	}
}

// Update handles key events, loads and ticks
func (m *TimerModel) Update(msg tea.Msg) (*TimerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.now = time.Time(msg)
		return m, tea.Batch(m.loadTimer(), tickTimer())

	case projectsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.projects = msg.projects
		if m.cursor >= len(m.projects) {
			m.cursor = max(len(m.projects)-1, 0)
		}
		return m, nil

	case timerLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.running = msg.running
		m.recent = msg.recent
		return m, nil

	case timerStartedMsg:
		m.err = nil
		m.statusMsg = fmt.Sprintf("Timer started on %s", msg.project.Name)
		return m, m.loadTimer()

	case timerStoppedMsg:
		m.err = nil
		m.statusMsg = fmt.Sprintf("Entry saved: %s", formatHours(msg.entry.ComputedDuration()))
		return m, m.loadTimer()

	case errorMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		m.err = nil
		m.statusMsg = ""

		switch {
		case key.Matches(msg, DefaultKeyMap.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.cursor < len(m.projects)-1 {
				m.cursor++
			}
		case key.Matches(msg, DefaultKeyMap.Start):
			if len(m.projects) > 0 {
				return m, m.startTimer(m.projects[m.cursor])
			}
		case key.Matches(msg, DefaultKeyMap.Stop):
			return m, m.stopTimer()
		case key.Matches(msg, DefaultKeyMap.Refresh):
			return m, tea.Batch(m.loadProjects(), m.loadTimer())
		}
	}

	return m, nil
}

func (m *TimerModel) projectByID(id string) *domain.Project {
	for _, p := range m.projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// View renders the timer screen
func (m *TimerModel) View() string {
	var b strings.Builder

	if m.running != nil {
		entry := m.running.Entry
		elapsed := entry.Elapsed(m.now)

		b.WriteString(fmt.Sprintf("State: %s\n", timerRunningStyle.Render("RUNNING")))
		project := m.projectByID(entry.ProjectID)
		if project != nil {
			b.WriteString(fmt.Sprintf("Project: %s (%s/hr)\n", project.Name, formatMoney(project.HourlyRate)))
		}
		if entry.Description != "" {
			b.WriteString(fmt.Sprintf("Description: %s\n", entry.Description))
		}
		b.WriteString(fmt.Sprintf("Started: %s\n", entry.StartTime.Local().Format("2006-01-02 15:04:05")))
		b.WriteString(fmt.Sprintf("Elapsed: %s\n", titleStyle.Render(formatClock(elapsed))))
		if project != nil {
			value := domain.LineAmount(domain.HoursFromSeconds(elapsed), project.HourlyRate)
			b.WriteString(fmt.Sprintf("Value accrued: %s\n", timerValueStyle.Render(formatMoney(value))))
		}
	} else {
		b.WriteString(fmt.Sprintf("State: %s\n", timerIdleStyle.Render("IDLE")))
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("Error: "+m.err.Error()) + "\n")
	} else if m.statusMsg != "" {
		b.WriteString("\n" + statusStyle.Render(m.statusMsg) + "\n")
	}

	b.WriteString("\n" + titleStyle.Render("Projects") + "\n")
	if len(m.projects) == 0 {
		b.WriteString(subtitleStyle.Render("No projects. Add one with `timebill projects add`.") + "\n")
	}
	for i, p := range m.projects {
		line := fmt.Sprintf(" %-30s %12s/hr ", truncateStr(p.Name, 30), formatMoney(p.HourlyRate))
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + titleStyle.Render("Recent entries") + "\n")
	if len(m.recent) == 0 {
		b.WriteString(subtitleStyle.Render("No entries yet") + "\n")
	}
	for _, e := range m.recent {
		duration := "running"
		if !e.IsRunning() {
			duration = formatHours(e.ComputedDuration())
		}
		name := "-"
		if p := m.projectByID(e.ProjectID); p != nil {
			name = p.Name
		}
		b.WriteString(fmt.Sprintf(" %s  %-20s %-8s %s\n",
			e.StartTime.Local().Format("01-02 15:04"),
			truncateStr(name, 20),
			duration,
			subtitleStyle.Render(truncateStr(e.Description, 30)),
		))
	}

	return b.String()
}
