package tui

import (
	"time"

	"github.com/andy/timebill/internal/domain"
)

// tickMsg drives the live elapsed display
type tickMsg time.Time

// projectsLoadedMsg carries the owner's active projects
type projectsLoadedMsg struct {
	projects []*domain.Project
	err      error
}

// timerLoadedMsg carries the running timer, nil when idle, and recent entries
type timerLoadedMsg struct {
	running *domain.RunningTimer
	recent  []*domain.TimeEntry
	err     error
}

// timerStartedMsg and timerStoppedMsg report the outcome of a key action
type timerStartedMsg struct {
	entry   *domain.TimeEntry
	project *domain.Project
}

type timerStoppedMsg struct {
	entry *domain.TimeEntry
}

// errorMsg carries an action failure
type errorMsg struct {
	err error
}
