package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/metrics"
	"github.com/andy/timebill/internal/repository"
)

var (
	ErrTimerAlreadyRunning = repository.ErrTimerRunning
	ErrNoActiveTimer       = fmt.Errorf("%w: no running timer", domain.ErrNotFound)
)

// TimerService starts and stops the owner's single running entry
type TimerService interface {
	// Start opens a new running entry on projectID
	Start(ctx context.Context, ownerID, projectID, description string) (*domain.TimeEntry, error)

	// Stop closes the running entry at the current instant
	Stop(ctx context.Context, ownerID string) (*domain.TimeEntry, error)

	// Running returns the running entry with its live elapsed time, or nil
	Running(ctx context.Context, ownerID string) (*domain.RunningTimer, error)
}

type timerService struct {
	store repository.Store
	clock domain.Clock
}

// NewTimerService creates a new timer service
func NewTimerService(store repository.Store, clock domain.Clock) TimerService {
	return &timerService{store: store, clock: clock}
}

func (s *timerService) Start(ctx context.Context, ownerID, projectID, description string) (*domain.TimeEntry, error) {
	var entry *domain.TimeEntry
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Projects().GetByID(ctx, ownerID, projectID); err != nil {
			return err
		}

		now := s.clock.Now()
		entry = domain.NewTimeEntry(ownerID, projectID, description, now, now)

		// The partial unique index makes this insert the atomic check.
		err := tx.Entries().Create(ctx, entry)
		if errors.Is(err, repository.ErrTimerRunning) {
			return s.runningConflict(ctx, tx, ownerID)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrTimerAlreadyRunning) {
			metrics.TimerStartConflicts.Inc()
		}
		return nil, err
	}

	metrics.TimerStarted.Inc()
	metrics.EntriesCreated.WithLabelValues("timer").Inc()
	log.Printf("[timer] started entry %s on project %s", entry.ID, projectID)
	return entry, nil
}

// runningConflict names the project of the timer that blocked a start.
func (s *timerService) runningConflict(ctx context.Context, tx repository.Store, ownerID string) error {
	running, err := tx.Entries().GetRunning(ctx, ownerID)
	if err != nil || running == nil {
		return ErrTimerAlreadyRunning
	}

	name := running.ProjectID
	if project, err := tx.Projects().GetByID(ctx, ownerID, running.ProjectID); err == nil {
		name = project.Name
	}
	return fmt.Errorf("%w (entry %s on %s since %s)", ErrTimerAlreadyRunning,
		running.ID, name, running.StartTime.Format("15:04:05"))
}

func (s *timerService) Stop(ctx context.Context, ownerID string) (*domain.TimeEntry, error) {
	var entry *domain.TimeEntry
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		running, err := tx.Entries().GetRunning(ctx, ownerID)
		if err != nil {
			return err
		}
		if running == nil {
			return ErrNoActiveTimer
		}

		running.Stop(s.clock.Now())
		if err := tx.Entries().Update(ctx, running); err != nil {
			return err
		}
		entry = running
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TimerStopped.Inc()
	log.Printf("[timer] stopped entry %s after %ds", entry.ID, entry.ComputedDuration())
	return entry, nil
}

func (s *timerService) Running(ctx context.Context, ownerID string) (*domain.RunningTimer, error) {
	entry, err := s.store.Entries().GetRunning(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	return &domain.RunningTimer{
		Entry:          entry,
		ElapsedSeconds: entry.Elapsed(s.clock.Now()),
	}, nil
}
