package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/metrics"
	"github.com/andy/timebill/internal/repository"
)

// EntryService manages time entries outside the timer, with an audit trail
// of every edit.
type EntryService interface {
	// Create records a finished entry between start and end
	Create(ctx context.Context, ownerID, projectID, description string, start, end time.Time, billable bool) (*domain.TimeEntry, error)

	// CreateFromDuration records a finished entry of durationSeconds starting at start
	CreateFromDuration(ctx context.Context, ownerID, projectID, description string, start time.Time, durationSeconds int64, billable bool) (*domain.TimeEntry, error)

	Get(ctx context.Context, ownerID, id string) (*domain.TimeEntry, error)

	// Update applies patch; invoiced entries are immutable
	Update(ctx context.Context, ownerID, id string, patch domain.EntryPatch) (*domain.TimeEntry, error)

	// Delete soft-deletes an uninvoiced entry
	Delete(ctx context.Context, ownerID, id, reason string) error

	// List returns entries newest first
	List(ctx context.Context, ownerID string, filter domain.EntryFilter) ([]*domain.TimeEntry, error)

	// History returns the audit trail of an entry, newest change first
	History(ctx context.Context, ownerID, id string) ([]*domain.EntryHistory, error)
}

type entryService struct {
	store repository.Store
	clock domain.Clock
}

// NewEntryService creates a new entry service
func NewEntryService(store repository.Store, clock domain.Clock) EntryService {
	return &entryService{store: store, clock: clock}
}

func (s *entryService) Create(
	ctx context.Context,
	ownerID, projectID, description string,
	start, end time.Time,
	billable bool,
) (*domain.TimeEntry, error) {
	return s.create(ctx, ownerID, projectID, description, start, end, billable, "manual")
}

func (s *entryService) create(
	ctx context.Context,
	ownerID, projectID, description string,
	start, end time.Time,
	billable bool,
	source string,
) (*domain.TimeEntry, error) {
	start, end = domain.Normalize(start), domain.Normalize(end)
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end time %s must be after start time %s", domain.ErrValidation,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	now := s.clock.Now()
	entry := domain.NewTimeEntry(ownerID, projectID, description, start, now)
	entry.IsBillable = billable
	entry.EndTime = &end
	entry.Recompute()

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Projects().GetByID(ctx, ownerID, projectID); err != nil {
			return err
		}
		return tx.Entries().Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	metrics.EntriesCreated.WithLabelValues(source).Inc()
	return entry, nil
}

// maxDurationSeconds is the longest span time.Duration can hold
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

func (s *entryService) CreateFromDuration(
	ctx context.Context,
	ownerID, projectID, description string,
	start time.Time,
	durationSeconds int64,
	billable bool,
) (*domain.TimeEntry, error) {
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %ds", domain.ErrValidation, durationSeconds)
	}
	if durationSeconds > maxDurationSeconds {
		return nil, fmt.Errorf("%w: duration %ds is too large", domain.ErrValidation, durationSeconds)
	}
	end := start.Add(time.Duration(durationSeconds) * time.Second)
	return s.create(ctx, ownerID, projectID, description, start, end, billable, "duration")
}

func (s *entryService) Get(ctx context.Context, ownerID, id string) (*domain.TimeEntry, error) {
	return s.store.Entries().GetByID(ctx, ownerID, id)
}

func (s *entryService) Update(ctx context.Context, ownerID, id string, patch domain.EntryPatch) (*domain.TimeEntry, error) {
	var entry *domain.TimeEntry
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Entries().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if current.IsInvoiced {
			return invoicedConflict(current)
		}
		if patch.IsEmpty() {
			entry = current
			return nil
		}
		if patch.ProjectID != nil {
			if _, err := tx.Projects().GetByID(ctx, ownerID, *patch.ProjectID); err != nil {
				return err
			}
		}

		before := *current
		patch.Apply(current)
		if err := current.Validate(); err != nil {
			return err
		}
		if (patch.StartTime != nil || patch.EndTime != nil) && current.EndTime != nil &&
			!current.EndTime.After(current.StartTime) {
			return fmt.Errorf("%w: end time must be after start time", domain.ErrValidation)
		}

		now := s.clock.Now()
		current.UpdatedAt = now
		if err := tx.Entries().Update(ctx, current); err != nil {
			return err
		}

		changes := domain.DiffEntries(&before, current)
		for _, c := range changes {
			c.ChangeReason = patch.Reason
			c.ChangedAt = now
		}
		if err := tx.Entries().AddHistory(ctx, changes); err != nil {
			return err
		}

		entry = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *entryService) Delete(ctx context.Context, ownerID, id, reason string) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		entry, err := tx.Entries().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if entry.IsInvoiced {
			return invoicedConflict(entry)
		}

		now := s.clock.Now()
		if err := tx.Entries().SoftDelete(ctx, ownerID, id, now); err != nil {
			return err
		}
		return tx.Entries().AddHistory(ctx, []*domain.EntryHistory{{
			EntryID:      id,
			FieldName:    "is_active",
			OldValue:     "true",
			NewValue:     "false",
			ChangeReason: reason,
			ChangedAt:    now,
		}})
	})
	if err != nil {
		return err
	}

	log.Printf("[entries] deleted entry %s", id)
	return nil
}

func (s *entryService) List(ctx context.Context, ownerID string, filter domain.EntryFilter) ([]*domain.TimeEntry, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	return s.store.Entries().List(ctx, ownerID, filter)
}

func (s *entryService) History(ctx context.Context, ownerID, id string) ([]*domain.EntryHistory, error) {
	// Ownership check; history rows carry no owner of their own.
	if _, err := s.store.Entries().GetByID(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.Entries().GetHistory(ctx, id)
}

func invoicedConflict(entry *domain.TimeEntry) error {
	invoice := "an invoice"
	if entry.InvoiceID != nil {
		invoice = "invoice " + *entry.InvoiceID
	}
	return fmt.Errorf("%w: time entry %s is locked to %s", domain.ErrConflict, entry.ID, invoice)
}
