package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pagination bounds for list operations.
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

type TimeEntry struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	ProjectID       string     `json:"project_id"`
	Description     string     `json:"description,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`         // nil while the timer runs
	DurationSeconds *int64     `json:"duration_seconds,omitempty"` // nil while the timer runs
	IsBillable      bool       `json:"is_billable"`
	IsInvoiced      bool       `json:"is_invoiced"`
	IsActive        bool       `json:"is_active"` // false = soft deleted
	InvoiceID       *string    `json:"invoice_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewTimeEntry creates an active, billable entry starting at start
func NewTimeEntry(ownerID, projectID, description string, start, now time.Time) *TimeEntry {
	return &TimeEntry{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		ProjectID:   projectID,
		Description: strings.TrimSpace(description),
		StartTime:   Normalize(start),
		IsBillable:  true,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsRunning returns true if the entry has no end time
func (e *TimeEntry) IsRunning() bool {
	return e.EndTime == nil
}

// ComputedDuration is the stored duration when present, else end-start when
// both instants are known, else zero.
func (e *TimeEntry) ComputedDuration() int64 {
	if e.DurationSeconds != nil {
		return *e.DurationSeconds
	}
	if e.EndTime != nil {
		return DurationSeconds(e.StartTime, *e.EndTime)
	}
	return 0
}

// Elapsed returns the live duration of the entry as of now.
func (e *TimeEntry) Elapsed(now time.Time) int64 {
	if e.EndTime != nil {
		return e.ComputedDuration()
	}
	return DurationSeconds(e.StartTime, now)
}

// Stop ends a running entry at end, or at its start if end precedes it.
func (e *TimeEntry) Stop(end time.Time) {
	end = Normalize(end)
	if end.Before(e.StartTime) {
		end = e.StartTime
	}
	e.EndTime = &end
	e.Recompute()
	e.UpdatedAt = end
}

// Recompute keeps DurationSeconds in step with the start and end instants.
// Every mutation path that touches either instant calls it.
func (e *TimeEntry) Recompute() {
	if e.EndTime == nil {
		e.DurationSeconds = nil
		return
	}
	secs := DurationSeconds(e.StartTime, *e.EndTime)
	e.DurationSeconds = &secs
}

// Validate returns an error if the entry is invalid
func (e *TimeEntry) Validate() error {
	if e.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if e.ProjectID == "" {
		return fmt.Errorf("%w: project is required", ErrValidation)
	}
	if e.StartTime.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrValidation)
	}
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return fmt.Errorf("%w: end time must not precede start time", ErrValidation)
	}
	return nil
}

// EntryPatch is a partial update of a time entry. Nil fields are left alone.
type EntryPatch struct {
	ProjectID   *string    `json:"project_id,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	IsBillable  *bool      `json:"is_billable,omitempty"`

	// Reason is recorded in the entry history; it is not an entry field.
	Reason string `json:"reason,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p EntryPatch) IsEmpty() bool {
	return p.ProjectID == nil && p.Description == nil && p.StartTime == nil &&
		p.EndTime == nil && p.IsBillable == nil
}

// Apply copies the patch onto e and recomputes the duration.
func (p EntryPatch) Apply(e *TimeEntry) {
	if p.ProjectID != nil {
		e.ProjectID = *p.ProjectID
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.StartTime != nil {
		e.StartTime = Normalize(*p.StartTime)
	}
	if p.EndTime != nil {
		end := Normalize(*p.EndTime)
		e.EndTime = &end
	}
	if p.IsBillable != nil {
		e.IsBillable = *p.IsBillable
	}
	e.Recompute()
}

// EntryFilter narrows ListEntries. All set fields must match.
type EntryFilter struct {
	ProjectID  *string
	From       *time.Time // start_time >= From
	To         *time.Time // start_time < To
	IsBillable *bool
	IsInvoiced *bool
	Offset     int
	Limit      int
}

// Normalize clamps pagination to the allowed window.
func (f *EntryFilter) Normalize() error {
	return clampPage(&f.Offset, &f.Limit)
}

func clampPage(offset, limit *int) error {
	if *offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrValidation)
	}
	if *limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrValidation)
	}
	if *limit == 0 {
		*limit = DefaultListLimit
	}
	if *limit > MaxListLimit {
		return fmt.Errorf("%w: limit must be at most %d", ErrValidation, MaxListLimit)
	}
	return nil
}

// RunningTimer is the live view of an owner's running entry.
type RunningTimer struct {
	Entry          *TimeEntry `json:"entry"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
}
