package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andy/timebill/internal/domain"
)

const entryColumns = `id, owner_id, project_id, description, start_time, end_time, duration_seconds,
	is_billable, is_invoiced, is_active, invoice_id, created_at, updated_at`

// EntryRepo is a SQLite implementation of TimeEntryRepository
type EntryRepo struct {
	db DBTX
}

// NewEntryRepo creates a new EntryRepo
func NewEntryRepo(q DBTX) *EntryRepo {
	return &EntryRepo{db: q}
}

// Create inserts a new time entry. The running-timer index turns a second
// running entry for the same owner into ErrTimerRunning.
func (r *EntryRepo) Create(ctx context.Context, entry *domain.TimeEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid time entry: %w", err)
	}

	query := `
		INSERT INTO time_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var durationSeconds any
	if entry.DurationSeconds != nil {
		durationSeconds = *entry.DurationSeconds
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.ProjectID,
		entry.Description,
		formatTime(entry.StartTime),
		nullableTime(entry.EndTime),
		durationSeconds,
		entry.IsBillable,
		entry.IsInvoiced,
		entry.IsActive,
		nullableString(entry.InvoiceID),
		formatTime(entry.CreatedAt),
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTimerRunning
		}
		return fmt.Errorf("failed to create time entry: %w", err)
	}

	return nil
}

// GetByID retrieves an active time entry owned by ownerID
func (r *EntryRepo) GetByID(ctx context.Context, ownerID, id string) (*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id = ? AND owner_id = ? AND is_active = 1`

	entry, err := scanTimeEntry(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("time entry", id)
		}
		return nil, fmt.Errorf("failed to get time entry: %w", err)
	}

	return entry, nil
}

// GetRunning returns the owner's running entry, or nil if there is none
func (r *EntryRepo) GetRunning(ctx context.Context, ownerID string) (*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
		WHERE owner_id = ? AND end_time IS NULL AND is_active = 1`

	entry, err := scanTimeEntry(r.db.QueryRowContext(ctx, query, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get running timer: %w", err)
	}

	return entry, nil
}

// Update writes the mutable fields of an uninvoiced, active entry
func (r *EntryRepo) Update(ctx context.Context, entry *domain.TimeEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid time entry: %w", err)
	}

	query := `
		UPDATE time_entries
		SET project_id = ?, description = ?, start_time = ?, end_time = ?, duration_seconds = ?,
		    is_billable = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND is_active = 1 AND is_invoiced = 0
	`

	var durationSeconds any
	if entry.DurationSeconds != nil {
		durationSeconds = *entry.DurationSeconds
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.ProjectID,
		entry.Description,
		formatTime(entry.StartTime),
		nullableTime(entry.EndTime),
		durationSeconds,
		entry.IsBillable,
		formatTime(entry.UpdatedAt),
		entry.ID,
		entry.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTimerRunning
		}
		return fmt.Errorf("failed to update time entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: time entry %s changed concurrently", domain.ErrConflict, entry.ID)
	}

	return nil
}

// SoftDelete marks an uninvoiced entry inactive
func (r *EntryRepo) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	query := `
		UPDATE time_entries
		SET is_active = 0, updated_at = ?
		WHERE id = ? AND owner_id = ? AND is_active = 1 AND is_invoiced = 0
	`

	result, err := r.db.ExecContext(ctx, query, formatTime(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete time entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("time entry", id)
	}

	return nil
}

// List retrieves active entries newest first, filtered and paginated
func (r *EntryRepo) List(ctx context.Context, ownerID string, filter domain.EntryFilter) ([]*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE owner_id = ? AND is_active = 1`
	args := []any{ownerID}

	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter.From != nil {
		query += " AND start_time >= ?"
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		query += " AND start_time < ?"
		args = append(args, formatTime(*filter.To))
	}
	if filter.IsBillable != nil {
		query += " AND is_billable = ?"
		args = append(args, *filter.IsBillable)
	}
	if filter.IsInvoiced != nil {
		query += " AND is_invoiced = ?"
		args = append(args, *filter.IsInvoiced)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}
	query += " ORDER BY start_time DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	return r.queryEntries(ctx, query, args...)
}

// ListUnbilled retrieves stopped, billable, uninvoiced entries oldest first
func (r *EntryRepo) ListUnbilled(ctx context.Context, ownerID string) ([]*domain.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries
		WHERE owner_id = ?
		  AND is_active = 1
		  AND is_billable = 1
		  AND is_invoiced = 0
		  AND end_time IS NOT NULL
		ORDER BY start_time`

	return r.queryEntries(ctx, query, ownerID)
}

// MarkInvoiced attaches an entry to an invoice. It fails with a conflict if
// the entry was invoiced or deleted since it was read.
func (r *EntryRepo) MarkInvoiced(ctx context.Context, ownerID, id, invoiceID string, at time.Time) error {
	query := `
		UPDATE time_entries
		SET is_invoiced = 1, invoice_id = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND is_active = 1 AND is_invoiced = 0
	`

	result, err := r.db.ExecContext(ctx, query, invoiceID, formatTime(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to mark entry %s invoiced: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for entry %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: time entry %s is already invoiced", domain.ErrConflict, id)
	}

	return nil
}

// ReleaseInvoice detaches every entry from invoiceID and returns how many
// entries were released.
func (r *EntryRepo) ReleaseInvoice(ctx context.Context, ownerID, invoiceID string, at time.Time) (int64, error) {
	query := `
		UPDATE time_entries
		SET is_invoiced = 0, invoice_id = NULL, updated_at = ?
		WHERE owner_id = ? AND invoice_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, formatTime(at), ownerID, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("failed to release entries of invoice %s: %w", invoiceID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// AddHistory stores audit records
func (r *EntryRepo) AddHistory(ctx context.Context, records []*domain.EntryHistory) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := r.db.PrepareContext(ctx, `
		INSERT INTO entry_history (entry_id, field_name, old_value, new_value, change_reason, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, h := range records {
		result, err := stmt.ExecContext(ctx, h.EntryID, h.FieldName, h.OldValue, h.NewValue, h.ChangeReason, formatTime(h.ChangedAt))
		if err != nil {
			return fmt.Errorf("failed to audit %s change: %w", h.FieldName, err)
		}
		if id, err := result.LastInsertId(); err == nil {
			h.ID = id
		}
	}

	return nil
}

// GetHistory retrieves the audit trail for a time entry
func (r *EntryRepo) GetHistory(ctx context.Context, entryID string) ([]*domain.EntryHistory, error) {
	query := `
		SELECT id, entry_id, field_name, old_value, new_value, change_reason, changed_at
		FROM entry_history
		WHERE entry_id = ?
		ORDER BY changed_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry history: %w", err)
	}
	defer rows.Close()

	history := make([]*domain.EntryHistory, 0)
	for rows.Next() {
		h := &domain.EntryHistory{}
		var oldValue, newValue sql.NullString
		var changedAt string

		err := rows.Scan(
			&h.ID,
			&h.EntryID,
			&h.FieldName,
			&oldValue,
			&newValue,
			&h.ChangeReason,
			&changedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}

		h.OldValue = oldValue.String
		h.NewValue = newValue.String
		if h.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("failed to parse changed_at: %w", err)
		}

		history = append(history, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return history, nil
}

func (r *EntryRepo) queryEntries(ctx context.Context, query string, args ...any) ([]*domain.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list time entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.TimeEntry, 0)
	for rows.Next() {
		entry, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}

	return entries, nil
}

// scanTimeEntry reads one row selected with entryColumns
func scanTimeEntry(row rowScanner) (*domain.TimeEntry, error) {
	entry := &domain.TimeEntry{}
	var startTime, createdAt, updatedAt string
	var endTime, invoiceID sql.NullString
	var durationSeconds sql.NullInt64

	err := row.Scan(
		&entry.ID,
		&entry.OwnerID,
		&entry.ProjectID,
		&entry.Description,
		&startTime,
		&endTime,
		&durationSeconds,
		&entry.IsBillable,
		&entry.IsInvoiced,
		&entry.IsActive,
		&invoiceID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entry.StartTime, err = parseTime(startTime); err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}
	if entry.EndTime, err = parseNullTime("end_time", endTime); err != nil {
		return nil, err
	}
	if durationSeconds.Valid {
		val := durationSeconds.Int64
		entry.DurationSeconds = &val
	}
	entry.InvoiceID = stringPtr(invoiceID)
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return entry, nil
}
