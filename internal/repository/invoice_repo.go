package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andy/timebill/internal/domain"
)

const invoiceColumns = `id, owner_id, client_id, invoice_number, status, issue_date, due_date,
	subtotal, tax_rate, tax_amount, total, notes, payment_terms, paid_at, is_active, created_at, updated_at`

// InvoiceRepo is a SQLite implementation of InvoiceRepository
type InvoiceRepo struct {
	db DBTX
}

// NewInvoiceRepo creates a new InvoiceRepo
func NewInvoiceRepo(q DBTX) *InvoiceRepo {
	return &InvoiceRepo{db: q}
}

// NextNumber advances the owner's counter and returns the new value. The
// first call for an owner seeds the counter from the number of invoices the
// owner already has, deleted ones included. Callers must run it in the same
// transaction as the insert that consumes the number.
func (r *InvoiceRepo) NextNumber(ctx context.Context, ownerID string) (int64, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invoice_counters (owner_id, last_number)
		SELECT ?, COUNT(*) + 1 FROM invoices WHERE owner_id = ?
		ON CONFLICT (owner_id) DO UPDATE SET last_number = last_number + 1
	`, ownerID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to advance invoice counter: %w", err)
	}

	var n int64
	err = r.db.QueryRowContext(ctx, "SELECT last_number FROM invoice_counters WHERE owner_id = ?", ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice counter: %w", err)
	}

	return n, nil
}

// Create inserts the invoice header and all of its line items
func (r *InvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return fmt.Errorf("invalid invoice: %w", err)
	}

	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.OwnerID,
		invoice.ClientID,
		invoice.InvoiceNumber,
		string(invoice.Status),
		formatDate(invoice.IssueDate),
		formatDate(invoice.DueDate),
		invoice.Subtotal,
		invoice.TaxRate,
		invoice.TaxAmount,
		invoice.Total,
		invoice.Notes,
		invoice.PaymentTerms,
		nullableTime(invoice.PaidAt),
		invoice.IsActive,
		formatTime(invoice.CreatedAt),
		formatTime(invoice.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrNumberTaken, invoice.InvoiceNumber)
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	if len(invoice.LineItems) == 0 {
		return nil
	}

	stmt, err := r.db.PrepareContext(ctx, `
		INSERT INTO invoice_line_items (id, invoice_id, time_entry_id, description, quantity, rate, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range invoice.LineItems {
		_, err := stmt.ExecContext(ctx,
			item.ID,
			invoice.ID,
			nullableString(item.TimeEntryID),
			item.Description,
			item.Quantity,
			item.Rate,
			item.Amount,
			formatTime(item.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to add line item %s: %w", item.ID, err)
		}
	}

	return nil
}

// GetByID retrieves an active invoice header owned by ownerID
func (r *InvoiceRepo) GetByID(ctx context.Context, ownerID, id string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ? AND owner_id = ? AND is_active = 1`

	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("invoice", id)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return invoice, nil
}

// GetLineItems retrieves the line items of an invoice in insertion order
func (r *InvoiceRepo) GetLineItems(ctx context.Context, invoiceID string) ([]*domain.InvoiceLineItem, error) {
	query := `
		SELECT id, invoice_id, time_entry_id, description, quantity, rate, amount, created_at
		FROM invoice_line_items
		WHERE invoice_id = ?
		ORDER BY rowid
	`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get line items: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.InvoiceLineItem, 0)
	for rows.Next() {
		item := &domain.InvoiceLineItem{}
		var entryID sql.NullString
		var createdAt string

		err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&entryID,
			&item.Description,
			&item.Quantity,
			&item.Rate,
			&item.Amount,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}

		item.TimeEntryID = stringPtr(entryID)
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line items: %w", err)
	}

	return items, nil
}

// List retrieves active invoices, newest issue date first and latest created within a date
func (r *InvoiceRepo) List(ctx context.Context, ownerID string, filter domain.InvoiceFilter) ([]*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE owner_id = ? AND is_active = 1`
	args := []any{ownerID}

	if filter.ClientID != nil {
		query += " AND client_id = ?"
		args = append(args, *filter.ClientID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = domain.DefaultListLimit
	}
	query += " ORDER BY issue_date DESC, created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	return r.queryInvoices(ctx, query, args...)
}

// ListByStatus retrieves every active invoice in one of statuses, oldest due first
func (r *InvoiceRepo) ListByStatus(ctx context.Context, ownerID string, statuses ...domain.InvoiceStatus) ([]*domain.Invoice, error) {
	if len(statuses) == 0 {
		return []*domain.Invoice{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := []any{ownerID}
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE owner_id = ? AND is_active = 1 AND status IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY due_date, invoice_number`

	return r.queryInvoices(ctx, query, args...)
}

// Update writes the mutable header fields of an active invoice
func (r *InvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return fmt.Errorf("invalid invoice: %w", err)
	}

	query := `
		UPDATE invoices
		SET status = ?, issue_date = ?, due_date = ?, subtotal = ?, tax_rate = ?, tax_amount = ?,
		    total = ?, notes = ?, payment_terms = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND is_active = 1
	`

	result, err := r.db.ExecContext(ctx, query,
		string(invoice.Status),
		formatDate(invoice.IssueDate),
		formatDate(invoice.DueDate),
		invoice.Subtotal,
		invoice.TaxRate,
		invoice.TaxAmount,
		invoice.Total,
		invoice.Notes,
		invoice.PaymentTerms,
		nullableTime(invoice.PaidAt),
		formatTime(invoice.UpdatedAt),
		invoice.ID,
		invoice.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("invoice", invoice.ID)
	}

	return nil
}

// SoftDelete marks an invoice inactive
func (r *InvoiceRepo) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	query := `
		UPDATE invoices
		SET is_active = 0, updated_at = ?
		WHERE id = ? AND owner_id = ? AND is_active = 1
	`

	result, err := r.db.ExecContext(ctx, query, formatTime(at), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound("invoice", id)
	}

	return nil
}

func (r *InvoiceRepo) queryInvoices(ctx context.Context, query string, args ...any) ([]*domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*domain.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}

	return invoices, nil
}

// scanInvoice reads one row selected with invoiceColumns
func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	invoice := &domain.Invoice{}
	var status, issueDate, dueDate, createdAt, updatedAt string
	var paidAt sql.NullString

	err := row.Scan(
		&invoice.ID,
		&invoice.OwnerID,
		&invoice.ClientID,
		&invoice.InvoiceNumber,
		&status,
		&issueDate,
		&dueDate,
		&invoice.Subtotal,
		&invoice.TaxRate,
		&invoice.TaxAmount,
		&invoice.Total,
		&invoice.Notes,
		&invoice.PaymentTerms,
		&paidAt,
		&invoice.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.Status = domain.InvoiceStatus(status)
	if invoice.IssueDate, err = parseDate(issueDate); err != nil {
		return nil, fmt.Errorf("failed to parse issue_date: %w", err)
	}
	if invoice.DueDate, err = parseDate(dueDate); err != nil {
		return nil, fmt.Errorf("failed to parse due_date: %w", err)
	}
	if invoice.PaidAt, err = parseNullTime("paid_at", paidAt); err != nil {
		return nil, err
	}
	if invoice.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if invoice.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return invoice, nil
}
