package repository

import (
	"context"
	"time"

	"github.com/andy/timebill/internal/domain"
)

// ClientRepository manages client persistence. Reads are owner-scoped and
// return domain.ErrNotFound for missing, foreign, and inactive rows alike.
type ClientRepository interface {
	Create(ctx context.Context, client *domain.Client) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.Client, error)
	GetByName(ctx context.Context, ownerID, name string) (*domain.Client, error)
	List(ctx context.Context, ownerID string) ([]*domain.Client, error)
}

// ProjectRepository manages project persistence
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.Project, error)
	GetByName(ctx context.Context, ownerID, name string) (*domain.Project, error)
	List(ctx context.Context, ownerID string) ([]*domain.Project, error)
}

// TimeEntryRepository manages time entry persistence with audit trail
type TimeEntryRepository interface {
	// Create fails with ErrTimerRunning when entry is a second running timer
	Create(ctx context.Context, entry *domain.TimeEntry) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.TimeEntry, error)
	// GetRunning returns nil, nil when the owner has no running timer
	GetRunning(ctx context.Context, ownerID string) (*domain.TimeEntry, error)
	Update(ctx context.Context, entry *domain.TimeEntry) error
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error
	List(ctx context.Context, ownerID string, filter domain.EntryFilter) ([]*domain.TimeEntry, error)
	ListUnbilled(ctx context.Context, ownerID string) ([]*domain.TimeEntry, error)
	MarkInvoiced(ctx context.Context, ownerID, id, invoiceID string, at time.Time) error
	ReleaseInvoice(ctx context.Context, ownerID, invoiceID string, at time.Time) (int64, error)
	AddHistory(ctx context.Context, records []*domain.EntryHistory) error
	GetHistory(ctx context.Context, entryID string) ([]*domain.EntryHistory, error)
}

// InvoiceRepository manages invoices, their line items, and numbering
type InvoiceRepository interface {
	// NextNumber advances and returns the owner's invoice sequence
	NextNumber(ctx context.Context, ownerID string) (int64, error)
	// Create inserts the header and its line items; a duplicate number fails with ErrNumberTaken
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, ownerID, id string) (*domain.Invoice, error)
	GetLineItems(ctx context.Context, invoiceID string) ([]*domain.InvoiceLineItem, error)
	List(ctx context.Context, ownerID string, filter domain.InvoiceFilter) ([]*domain.Invoice, error)
	ListByStatus(ctx context.Context, ownerID string, statuses ...domain.InvoiceStatus) ([]*domain.Invoice, error)
	Update(ctx context.Context, invoice *domain.Invoice) error
	SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error
}
