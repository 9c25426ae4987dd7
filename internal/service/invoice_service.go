package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/metrics"
	"github.com/andy/timebill/internal/render"
	"github.com/andy/timebill/internal/repository"
)

// maxNumberAttempts bounds how often generation draws a fresh number after
// finding the previous one already issued.
const maxNumberAttempts = 3

var ErrInvoicePaid = fmt.Errorf("%w: invoice is paid", domain.ErrConflict)

// GenerateRequest describes an invoice to build from time entries
type GenerateRequest struct {
	ClientID     string           `json:"client_id"`
	TimeEntryIDs []string         `json:"time_entry_ids"`
	IssueDate    time.Time        `json:"issue_date"`           // zero means today
	DueDate      time.Time        `json:"due_date"`             // zero means issue date + default due days
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`   // nil means the configured default
	Notes        string           `json:"notes,omitempty"`
	PaymentTerms *string          `json:"payment_terms,omitempty"`
}

// InvoiceOptions carries the configured invoicing defaults
type InvoiceOptions struct {
	NumberPrefix      string
	DefaultDueDays    int
	DefaultTaxRate    decimal.Decimal
	PaymentTerms      string
	StrictTransitions bool
	Issuer            render.Party
}

// InvoiceService generates invoices from time entries and manages their lifecycle
type InvoiceService interface {
	// Generate validates the entries, numbers the invoice and locks the
	// entries to it in one transaction
	Generate(ctx context.Context, ownerID string, req GenerateRequest) (*domain.Invoice, error)

	// Get returns the invoice with its line items and client
	Get(ctx context.Context, ownerID, id string) (*domain.Invoice, error)

	List(ctx context.Context, ownerID string, filter domain.InvoiceFilter) ([]*domain.Invoice, error)

	// Update applies patch; a paid invoice accepts a status change only
	Update(ctx context.Context, ownerID, id string, patch domain.InvoicePatch) (*domain.Invoice, error)

	SetStatus(ctx context.Context, ownerID, id string, status domain.InvoiceStatus) (*domain.Invoice, error)

	// Delete soft-deletes an unpaid invoice and releases its entries
	Delete(ctx context.Context, ownerID, id string) error

	// MarkOverdue moves sent invoices due before today to overdue
	MarkOverdue(ctx context.Context, ownerID string, today time.Time) ([]*domain.Invoice, error)

	// RenderPDF renders the invoice for download
	RenderPDF(ctx context.Context, ownerID, id string) ([]byte, *domain.Invoice, error)
}

type invoiceService struct {
	store    repository.Store
	clock    domain.Clock
	renderer render.Renderer
	opts     InvoiceOptions
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	store repository.Store,
	clock domain.Clock,
	renderer render.Renderer,
	opts InvoiceOptions,
) InvoiceService {
	if opts.NumberPrefix == "" {
		opts.NumberPrefix = "INV"
	}
	if opts.DefaultDueDays <= 0 {
		opts.DefaultDueDays = 30
	}
	return &invoiceService{
		store:    store,
		clock:    clock,
		renderer: renderer,
		opts:     opts,
	}
}

func (s *invoiceService) Generate(ctx context.Context, ownerID string, req GenerateRequest) (*domain.Invoice, error) {
	now := s.clock.Now()

	issue := req.IssueDate
	if issue.IsZero() {
		issue = now
	}
	due := req.DueDate
	if due.IsZero() {
		due = domain.TruncateDate(issue).AddDate(0, 0, s.opts.DefaultDueDays)
	}
	taxRate := s.opts.DefaultTaxRate
	if req.TaxRate != nil {
		taxRate = *req.TaxRate
	}
	terms := s.opts.PaymentTerms
	if req.PaymentTerms != nil {
		terms = *req.PaymentTerms
	}

	invoice := domain.NewInvoice(ownerID, req.ClientID, issue, due, taxRate, now)
	invoice.Notes = req.Notes
	invoice.PaymentTerms = terms
	if err := invoice.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		return s.generateTx(ctx, tx, invoice, req.TimeEntryIDs, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.InvoicesGenerated.Inc()
	log.Printf("[invoice] generated %s for client %s: %d lines, total %s",
		invoice.InvoiceNumber, invoice.ClientID, len(invoice.LineItems), invoice.Total.StringFixed(2))
	return invoice, nil
}

func (s *invoiceService) generateTx(
	ctx context.Context,
	tx repository.Store,
	invoice *domain.Invoice,
	entryIDs []string,
	now time.Time,
) error {
	client, err := tx.Clients().GetByID(ctx, invoice.OwnerID, invoice.ClientID)
	if err != nil {
		return err
	}

	entries, projects, err := s.validateEntries(ctx, tx, invoice.OwnerID, entryIDs)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		project := projects[entry.ProjectID]
		entryID := entry.ID
		invoice.AddLine(&entryID, domain.LineDescription(project.Name, entry.Description),
			entry.ComputedDuration(), project.HourlyRate, now)
	}
	invoice.CalculateTotals()

	if err := s.insertNumbered(ctx, tx, invoice); err != nil {
		return err
	}

	for _, entry := range entries {
		if err := tx.Entries().MarkInvoiced(ctx, invoice.OwnerID, entry.ID, invoice.ID, now); err != nil {
			return err
		}
	}

	invoice.Client = client
	return nil
}

// validateEntries checks every requested entry in order and stops at the
// first failure. It returns the entries and the projects they bill against.
func (s *invoiceService) validateEntries(
	ctx context.Context,
	tx repository.Store,
	ownerID string,
	entryIDs []string,
) ([]*domain.TimeEntry, map[string]*domain.Project, error) {
	entries := make([]*domain.TimeEntry, 0, len(entryIDs))
	projects := make(map[string]*domain.Project)
	seen := make(map[string]bool, len(entryIDs))

	for _, id := range entryIDs {
		if seen[id] {
			return nil, nil, fmt.Errorf("%w: time entry %s is listed twice", domain.ErrValidation, id)
		}
		seen[id] = true

		entry, err := tx.Entries().GetByID(ctx, ownerID, id)
		if err != nil {
			return nil, nil, err
		}
		if entry.IsInvoiced {
			return nil, nil, fmt.Errorf("%w: time entry %s is already invoiced", domain.ErrConflict, id)
		}
		if !entry.IsBillable {
			return nil, nil, fmt.Errorf("%w: time entry %s is not billable", domain.ErrValidation, id)
		}
		if entry.IsRunning() {
			return nil, nil, fmt.Errorf("%w: time entry %s is still running", domain.ErrValidation, id)
		}

		if _, ok := projects[entry.ProjectID]; !ok {
			project, err := tx.Projects().GetByID(ctx, ownerID, entry.ProjectID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil, fmt.Errorf("%w: project %s of time entry %s no longer exists",
					domain.ErrNotFound, entry.ProjectID, id)
			}
			if err != nil {
				return nil, nil, err
			}
			projects[entry.ProjectID] = project
		}

		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one time entry is required", domain.ErrValidation)
	}
	return entries, projects, nil
}

// insertNumbered draws the next number and inserts the invoice. A number
// that is already taken fails only its own statement, so the transaction
// stays usable and the next number is tried.
func (s *invoiceService) insertNumbered(ctx context.Context, tx repository.Store, invoice *domain.Invoice) error {
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		var n int64
		n, err = tx.Invoices().NextNumber(ctx, invoice.OwnerID)
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = domain.FormatInvoiceNumber(s.opts.NumberPrefix, n)

		err = tx.Invoices().Create(ctx, invoice)
		if !errors.Is(err, repository.ErrNumberTaken) {
			return err
		}

		metrics.InvoiceNumberRetries.Inc()
		log.Printf("[invoice] number %s already issued (attempt %d)", invoice.InvoiceNumber, attempt)
	}
	return err
}

func (s *invoiceService) Get(ctx context.Context, ownerID, id string) (*domain.Invoice, error) {
	invoice, err := s.store.Invoices().GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, s.store, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// hydrate attaches line items and the client. A client that has since been
// deactivated is left nil.
func (s *invoiceService) hydrate(ctx context.Context, st repository.Store, invoice *domain.Invoice) error {
	items, err := st.Invoices().GetLineItems(ctx, invoice.ID)
	if err != nil {
		return err
	}
	invoice.LineItems = items

	client, err := st.Clients().GetByID(ctx, invoice.OwnerID, invoice.ClientID)
	switch {
	case err == nil:
		invoice.Client = client
	case errors.Is(err, domain.ErrNotFound):
		invoice.Client = nil
	default:
		return err
	}
	return nil
}

func (s *invoiceService) List(ctx context.Context, ownerID string, filter domain.InvoiceFilter) ([]*domain.Invoice, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	return s.store.Invoices().List(ctx, ownerID, filter)
}

func (s *invoiceService) Update(ctx context.Context, ownerID, id string, patch domain.InvoicePatch) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Invoices().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if current.IsPaid() && !patch.OnlyStatus() {
			return fmt.Errorf("%w: %s accepts status changes only", ErrInvoicePaid, current.InvoiceNumber)
		}

		now := s.clock.Now()
		if patch.IssueDate != nil {
			current.IssueDate = domain.TruncateDate(*patch.IssueDate)
		}
		if patch.DueDate != nil {
			current.DueDate = domain.TruncateDate(*patch.DueDate)
		}
		if patch.Notes != nil {
			current.Notes = *patch.Notes
		}
		if patch.PaymentTerms != nil {
			current.PaymentTerms = *patch.PaymentTerms
		}
		if patch.TaxRate != nil {
			current.TaxRate = *patch.TaxRate
			if err := domain.ValidateTaxRate(current.TaxRate); err != nil {
				return err
			}
			current.RecalculateTax()
		}
		if patch.Status != nil {
			if err := s.checkTransition(current, *patch.Status); err != nil {
				return err
			}
			current.SetStatus(*patch.Status, now)
		}
		current.UpdatedAt = now

		if err := tx.Invoices().Update(ctx, current); err != nil {
			return err
		}
		if err := s.hydrate(ctx, tx, current); err != nil {
			return err
		}
		invoice = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		metrics.InvoiceStatusChanges.WithLabelValues(string(*patch.Status)).Inc()
	}
	return invoice, nil
}

func (s *invoiceService) SetStatus(ctx context.Context, ownerID, id string, status domain.InvoiceStatus) (*domain.Invoice, error) {
	return s.Update(ctx, ownerID, id, domain.InvoicePatch{Status: &status})
}

func (s *invoiceService) checkTransition(invoice *domain.Invoice, to domain.InvoiceStatus) error {
	if !s.opts.StrictTransitions || domain.CanTransition(invoice.Status, to) {
		return nil
	}
	return fmt.Errorf("%w: invoice %s cannot move from %s to %s", domain.ErrConflict,
		invoice.InvoiceNumber, invoice.Status, to)
}

func (s *invoiceService) Delete(ctx context.Context, ownerID, id string) error {
	var number string
	var released int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		invoice, err := tx.Invoices().GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if invoice.IsPaid() {
			return fmt.Errorf("%w: %s cannot be deleted", ErrInvoicePaid, invoice.InvoiceNumber)
		}
		number = invoice.InvoiceNumber

		now := s.clock.Now()
		if err := tx.Invoices().SoftDelete(ctx, ownerID, id, now); err != nil {
			return err
		}
		released, err = tx.Entries().ReleaseInvoice(ctx, ownerID, id, now)
		return err
	})
	if err != nil {
		return err
	}

	metrics.InvoicesDeleted.Inc()
	log.Printf("[invoice] deleted %s, released %d entries", number, released)
	return nil
}

func (s *invoiceService) MarkOverdue(ctx context.Context, ownerID string, today time.Time) ([]*domain.Invoice, error) {
	cutoff := domain.TruncateDate(today)
	marked := make([]*domain.Invoice, 0)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		sent, err := tx.Invoices().ListByStatus(ctx, ownerID, domain.InvoiceStatusSent)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, invoice := range sent {
			if !invoice.DueDate.Before(cutoff) {
				continue
			}
			invoice.SetStatus(domain.InvoiceStatusOverdue, now)
			if err := tx.Invoices().Update(ctx, invoice); err != nil {
				return err
			}
			marked = append(marked, invoice)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(marked) > 0 {
		metrics.InvoiceStatusChanges.WithLabelValues(string(domain.InvoiceStatusOverdue)).Add(float64(len(marked)))
		log.Printf("[invoice] marked %d invoices overdue", len(marked))
	}
	return marked, nil
}

func (s *invoiceService) RenderPDF(ctx context.Context, ownerID, id string) ([]byte, *domain.Invoice, error) {
	if s.renderer == nil {
		return nil, nil, errors.New("no invoice renderer configured")
	}

	invoice, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}

	out, err := s.renderer.Render(render.Document{
		Invoice: invoice,
		Client:  invoice.Client,
		Issuer:  s.opts.Issuer,
	})
	if err != nil {
		return nil, nil, err
	}
	return out, invoice, nil
}
