package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// DateLayout is the calendar date format used for issue and due dates.
const DateLayout = "2006-01-02"

// ParseInvoiceStatus validates s against the known statuses
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch st := InvoiceStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown invoice status %q", ErrValidation, s)
}

// allowedTransitions is enforced only when strict transitions are enabled.
var allowedTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusSent, InvoiceStatusPaid},
	InvoiceStatusSent:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusDraft},
	InvoiceStatusOverdue: {InvoiceStatusPaid, InvoiceStatusSent},
	InvoiceStatusPaid:    {InvoiceStatusSent},
}

// CanTransition reports whether from -> to is in the transition table.
// Setting the current status again is always allowed.
func CanTransition(from, to InvoiceStatus) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Invoice struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	ClientID      string          `json:"client_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Status        InvoiceStatus   `json:"status"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	Notes         string          `json:"notes,omitempty"`
	PaymentTerms  string          `json:"payment_terms,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Populated by the repository on single-invoice reads
	LineItems []*InvoiceLineItem `json:"line_items,omitempty"`
	Client    *Client            `json:"client,omitempty"`
}

type InvoiceLineItem struct {
	ID          string          `json:"id"`
	InvoiceID   string          `json:"invoice_id"`
	TimeEntryID *string         `json:"time_entry_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"` // hours
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewInvoice creates an empty draft. Number and totals are filled in by
// the generation engine.
func NewInvoice(ownerID, clientID string, issue, due time.Time, taxRate decimal.Decimal, now time.Time) *Invoice {
	return &Invoice{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		ClientID:  clientID,
		Status:    InvoiceStatusDraft,
		IssueDate: TruncateDate(issue),
		DueDate:   TruncateDate(due),
		Subtotal:  decimal.Zero,
		TaxRate:   taxRate,
		TaxAmount: decimal.Zero,
		Total:     decimal.Zero,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FormatInvoiceNumber renders n as PREFIX-### (wider past 999).
func FormatInvoiceNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// LineDescription combines the project name with the entry description.
func LineDescription(projectName, entryDescription string) string {
	if strings.TrimSpace(entryDescription) == "" {
		entryDescription = "Time entry"
	}
	return projectName + ": " + entryDescription
}

// AddLine appends a line item for secs of work at rate and returns it.
func (i *Invoice) AddLine(entryID *string, description string, secs int64, rate decimal.Decimal, now time.Time) *InvoiceLineItem {
	qty := HoursFromSeconds(secs)
	item := &InvoiceLineItem{
		ID:          uuid.NewString(),
		InvoiceID:   i.ID,
		TimeEntryID: entryID,
		Description: description,
		Quantity:    qty,
		Rate:        rate,
		Amount:      LineAmount(qty, rate),
		CreatedAt:   now,
	}
	i.LineItems = append(i.LineItems, item)
	return item
}

// CalculateTotals sums the line amounts into the subtotal and applies tax.
func (i *Invoice) CalculateTotals() {
	subtotal := decimal.Zero
	for _, item := range i.LineItems {
		subtotal = subtotal.Add(item.Amount)
	}
	i.Subtotal = Round2(subtotal)
	i.RecalculateTax()
}

// RecalculateTax recomputes tax and total from the stored subtotal.
func (i *Invoice) RecalculateTax() {
	i.TaxAmount, i.Total = ComputeTotals(i.Subtotal, i.TaxRate)
}

// IsPaid returns true once payment has been recorded
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

// SetStatus moves the invoice to status and maintains PaidAt.
func (i *Invoice) SetStatus(status InvoiceStatus, now time.Time) {
	if status == InvoiceStatusPaid && i.Status != InvoiceStatusPaid {
		paid := now
		i.PaidAt = &paid
	}
	if status != InvoiceStatusPaid {
		i.PaidAt = nil
	}
	i.Status = status
	i.UpdatedAt = now
}

// Validate returns an error if the invoice header is invalid
func (i *Invoice) Validate() error {
	if i.OwnerID == "" || i.ClientID == "" {
		return fmt.Errorf("%w: owner and client are required", ErrValidation)
	}
	if i.IssueDate.IsZero() || i.DueDate.IsZero() {
		return fmt.Errorf("%w: issue and due dates are required", ErrValidation)
	}
	if i.DueDate.Before(i.IssueDate) {
		return fmt.Errorf("%w: due date %s is before issue date %s", ErrValidation,
			i.DueDate.Format(DateLayout), i.IssueDate.Format(DateLayout))
	}
	return ValidateTaxRate(i.TaxRate)
}

// InvoicePatch is a partial update of an invoice header.
type InvoicePatch struct {
	Status       *InvoiceStatus   `json:"status,omitempty"`
	IssueDate    *time.Time       `json:"issue_date,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	PaymentTerms *string          `json:"payment_terms,omitempty"`
}

// OnlyStatus reports whether status is the sole field present.
func (p InvoicePatch) OnlyStatus() bool {
	return p.Status != nil && p.IssueDate == nil && p.DueDate == nil &&
		p.TaxRate == nil && p.Notes == nil && p.PaymentTerms == nil
}

// InvoiceFilter narrows ListInvoices.
type InvoiceFilter struct {
	ClientID *string
	Status   *InvoiceStatus
	Offset   int
	Limit    int
}

// Normalize clamps pagination to the allowed window.
func (f *InvoiceFilter) Normalize() error {
	return clampPage(&f.Offset, &f.Limit)
}

// TruncateDate drops the time of day, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
