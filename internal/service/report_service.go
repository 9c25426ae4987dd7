package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/repository"
)

// revenueMonths is how far back the revenue breakdown reaches
const revenueMonths = 12

// MonthRevenue is the paid total for one calendar month
type MonthRevenue struct {
	Month string          `json:"month"` // 2006-01
	Total decimal.Decimal `json:"total"`
}

// Summary is the owner's billing position at a glance
type Summary struct {
	UnbilledSeconds  int64           `json:"unbilled_seconds"`
	UnbilledEntries  int             `json:"unbilled_entries"`
	UnbilledValue    decimal.Decimal `json:"unbilled_value"`
	OutstandingTotal decimal.Decimal `json:"outstanding_total"`
	OutstandingCount int             `json:"outstanding_count"`
	RevenueByMonth   []MonthRevenue  `json:"revenue_by_month"`
}

// ReportService provides aggregations over entries and invoices
type ReportService interface {
	Summary(ctx context.Context, ownerID string) (*Summary, error)
}

type reportService struct {
	store repository.Store
	clock domain.Clock
}

// NewReportService creates a new report service
func NewReportService(store repository.Store, clock domain.Clock) ReportService {
	return &reportService{store: store, clock: clock}
}

func (s *reportService) Summary(ctx context.Context, ownerID string) (*Summary, error) {
	summary := &Summary{
		UnbilledValue:    decimal.Zero,
		OutstandingTotal: decimal.Zero,
	}

	if err := s.unbilled(ctx, ownerID, summary); err != nil {
		return nil, err
	}

	outstanding, err := s.store.Invoices().ListByStatus(ctx, ownerID,
		domain.InvoiceStatusSent, domain.InvoiceStatusOverdue)
	if err != nil {
		return nil, err
	}
	for _, inv := range outstanding {
		summary.OutstandingTotal = summary.OutstandingTotal.Add(inv.Total)
	}
	summary.OutstandingCount = len(outstanding)

	paid, err := s.store.Invoices().ListByStatus(ctx, ownerID, domain.InvoiceStatusPaid)
	if err != nil {
		return nil, err
	}
	summary.RevenueByMonth = revenueByMonth(paid, s.clock.Now())

	return summary, nil
}

// unbilled values stopped, billable, uninvoiced entries the way generation
// would price them today.
func (s *reportService) unbilled(ctx context.Context, ownerID string, summary *Summary) error {
	entries, err := s.store.Entries().ListUnbilled(ctx, ownerID)
	if err != nil {
		return err
	}

	rates := make(map[string]decimal.Decimal)
	for _, e := range entries {
		secs := e.ComputedDuration()
		summary.UnbilledSeconds += secs
		summary.UnbilledEntries++

		rate, ok := rates[e.ProjectID]
		if !ok {
			project, err := s.store.Projects().GetByID(ctx, ownerID, e.ProjectID)
			if errors.Is(err, domain.ErrNotFound) {
				log.Printf("[report] entry %s references missing project %s; not valued", e.ID, e.ProjectID)
				rates[e.ProjectID] = decimal.Zero
				continue
			}
			if err != nil {
				return err
			}
			rate = project.HourlyRate
			rates[e.ProjectID] = rate
		}

		summary.UnbilledValue = summary.UnbilledValue.Add(domain.LineAmount(domain.HoursFromSeconds(secs), rate))
	}
	return nil
}

// revenueByMonth buckets paid totals by the month payment was recorded,
// oldest month first, covering the months up to and including now.
func revenueByMonth(paid []*domain.Invoice, now time.Time) []MonthRevenue {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(revenueMonths - 1), 0)

	months := make([]MonthRevenue, revenueMonths)
	index := make(map[string]int, revenueMonths)
	for i := range months {
		key := first.AddDate(0, i, 0).Format("2006-01")
		months[i] = MonthRevenue{Month: key, Total: decimal.Zero}
		index[key] = i
	}

	for _, inv := range paid {
		if inv.PaidAt == nil {
			continue
		}
		if i, ok := index[inv.PaidAt.UTC().Format("2006-01")]; ok {
			months[i].Total = months[i].Total.Add(inv.Total)
		}
	}
	return months
}
