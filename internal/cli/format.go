package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/render"
)

// shortIDLen is how much of a uuid the tables print. Commands accept any
// unique prefix of at least this length.
const shortIDLen = 8

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// parseDate parses a calendar day as local midnight
func parseDate(s string, now time.Time) (time.Time, error) {
	now = now.Local()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	t, err := time.ParseInLocation(domain.DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected format: YYYY-MM-DD, 'today', or 'yesterday'")
	}
	return t, nil
}

// parseDateTime parses an instant in local time. A bare HH:MM means today.
func parseDateTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "now") {
		return now, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}

	if t, err := time.ParseInLocation("15:04", s, time.Local); err == nil {
		local := now.Local()
		return time.Date(local.Year(), local.Month(), local.Day(), t.Hour(), t.Minute(), 0, 0, time.Local), nil
	}

	return time.Time{}, fmt.Errorf("expected format: YYYY-MM-DD HH:MM[:SS], RFC 3339, HH:MM, or 'now'")
}

// formatDuration renders whole seconds as "1h 5m 0s"
func formatDuration(secs int64) string {
	d := time.Duration(secs) * time.Second
	h := int64(d.Hours())
	m := int64(d.Minutes()) % 60
	s := int64(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	} else if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatHours(secs int64) string {
	return domain.HoursFromSeconds(secs).StringFixed(2)
}

func formatMoney(d decimal.Decimal) string {
	return render.Money(d)
}

func formatLocal(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// parseTaxRate accepts a fraction ("0.08") or a percentage ("8%")
func parseTaxRate(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	rate, err := decimal.NewFromString(strings.TrimSuffix(s, "%"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate %q", s)
	}
	if percent {
		rate = rate.Div(decimal.NewFromInt(100))
	}
	if err := domain.ValidateTaxRate(rate); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

// resolveEntryID expands a short id printed by `entries list` into the full
// entry id.
func resolveEntryID(ctx context.Context, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return ref, nil
	}

	entries, err := listAll(func(offset, limit int) ([]*domain.TimeEntry, error) {
		return appInstance.Entries.List(ctx, appInstance.Owner(), domain.EntryFilter{Offset: offset, Limit: limit})
	})
	if err != nil {
		return "", err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return matchPrefix("entry", ref, ids)
}

// resolveInvoice finds an invoice by number ("INV-007"), full id or short id
func resolveInvoice(ctx context.Context, ref string) (*domain.Invoice, error) {
	owner := appInstance.Owner()
	if _, err := uuid.Parse(ref); err == nil {
		return appInstance.Invoices.Get(ctx, owner, ref)
	}

	invoices, err := listAll(func(offset, limit int) ([]*domain.Invoice, error) {
		return appInstance.Invoices.List(ctx, owner, domain.InvoiceFilter{Offset: offset, Limit: limit})
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(invoices))
	for i, inv := range invoices {
		if strings.EqualFold(inv.InvoiceNumber, ref) {
			return appInstance.Invoices.Get(ctx, owner, inv.ID)
		}
		ids[i] = inv.ID
	}

	id, err := matchPrefix("invoice", ref, ids)
	if err != nil {
		return nil, err
	}
	return appInstance.Invoices.Get(ctx, owner, id)
}

// listAll pages through list until a short page comes back
func listAll[T any](list func(offset, limit int) ([]T, error)) ([]T, error) {
	var all []T
	for offset := 0; ; {
		page, err := list(offset, domain.MaxListLimit)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < domain.MaxListLimit {
			return all, nil
		}
		offset += len(page)
	}
}

func matchPrefix(kind, ref string, ids []string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if len(ref) < shortIDLen {
		return "", fmt.Errorf("%w: %s id %q is too short", domain.ErrValidation, kind, ref)
	}

	var match string
	for _, id := range ids {
		if !strings.HasPrefix(id, ref) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s id %q is ambiguous", domain.ErrValidation, kind, ref)
		}
		match = id
	}

	if match == "" {
		return "", fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, ref)
	}
	return match, nil
}
