package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/andy/timebill/internal/db"
	"github.com/andy/timebill/internal/domain"
	"github.com/shopspring/decimal"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "timebill.db"), "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(database)
}

func seedProject(t *testing.T, s Store, owner string) *domain.Project {
	t.Helper()
	p := domain.NewProject(owner, "Website", nil, decimal.NewFromInt(100), t0)
	if err := s.Projects().Create(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func seedClient(t *testing.T, s Store, owner string) *domain.Client {
	t.Helper()
	c := domain.NewClient(owner, "Acme", "billing@acme.test", "Acme Inc", t0)
	if err := s.Clients().Create(context.Background(), c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	return c
}

func stoppedEntry(owner, project string, start time.Time, d time.Duration) *domain.TimeEntry {
	e := domain.NewTimeEntry(owner, project, "work", start, start)
	e.Stop(start.Add(d))
	return e
}

func TestEntryRepo_SecondRunningTimerConflicts(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	p := seedProject(t, s, "u1")

	if err := s.Entries().Create(ctx, domain.NewTimeEntry("u1", p.ID, "", t0, t0)); err != nil {
		t.Fatalf("first timer: %v", err)
	}

	err := s.Entries().Create(ctx, domain.NewTimeEntry("u1", p.ID, "", t0.Add(time.Minute), t0))
	if !errors.Is(err, ErrTimerRunning) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrTimerRunning, got %v", err)
	}

	// Stopped entries and other owners are unaffected.
	if err := s.Entries().Create(ctx, stoppedEntry("u1", p.ID, t0.Add(-time.Hour), time.Minute)); err != nil {
		t.Fatalf("manual entry alongside timer: %v", err)
	}
	p2 := seedProject(t, s, "u2")
	if err := s.Entries().Create(ctx, domain.NewTimeEntry("u2", p2.ID, "", t0, t0)); err != nil {
		t.Fatalf("other owner's timer: %v", err)
	}

	running, err := s.Entries().GetRunning(ctx, "u1")
	if err != nil || running == nil {
		t.Fatalf("GetRunning = %v, %v", running, err)
	}
	if !running.IsRunning() {
		t.Error("GetRunning returned a stopped entry")
	}
}

func TestEntryRepo_GetByIDIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	p := seedProject(t, s, "u1")
	e := stoppedEntry("u1", p.ID, t0, time.Hour)
	if err := s.Entries().Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Entries().GetByID(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ComputedDuration() != 3600 || !got.StartTime.Equal(t0) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := s.Entries().GetByID(ctx, "u2", e.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign owner should get ErrNotFound, got %v", err)
	}

	if err := s.Entries().SoftDelete(ctx, "u1", e.ID, t0); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := s.Entries().GetByID(ctx, "u1", e.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleted entry should get ErrNotFound, got %v", err)
	}
}

func TestEntryRepo_ListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	p := seedProject(t, s, "u1")
	other := domain.NewProject("u1", "Other", nil, decimal.NewFromInt(50), t0)
	if err := s.Projects().Create(ctx, other); err != nil {
		t.Fatalf("create project: %v", err)
	}

	for i := 0; i < 5; i++ {
		e := stoppedEntry("u1", p.ID, t0.Add(time.Duration(i)*24*time.Hour), time.Hour)
		e.IsBillable = i%2 == 0
		if err := s.Entries().Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.Entries().Create(ctx, stoppedEntry("u1", other.ID, t0, time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := s.Entries().List(ctx, "u1", domain.EntryFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].StartTime.After(all[i-1].StartTime) {
			t.Fatalf("entries not ordered newest first at %d", i)
		}
	}

	billable := true
	from := t0.Add(24 * time.Hour)
	filtered, err := s.Entries().List(ctx, "u1", domain.EntryFilter{ProjectID: &p.ID, IsBillable: &billable, From: &from})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(filtered) != 2 { // days 2 and 4
		t.Errorf("expected 2 filtered entries, got %d", len(filtered))
	}

	page, err := s.Entries().List(ctx, "u1", domain.EntryFilter{Offset: 4, Limit: 10})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected 2 entries on the last page, got %d", len(page))
	}
}

func TestEntryRepo_MarkInvoicedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	p := seedProject(t, s, "u1")
	c := seedClient(t, s, "u1")
	e := stoppedEntry("u1", p.ID, t0, time.Hour)
	if err := s.Entries().Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	inv := domain.NewInvoice("u1", c.ID, t0, t0, decimal.Zero, t0)
	inv.InvoiceNumber = "INV-001"
	if err := s.Invoices().Create(ctx, inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if err := s.Entries().MarkInvoiced(ctx, "u1", e.ID, inv.ID, t0); err != nil {
		t.Fatalf("MarkInvoiced: %v", err)
	}
	if err := s.Entries().MarkInvoiced(ctx, "u1", e.ID, inv.ID, t0); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second MarkInvoiced should conflict, got %v", err)
	}

	n, err := s.Entries().ReleaseInvoice(ctx, "u1", inv.ID, t0)
	if err != nil || n != 1 {
		t.Fatalf("ReleaseInvoice = %d, %v", n, err)
	}

	got, err := s.Entries().GetByID(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.IsInvoiced || got.InvoiceID != nil {
		t.Errorf("entry still invoiced after release: %+v", got)
	}
}

func TestInvoiceRepo_NextNumber(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	c := seedClient(t, s, "u1")

	// Two invoices that predate the counter.
	for _, num := range []string{"INV-001", "INV-002"} {
		inv := domain.NewInvoice("u1", c.ID, t0, t0, decimal.Zero, t0)
		inv.InvoiceNumber = num
		if err := s.Invoices().Create(ctx, inv); err != nil {
			t.Fatalf("create %s: %v", num, err)
		}
	}

	var got []int64
	for i := 0; i < 3; i++ {
		n, err := s.Invoices().NextNumber(ctx, "u1")
		if err != nil {
			t.Fatalf("NextNumber: %v", err)
		}
		got = append(got, n)
	}
	if got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Errorf("NextNumber sequence = %v, want [3 4 5]", got)
	}

	n, err := s.Invoices().NextNumber(ctx, "u2")
	if err != nil || n != 1 {
		t.Errorf("fresh owner NextNumber = %d, %v, want 1", n, err)
	}
}

func TestInvoiceRepo_DuplicateNumber(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	c := seedClient(t, s, "u1")

	inv := domain.NewInvoice("u1", c.ID, t0, t0, decimal.Zero, t0)
	inv.InvoiceNumber = "INV-001"
	if err := s.Invoices().Create(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := domain.NewInvoice("u1", c.ID, t0, t0, decimal.Zero, t0)
	dup.InvoiceNumber = "INV-001"
	if err := s.Invoices().Create(ctx, dup); !errors.Is(err, ErrNumberTaken) {
		t.Fatalf("expected ErrNumberTaken, got %v", err)
	}
}

func TestInvoiceRepo_ListNewestFirstPastThreeDigits(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	c := seedClient(t, s, "u1")

	tests := []struct {
		number  string
		created time.Time
	}{
		{"INV-998", t0},
		{"INV-999", t0.Add(time.Second)},
		{"INV-1000", t0.Add(time.Second)},
		{"INV-1001", t0.Add(time.Minute)},
	}
	for _, tt := range tests {
		inv := domain.NewInvoice("u1", c.ID, t0, t0, decimal.Zero, tt.created)
		inv.InvoiceNumber = tt.number
		if err := s.Invoices().Create(ctx, inv); err != nil {
			t.Fatalf("create %s: %v", tt.number, err)
		}
	}

	list, err := s.Invoices().List(ctx, "u1", domain.InvoiceFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"INV-1001", "INV-1000", "INV-999", "INV-998"}
	if len(list) != len(want) {
		t.Fatalf("got %d invoices, want %d", len(list), len(want))
	}
	for i, inv := range list {
		if inv.InvoiceNumber != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, inv.InvoiceNumber, want[i])
		}
	}
}

func TestInvoiceRepo_RoundTripWithLineItems(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	c := seedClient(t, s, "u1")

	inv := domain.NewInvoice("u1", c.ID, t0, t0.AddDate(0, 0, 30), decimal.RequireFromString("0.08"), t0)
	inv.InvoiceNumber = "INV-001"
	inv.AddLine(nil, "Website: a", 5400, decimal.NewFromInt(100), t0)
	inv.AddLine(nil, "Website: b", 7200, decimal.NewFromInt(100), t0)
	inv.CalculateTotals()

	if err := s.Invoices().Create(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Invoices().GetByID(ctx, "u1", inv.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Total.Equal(decimal.RequireFromString("378")) || !got.TaxRate.Equal(inv.TaxRate) {
		t.Errorf("totals lost in round trip: %+v", got)
	}
	if !got.DueDate.Equal(domain.TruncateDate(t0.AddDate(0, 0, 30))) {
		t.Errorf("due date = %v", got.DueDate)
	}

	items, err := s.Invoices().GetLineItems(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetLineItems: %v", err)
	}
	if len(items) != 2 || items[0].Description != "Website: a" {
		t.Fatalf("unexpected line items: %+v", items)
	}
	if !items[0].Quantity.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("quantity = %s, want 1.5", items[0].Quantity)
	}

	sent, err := s.Invoices().ListByStatus(ctx, "u1", domain.InvoiceStatusSent)
	if err != nil || len(sent) != 0 {
		t.Errorf("ListByStatus(sent) = %d, %v", len(sent), err)
	}
	drafts, err := s.Invoices().ListByStatus(ctx, "u1", domain.InvoiceStatusDraft, domain.InvoiceStatusSent)
	if err != nil || len(drafts) != 1 {
		t.Errorf("ListByStatus(draft, sent) = %d, %v", len(drafts), err)
	}
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	p := seedProject(t, s, "u1")
	boom := errors.New("boom")

	var created *domain.TimeEntry
	err := s.WithTx(ctx, func(tx Store) error {
		created = stoppedEntry("u1", p.ID, t0, time.Hour)
		if err := tx.Entries().Create(ctx, created); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx returned %v", err)
	}

	if _, err := s.Entries().GetByID(ctx, "u1", created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("entry should have been rolled back, got %v", err)
	}
}
