package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/db"
	"github.com/andy/timebill/internal/domain"
	"github.com/andy/timebill/internal/repository"
)

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db      *db.DB
	store   repository.Store
	clock   *domain.FixedClock
	client  *domain.Client
	project *domain.Project
}

func setup(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "timebill.db"), "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{
		db:    database,
		store: repository.NewStore(database),
		clock: &domain.FixedClock{T: t0},
	}

	catalog := NewCatalogService(f.store, f.clock)
	f.client, err = catalog.AddClient(context.Background(), "u1", "Acme", "billing@acme.test", "Acme Inc")
	if err != nil {
		t.Fatalf("add client: %v", err)
	}
	f.project, err = catalog.AddProject(context.Background(), "u1", "Website", &f.client.ID, decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("add project: %v", err)
	}
	return f
}

// logEntry records a finished billable entry of d starting at start
func (f *fixture) logEntry(t *testing.T, start time.Time, d time.Duration) *domain.TimeEntry {
	t.Helper()
	e, err := NewEntryService(f.store, f.clock).CreateFromDuration(context.Background(),
		"u1", f.project.ID, "work", start, int64(d/time.Second), true)
	if err != nil {
		t.Fatalf("log entry: %v", err)
	}
	return e
}

func TestTimer_StartStop(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	timer := NewTimerService(f.store, f.clock)

	entry, err := timer.Start(ctx, "u1", f.project.ID, "  landing page ")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !entry.IsRunning() || !entry.StartTime.Equal(t0) {
		t.Fatalf("unexpected running entry %+v", entry)
	}
	if entry.Description != "landing page" {
		t.Errorf("description = %q", entry.Description)
	}

	f.clock.Advance(125 * time.Second)

	running, err := timer.Running(ctx, "u1")
	if err != nil || running == nil {
		t.Fatalf("Running = %v, %v", running, err)
	}
	if running.ElapsedSeconds != 125 {
		t.Errorf("elapsed = %d, want 125", running.ElapsedSeconds)
	}

	stopped, err := timer.Stop(ctx, "u1")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.EndTime == nil || !stopped.EndTime.Equal(t0.Add(125*time.Second)) {
		t.Errorf("end = %v", stopped.EndTime)
	}
	if stopped.DurationSeconds == nil || *stopped.DurationSeconds != 125 {
		t.Errorf("duration = %v, want 125", stopped.DurationSeconds)
	}

	running, err = timer.Running(ctx, "u1")
	if err != nil || running != nil {
		t.Errorf("expected no running timer, got %v, %v", running, err)
	}
}

func TestTimer_StopWithoutRunning(t *testing.T) {
	f := setup(t)
	_, err := NewTimerService(f.store, f.clock).Stop(context.Background(), "u1")
	if !errors.Is(err, ErrNoActiveTimer) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTimer_StopClampsToStart(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
	}{
		{"same second", 0},
		{"sub-second", 400 * time.Millisecond},
		{"clock moved backwards", -5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := setup(t)
			timer := NewTimerService(f.store, f.clock)

			started, err := timer.Start(ctx, "u1", f.project.ID, "")
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			f.clock.Advance(tt.elapsed)

			stopped, err := timer.Stop(ctx, "u1")
			if err != nil {
				t.Fatalf("Stop: %v", err)
			}
			if stopped.EndTime == nil || !stopped.EndTime.Equal(started.StartTime) {
				t.Errorf("end = %v, want %v", stopped.EndTime, started.StartTime)
			}
			if stopped.DurationSeconds == nil || *stopped.DurationSeconds != 0 {
				t.Errorf("duration = %v, want 0", stopped.DurationSeconds)
			}
			if running, err := timer.Running(ctx, "u1"); err != nil || running != nil {
				t.Errorf("expected no running timer, got %v, %v", running, err)
			}
		})
	}
}

func TestTimer_StartUnknownProject(t *testing.T) {
	f := setup(t)
	timer := NewTimerService(f.store, f.clock)

	if _, err := timer.Start(context.Background(), "u1", "nope", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	// Another owner's project is indistinguishable from a missing one.
	if _, err := timer.Start(context.Background(), "u2", f.project.ID, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for foreign project, got %v", err)
	}
}

func TestTimer_ConcurrentStartsLeaveOneRunning(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	timer := NewTimerService(f.store, f.clock)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := timer.Start(ctx, "u1", f.project.ID, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and %d", ok, conflicts, n-1)
	}
}

func TestTimer_ConflictNamesRunningProject(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	timer := NewTimerService(f.store, f.clock)

	if _, err := timer.Start(ctx, "u1", f.project.ID, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := timer.Start(ctx, "u1", f.project.ID, "")
	if !errors.Is(err, ErrTimerAlreadyRunning) {
		t.Fatalf("expected ErrTimerAlreadyRunning, got %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "Website") {
		t.Errorf("error %q does not name the project", got)
	}
}

func TestEntries_CreateFromDuration(t *testing.T) {
	f := setup(t)
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	e := f.logEntry(t, start, 2*time.Hour)
	if !e.EndTime.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("end = %v, want 11:00", e.EndTime)
	}
	if *e.DurationSeconds != 7200 {
		t.Errorf("duration = %d, want 7200", *e.DurationSeconds)
	}
}

func TestEntries_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	entries := NewEntryService(f.store, f.clock)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
	}{
		{"end before start", t0, t0.Add(-time.Minute)},
		{"end equals start", t0, t0},
		{"sub-second span", t0, t0.Add(500 * time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := entries.Create(ctx, "u1", f.project.ID, "", tt.start, tt.end, true)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	durations := []struct {
		name string
		secs int64
	}{
		{"zero", 0},
		{"negative", -60},
		{"overflows time.Duration", 18446747674},
		{"one past the limit", maxDurationSeconds + 1},
	}
	for _, tt := range durations {
		t.Run("duration "+tt.name, func(t *testing.T) {
			_, err := entries.CreateFromDuration(ctx, "u1", f.project.ID, "", t0, tt.secs, true)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	list, err := entries.List(ctx, "u1", domain.EntryFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("rejected creates stored %d entries", len(list))
	}
	if _, err := entries.Create(ctx, "u1", "nope", "", t0, t0.Add(time.Hour), true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown project: expected not found, got %v", err)
	}
}

func TestEntries_ManualEntryAlongsideTimer(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	if _, err := NewTimerService(f.store, f.clock).Start(ctx, "u1", f.project.ID, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.logEntry(t, t0.Add(-3*time.Hour), time.Hour)
}

func TestEntries_UpdateRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	entries := NewEntryService(f.store, f.clock)
	e := f.logEntry(t, t0, time.Hour)

	f.clock.Advance(time.Hour)
	newEnd := t0.Add(90 * time.Minute)
	desc := "design review"
	updated, err := entries.Update(ctx, "u1", e.ID, domain.EntryPatch{
		EndTime:     &newEnd,
		Description: &desc,
		Reason:      "forgot to stop",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if *updated.DurationSeconds != 5400 {
		t.Errorf("duration = %d, want 5400", *updated.DurationSeconds)
	}

	history, err := entries.History(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	fields := map[string]*domain.EntryHistory{}
	for _, h := range history {
		fields[h.FieldName] = h
	}
	if len(fields) != 2 || fields["end_time"] == nil || fields["description"] == nil {
		t.Fatalf("unexpected history %+v", history)
	}
	if fields["end_time"].ChangeReason != "forgot to stop" {
		t.Errorf("reason = %q", fields["end_time"].ChangeReason)
	}

	// end before start after the patch is rejected and nothing is written
	badStart := t0.Add(2 * time.Hour)
	if _, err := entries.Update(ctx, "u1", e.ID, domain.EntryPatch{StartTime: &badStart}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if history2, _ := entries.History(ctx, "u1", e.ID); len(history2) != len(history) {
		t.Errorf("failed update wrote history")
	}
}

func TestEntries_UpdateRejectsEmptySpan(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	entries := NewEntryService(f.store, f.clock)
	e := f.logEntry(t, t0, time.Hour)

	tests := []struct {
		name  string
		patch domain.EntryPatch
	}{
		{"end moved onto start", domain.EntryPatch{EndTime: &t0}},
		{"start moved onto end", domain.EntryPatch{StartTime: ptrTime(t0.Add(time.Hour))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := entries.Update(ctx, "u1", e.ID, tt.patch); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	got, err := entries.Get(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got.DurationSeconds != 3600 {
		t.Errorf("duration = %d, want 3600", *got.DurationSeconds)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestEntries_UpdateProjectRevalidatesOwnership(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	e := f.logEntry(t, t0, time.Hour)

	other, err := NewCatalogService(f.store, f.clock).AddProject(ctx, "u2", "Theirs", nil, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	_, err = NewEntryService(f.store, f.clock).Update(ctx, "u1", e.ID, domain.EntryPatch{ProjectID: &other.ID})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEntries_DeleteAndOwnership(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	entries := NewEntryService(f.store, f.clock)
	e := f.logEntry(t, t0, time.Hour)

	if err := entries.Delete(ctx, "u2", e.ID, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign delete: expected not found, got %v", err)
	}
	if err := entries.Delete(ctx, "u1", e.ID, "duplicate"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := entries.Get(ctx, "u1", e.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("deleted entry still visible: %v", err)
	}
	if err := entries.Delete(ctx, "u1", e.ID, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestEntries_InvoicedEntriesAreImmutable(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	entries := NewEntryService(f.store, f.clock)
	e := f.logEntry(t, t0, time.Hour)

	_, err := newInvoices(f).Generate(ctx, "u1", GenerateRequest{ClientID: f.client.ID, TimeEntryIDs: []string{e.ID}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	desc := "edited"
	if _, err := entries.Update(ctx, "u1", e.ID, domain.EntryPatch{Description: &desc}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("update: expected conflict, got %v", err)
	}
	if err := entries.Delete(ctx, "u1", e.ID, ""); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("delete: expected conflict, got %v", err)
	}
}

func TestEntries_ListFiltersAndLimits(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	entries := NewEntryService(f.store, f.clock)

	for i := 0; i < 3; i++ {
		f.logEntry(t, t0.AddDate(0, 0, i), time.Hour)
	}

	from := t0.AddDate(0, 0, 1)
	list, err := entries.List(ctx, "u1", domain.EntryFilter{From: &from})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || !list[0].StartTime.After(list[1].StartTime) {
		t.Fatalf("expected 2 entries newest first, got %d", len(list))
	}

	if _, err := entries.List(ctx, "u1", domain.EntryFilter{Limit: domain.MaxListLimit + 1}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for oversized limit, got %v", err)
	}
}
