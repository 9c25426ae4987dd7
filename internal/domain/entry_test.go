package domain

import (
	"errors"
	"testing"
	"time"
)

func TestDurationSeconds(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	if got := DurationSeconds(t0, t0.Add(125*time.Second)); got != 125 {
		t.Errorf("DurationSeconds = %d, want 125", got)
	}
	if got := DurationSeconds(t0, t0.Add(-time.Hour)); got != 0 {
		t.Errorf("negative delta should clamp to 0, got %d", got)
	}
	if got := DurationSeconds(t0, t0.Add(1500*time.Millisecond)); got != 1 {
		t.Errorf("partial seconds should floor, got %d", got)
	}
}

func TestTimeEntry_StopAndComputedDuration(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	e := NewTimeEntry("owner", "project", "  coding ", t0, t0)

	if !e.IsRunning() {
		t.Fatal("new entry should be running")
	}
	if e.Description != "coding" {
		t.Errorf("description not trimmed: %q", e.Description)
	}
	if got := e.ComputedDuration(); got != 0 {
		t.Errorf("running ComputedDuration = %d, want 0", got)
	}
	if got := e.Elapsed(t0.Add(30 * time.Second)); got != 30 {
		t.Errorf("Elapsed = %d, want 30", got)
	}

	e.Stop(t0.Add(125 * time.Second))

	if e.IsRunning() {
		t.Fatal("stopped entry should not be running")
	}
	if e.DurationSeconds == nil || *e.DurationSeconds != 125 {
		t.Fatalf("DurationSeconds = %v, want 125", e.DurationSeconds)
	}
	if got := e.Elapsed(t0.Add(time.Hour)); got != 125 {
		t.Errorf("Elapsed after stop = %d, want 125", got)
	}
}

func TestEntryPatch_ApplyRecomputesDuration(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	e := NewTimeEntry("owner", "project", "", t0, t0)
	e.Stop(t0.Add(time.Hour))

	newEnd := t0.Add(3 * time.Hour)
	billable := false
	EntryPatch{EndTime: &newEnd, IsBillable: &billable}.Apply(e)

	if *e.DurationSeconds != 3*3600 {
		t.Errorf("duration = %d, want %d", *e.DurationSeconds, 3*3600)
	}
	if e.IsBillable {
		t.Error("billable should be false")
	}
}

func TestTimeEntry_Validate(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		end     time.Time
		wantErr bool
	}{
		{"end before start", t0.Add(-time.Second), true},
		{"end equals start", t0, false},
		{"end after start", t0.Add(time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewTimeEntry("owner", "project", "", t0, t0)
			end := tt.end
			e.EndTime = &end

			err := e.Validate()
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTimeEntry_StopBeforeStartClamps(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	e := NewTimeEntry("owner", "project", "", t0, t0)

	e.Stop(t0.Add(-5 * time.Second))

	if e.EndTime == nil || !e.EndTime.Equal(t0) {
		t.Fatalf("end = %v, want %v", e.EndTime, t0)
	}
	if *e.DurationSeconds != 0 {
		t.Errorf("duration = %d, want 0", *e.DurationSeconds)
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEntryFilter_Normalize(t *testing.T) {
	f := EntryFilter{}
	if err := f.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if f.Limit != DefaultListLimit {
		t.Errorf("default limit = %d, want %d", f.Limit, DefaultListLimit)
	}

	f = EntryFilter{Limit: MaxListLimit + 1}
	if err := f.Normalize(); !errors.Is(err, ErrValidation) {
		t.Errorf("limit over max should fail, got %v", err)
	}

	f = EntryFilter{Offset: -1}
	if err := f.Normalize(); !errors.Is(err, ErrValidation) {
		t.Errorf("negative offset should fail, got %v", err)
	}
}

func TestDiffEntries(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	old := NewTimeEntry("owner", "p1", "a", t0, t0)
	old.Stop(t0.Add(time.Hour))

	updated := *old
	updated.ProjectID = "p2"
	updated.Description = "b"

	changes := DiffEntries(old, &updated)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].FieldName != "project_id" || changes[0].OldValue != "p1" || changes[0].NewValue != "p2" {
		t.Errorf("unexpected first change: %+v", changes[0])
	}
}
