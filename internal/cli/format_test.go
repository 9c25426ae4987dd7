package cli

import (
	"errors"
	"testing"
	"time"

	"github.com/andy/timebill/internal/domain"
)

func TestParseDateTime(t *testing.T) {
	now := time.Date(2025, 3, 3, 14, 0, 0, 0, time.Local)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01 09:30", time.Date(2025, 3, 1, 9, 30, 0, 0, time.Local)},
		{"2025-03-01 09:30:15", time.Date(2025, 3, 1, 9, 30, 15, 0, time.Local)},
		{"2025-03-01T09:30:15", time.Date(2025, 3, 1, 9, 30, 15, 0, time.Local)},
		{"2025-03-01", time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)},
		{"2025-03-01T09:30:00Z", time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"08:15", time.Date(2025, 3, 3, 8, 15, 0, 0, time.Local)},
		{"now", now},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDateTime(tt.in, now)
			if err != nil {
				t.Fatalf("parseDateTime(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseDateTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := parseDateTime("last tuesday", now); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestParseDate(t *testing.T) {
	now := time.Date(2025, 3, 3, 23, 30, 0, 0, time.Local)

	today, err := parseDate("today", now)
	if err != nil || !today.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.Local)) {
		t.Errorf("today = %v, %v", today, err)
	}

	yesterday, err := parseDate("yesterday", now)
	if err != nil || !yesterday.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.Local)) {
		t.Errorf("yesterday = %v, %v", yesterday, err)
	}

	if _, err := parseDate("03/04/2025", now); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{125, "2m 5s"},
		{5400, "1h 30m 0s"},
		{90061, "25h 1m 1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.secs); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestParseTaxRate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.08", "0.08", false},
		{"8%", "0.08", false},
		{"8.25%", "0.0825", false},
		{"0", "0", false},
		{"1.5", "", true},
		{"-1%", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTaxRate(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTaxRate(%q): %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("parseTaxRate(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestMatchPrefix(t *testing.T) {
	ids := []string{
		"3f2a9c10-0000-4000-8000-000000000001",
		"3f2a9c11-0000-4000-8000-000000000002",
		"3f2a9c11-1111-4000-8000-000000000003",
	}

	got, err := matchPrefix("entry", "3F2A9C10", ids)
	if err != nil || got != ids[0] {
		t.Errorf("unique prefix = %q, %v", got, err)
	}

	if _, err := matchPrefix("entry", "3f2a9c11", ids); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("ambiguous prefix err = %v", err)
	}

	if _, err := matchPrefix("entry", "3f2a", ids); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("short prefix err = %v", err)
	}

	if _, err := matchPrefix("entry", "deadbeef", ids); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing prefix err = %v", err)
	}
}

func TestListAll(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		wantCalls int
	}{
		{"empty", 0, 1},
		{"short page", domain.MaxListLimit - 1, 1},
		{"exactly one page", domain.MaxListLimit, 2},
		{"spans three pages", 2*domain.MaxListLimit + 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := listAll(func(offset, limit int) ([]int, error) {
				calls++
				var page []int
				for i := offset; i < tt.total && len(page) < limit; i++ {
					page = append(page, i)
				}
				return page, nil
			})
			if err != nil {
				t.Fatalf("listAll: %v", err)
			}
			if len(got) != tt.total {
				t.Errorf("got %d items, want %d", len(got), tt.total)
			}
			for i, v := range got {
				if v != i {
					t.Fatalf("item %d = %d, pages overlapped or skipped", i, v)
				}
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}

	boom := errors.New("boom")
	if _, err := listAll(func(offset, limit int) ([]int, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("expected list error, got %v", err)
	}
}
