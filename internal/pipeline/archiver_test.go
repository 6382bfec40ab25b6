package pipeline

import (
	"testing"
	"time"
)

func TestParseCronFieldCount(t *testing.T) {
	if _, err := parseCron("0 3 * *"); err == nil {
		t.Fatal("expected error for 4-field expression")
	}
	if _, err := parseCron("0 3 * * * *"); err == nil {
		t.Fatal("expected error for 6-field expression")
	}
	if _, err := parseCron("0 x * * *"); err == nil {
		t.Fatal("expected error for non-numeric field")
	}
	if _, err := parseCron("0 3 * * *"); err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}
}

func TestCronFieldMatches(t *testing.T) {
	f, err := parseCronField("1,15")
	if err != nil {
		t.Fatalf("parseCronField: %v", err)
	}
	if !f.matches(1) || !f.matches(15) {
		t.Fatal("listed values should match")
	}
	if f.matches(2) {
		t.Fatal("unlisted value should not match")
	}

	wild, err := parseCronField("*")
	if err != nil {
		t.Fatalf("parseCronField: %v", err)
	}
	if !wild.matches(59) {
		t.Fatal("wildcard should match everything")
	}
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2025, 6, 15, 14, 30, 12, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		// Daily at 03:00, next run is tomorrow morning.
		{"0 3 * * *", time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC)},
		// Hourly on the hour, next run is the top of the next hour.
		{"0 * * * *", time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC)},
		// Already past 14:00 today, so tomorrow.
		{"0 14 * * *", time.Date(2025, 6, 16, 14, 0, 0, 0, time.UTC)},
		// First of the month at 03:00.
		{"0 3 1 * *", time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC)},
		// Sunday (2025-06-15 is a Sunday, but 03:00 has passed).
		{"0 3 * * 0", time.Date(2025, 6, 22, 3, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := nextCronTime(tt.expr, after)
		if err != nil {
			t.Fatalf("nextCronTime(%q): %v", tt.expr, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("nextCronTime(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestNextCronTimeStartsAtNextMinute(t *testing.T) {
	// A wildcard expression must not return the current (partial) minute.
	after := time.Date(2025, 6, 15, 14, 30, 12, 0, time.UTC)
	got, err := nextCronTime("* * * * *", after)
	if err != nil {
		t.Fatalf("nextCronTime: %v", err)
	}
	want := time.Date(2025, 6, 15, 14, 31, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextCronTime = %v, want %v", got, want)
	}
}
