package mcp

import (
	"context"
	"testing"
	"time"
)

// TestUserIDFromContextDefault verifies the default user ID (1) when no value
// is set in the context.
func TestUserIDFromContextDefault(t *testing.T) {
	if id := UserIDFromContext(context.Background()); id != 1 {
		t.Errorf("UserIDFromContext(empty) = %d, want 1", id)
	}
}

// TestUserIDFromContextSet verifies the user ID set by WithUserID is read back.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if id := UserIDFromContext(ctx); id != 42 {
		t.Errorf("UserIDFromContext = %d, want 42", id)
	}
}

// TestTimeRange verifies the lookback default and explicit dates in both
// accepted formats.
func TestTimeRange(t *testing.T) {
	start, end, err := timeRange("", "", daysBack(90))
	if err != nil {
		t.Fatalf("timeRange: %v", err)
	}
	if got := end.Sub(start).Hours() / 24; got < 89 || got > 91 {
		t.Errorf("default span = %.1f days, want ~90", got)
	}

	start, end, err = timeRange("2026-01-01", "2026-03-31T18:00:00Z", monthsBack(6))
	if err != nil {
		t.Fatalf("timeRange: %v", err)
	}
	if want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if end.Hour() != 18 {
		t.Errorf("end = %v, want 18:00", end)
	}

	start, _, err = timeRange("", "2026-07-15", monthsBack(6))
	if err != nil {
		t.Fatalf("timeRange: %v", err)
	}
	if want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

// TestTimeRangeInvalid verifies unparsable and inverted ranges are rejected.
func TestTimeRangeInvalid(t *testing.T) {
	tests := []struct{ start, end string }{
		{"not-a-date", ""},
		{"", "31/01/2026"},
		{"2026-02-01", "2026-01-01"},
	}
	for _, tt := range tests {
		if _, _, err := timeRange(tt.start, tt.end, daysBack(7)); err == nil {
			t.Errorf("timeRange(%q, %q) succeeded, want error", tt.start, tt.end)
		}
	}
}
