package chat

import (
	"testing"
	"time"
)

func TestFormatMessageTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		t        time.Time
		expected string
	}{
		{
			name:     "zero time",
			t:        time.Time{},
			expected: "",
		},
		{
			name:     "today shows clock time",
			t:        time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC),
			expected: "09:05",
		},
		{
			name:     "yesterday",
			t:        time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC),
			expected: "Ontem",
		},
		{
			name:     "older shows full date",
			t:        time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC),
			expected: "08/03/2025",
		},
		{
			name:     "previous year",
			t:        time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC),
			expected: "31/12/2024",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMessageTime(tt.t, now); got != tt.expected {
				t.Errorf("FormatMessageTime(%v) = %q; want %q", tt.t, got, tt.expected)
			}
		})
	}
}
