package window

import (
	"errors"
	"testing"
	"time"

	"github.com/igefined/generic-trader/internal/domain"
)

func TestComputeLookback(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

	w := Compute(now, 5, false)

	wantStart := time.Date(2024, time.March, 10, 10, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("Start = %s, expected %s", w.Start, wantStart)
	}
	if !w.End.Equal(now) {
		t.Errorf("End = %s, expected %s", w.End, now)
	}
	if w.Empty() {
		t.Error("lookback window should not be empty")
	}
}

func TestComputeFromMarketOpen(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
		wantEmpty bool
	}{
		{
			name:      "weekday after open",
			now:       time.Date(2024, time.March, 13, 9, 15, 0, 0, Pacific),
			wantStart: time.Date(2024, time.March, 13, 6, 30, 0, 0, Pacific),
		},
		{
			name:      "weekday before open",
			now:       time.Date(2024, time.March, 13, 5, 0, 0, 0, Pacific),
			wantStart: time.Date(2024, time.March, 13, 6, 30, 0, 0, Pacific),
			wantEmpty: true,
		},
		{
			name:      "saturday rolls to monday",
			now:       time.Date(2024, time.March, 16, 11, 0, 0, 0, Pacific),
			wantStart: time.Date(2024, time.March, 18, 6, 30, 0, 0, Pacific),
			wantEmpty: true,
		},
		{
			name:      "sunday rolls to monday",
			now:       time.Date(2024, time.March, 17, 23, 0, 0, 0, Pacific),
			wantStart: time.Date(2024, time.March, 18, 6, 30, 0, 0, Pacific),
			wantEmpty: true,
		},
		{
			name:      "utc instant that is still friday in pacific",
			now:       time.Date(2024, time.March, 16, 2, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, time.March, 15, 6, 30, 0, 0, Pacific),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Compute(tt.now, 5, true)
			if !w.Start.Equal(tt.wantStart) {
				t.Errorf("Start = %s, expected %s", w.Start, tt.wantStart)
			}
			if !w.End.Equal(tt.now) {
				t.Errorf("End = %s, expected unrolled now %s", w.End, tt.now)
			}
			if w.Empty() != tt.wantEmpty {
				t.Errorf("Empty() = %v, expected %v", w.Empty(), tt.wantEmpty)
			}
			if tt.wantEmpty && !errors.Is(w.Validate(), domain.ErrInvalidArgument) {
				t.Errorf("Validate() = %v, expected ErrInvalidArgument", w.Validate())
			}
		})
	}
}

func TestIsTradingHour(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{"at open", time.Date(2024, time.March, 13, 6, 30, 0, 0, Pacific), true},
		{"one minute before open", time.Date(2024, time.March, 13, 6, 29, 0, 0, Pacific), false},
		{"midday", time.Date(2024, time.March, 13, 10, 0, 0, 0, Pacific), true},
		{"last minute", time.Date(2024, time.March, 13, 12, 59, 0, 0, Pacific), true},
		{"at close", time.Date(2024, time.March, 13, 13, 0, 0, 0, Pacific), false},
		{"saturday midday", time.Date(2024, time.March, 16, 10, 0, 0, 0, Pacific), false},
		{"eastern open expressed in utc", time.Date(2024, time.March, 13, 13, 30, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTradingHour(tt.at); got != tt.expected {
				t.Errorf("IsTradingHour(%s) = %v, expected %v", tt.at, got, tt.expected)
			}
		})
	}
}
