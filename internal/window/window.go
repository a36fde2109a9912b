// Package window computes intraday lookback windows and the regular trading
// session of US equity markets, expressed in US/Pacific time.
package window

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/igefined/generic-trader/internal/domain"
)

var Pacific = mustLoad("America/Los_Angeles")

const (
	openHour, openMinute   = 6, 30
	closeHour, closeMinute = 13, 0
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports a window whose start is after its end. This happens with
// fromMarketOpen on a weekend or before the open on a weekday.
func (w Window) Empty() bool {
	return w.Start.After(w.End)
}

// Validate rejects empty windows instead of rolling End forward.
func (w Window) Validate() error {
	if w.Empty() {
		return fmt.Errorf("%w: window start %s is after end %s",
			domain.ErrInvalidArgument, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Compute returns the lookback window ending at now. Without fromMarketOpen
// the start is lookbackDays calendar days before now at the same wall clock.
// With fromMarketOpen the start is the market open of now's day, a weekend now
// rolling forward to Monday first; End is always the unrolled now.
func Compute(now time.Time, lookbackDays int, fromMarketOpen bool) Window {
	if !fromMarketOpen {
		return Window{Start: now.AddDate(0, 0, -lookbackDays), End: now}
	}

	day := now.In(Pacific)
	switch day.Weekday() {
	case time.Saturday:
		day = day.AddDate(0, 0, 2)
	case time.Sunday:
		day = day.AddDate(0, 0, 1)
	}

	return Window{Start: MarketOpen(day), End: now}
}

// MarketOpen returns the 06:30 Pacific open on the calendar day of t.
func MarketOpen(t time.Time) time.Time {
	p := t.In(Pacific)
	return time.Date(p.Year(), p.Month(), p.Day(), openHour, openMinute, 0, 0, Pacific)
}

// IsTradingHour reports whether t falls in the regular session, 06:30 inclusive
// to 13:00 exclusive Pacific, Monday through Friday. Holidays are not known.
func IsTradingHour(t time.Time) bool {
	p := t.In(Pacific)
	if p.Weekday() == time.Saturday || p.Weekday() == time.Sunday {
		return false
	}
	minutes := p.Hour()*60 + p.Minute()
	return minutes >= openHour*60+openMinute && minutes < closeHour*60+closeMinute
}
