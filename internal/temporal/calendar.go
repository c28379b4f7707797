// Package temporal maps acquisition dates onto the fixed-width period
// partition of a calendar year. Period indexing is pure and total: every
// date of the year maps to exactly one period, periods never overlap, and
// the final period absorbs the remainder of the year.
package temporal

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPeriodDays is the canonical period width. A 12-day width yields 31
// periods for both 365- and 366-day years; the final period has 5 days in a
// common year and 6 in a leap year.
const DefaultPeriodDays = 12

var (
	// ErrDateOutsideYear is returned when a date does not belong to the calendar's year.
	ErrDateOutsideYear = errors.New("date outside calendar year")
	// ErrPeriodOutOfRange is returned for a period index outside [1, Periods()].
	ErrPeriodOutOfRange = errors.New("period index out of range")
)

// Calendar is the period partition of one calendar year.
type Calendar struct {
	Year       int
	PeriodDays int
}

// NewCalendar returns a calendar for the given year. A non-positive
// periodDays selects the default width.
func NewCalendar(year, periodDays int) (Calendar, error) {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}
	c := Calendar{Year: year, PeriodDays: periodDays}
	if periodDays > c.DaysInYear() {
		return Calendar{}, fmt.Errorf("period width %d exceeds year length %d", periodDays, c.DaysInYear())
	}
	return c, nil
}

// DaysInYear returns the actual length of the calendar's year, including
// leap days.
func (c Calendar) DaysInYear() int {
	return time.Date(c.Year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// Periods returns the number of periods P in the year.
func (c Calendar) Periods() int {
	return (c.DaysInYear() + c.PeriodDays - 1) / c.PeriodDays
}

// PeriodOf returns the 1-based period index containing t. The time's
// calendar date in UTC is used; the year must match.
func (c Calendar) PeriodOf(t time.Time) (int, error) {
	t = t.UTC()
	if t.Year() != c.Year {
		return 0, fmt.Errorf("%w: %s not in %d", ErrDateOutsideYear, t.Format("2006-01-02"), c.Year)
	}
	p := (t.YearDay()-1)/c.PeriodDays + 1
	if max := c.Periods(); p > max {
		p = max
	}
	return p, nil
}

// Range returns the inclusive first and last day of period p, both at
// midnight UTC. The final period is clipped to December 31.
func (c Calendar) Range(p int) (start, end time.Time, err error) {
	if p < 1 || p > c.Periods() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %d (max %d)", ErrPeriodOutOfRange, p, c.Periods())
	}
	start = time.Date(c.Year, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, (p-1)*c.PeriodDays)
	end = start.AddDate(0, 0, c.PeriodDays-1)
	if yearEnd := time.Date(c.Year, 12, 31, 0, 0, 0, 0, time.UTC); end.After(yearEnd) {
		end = yearEnd
	}
	return start, end, nil
}

// Days returns the number of days in period p.
func (c Calendar) Days(p int) (int, error) {
	start, end, err := c.Range(p)
	if err != nil {
		return 0, err
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// ExpectedAcquisitions returns how many acquisitions a sensor with the
// given revisit interval is expected to deliver within period p, assuming
// the first acquisition of the year falls on January 1. Used by the
// completeness report.
func (c Calendar) ExpectedAcquisitions(p, revisitDays int) (int, error) {
	if revisitDays <= 0 {
		return 0, fmt.Errorf("invalid revisit interval %d", revisitDays)
	}
	start, end, err := c.Range(p)
	if err != nil {
		return 0, err
	}
	startDay := start.YearDay() - 1
	endDay := end.YearDay() - 1
	// Acquisition days are 0, revisit, 2*revisit, ... counted inside [startDay, endDay].
	first := (startDay + revisitDays - 1) / revisitDays
	last := endDay / revisitDays
	if last < first {
		return 0, nil
	}
	return last - first + 1, nil
}
