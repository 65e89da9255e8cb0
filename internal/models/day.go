package models

import (
	"fmt"
	"time"
)

// Day is a calendar date without time or zone, as produced by a date picker.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses an ISO 2006-01-02 date.
func ParseDay(raw string) (Day, error) {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", raw, err)
	}
	return DayOf(t), nil
}

// IsZero reports whether d is unset.
func (d Day) IsZero() bool {
	return d == Day{}
}

// Valid reports whether d names a real calendar day. time.Date would
// otherwise normalize Feb 30 into March.
func (d Day) Valid() bool {
	t := d.UTC()
	return t.Year() == d.Year && t.Month() == d.Month && t.Day() == d.Day
}

// UTC returns the first instant of the day in UTC.
func (d Day) UTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.UTC().Before(other.UTC())
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DayRange is an inclusive range of calendar days.
type DayRange struct {
	From Day
	To   Day
}

// SingleDayRange returns the range covering just d.
func SingleDayRange(d Day) DayRange {
	return DayRange{From: d, To: d}
}
