/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast holds the temporal vocabulary of the scheduler: civil
// broadcast dates, broadcast-day-relative times, and the per-channel grid
// lattice that every scheduling boundary must land on.
package broadcast

import (
	"fmt"
	"time"
)

// Date is a civil calendar date identifying one broadcast day. The
// broadcast day named by a Date starts at the channel's day-start offset
// on that date, not at calendar midnight.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// AddDays returns the date n calendar days later, normalizing month and
// year boundaries.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return DateOf(t)
}

// Weekday returns the calendar weekday of the date.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// After reports whether d is later than o.
func (d Date) After(o Date) bool {
	return o.Before(d)
}

// Equal reports whether the dates name the same day.
func (d Date) Equal(o Date) bool {
	return d.Year == o.Year && d.Month == o.Month && d.Day == o.Day
}

// DayToken is a lowercase three-letter weekday name used in zone day
// filters.
type DayToken string

// Valid day tokens, Monday first.
const (
	DayMon DayToken = "mon"
	DayTue DayToken = "tue"
	DayWed DayToken = "wed"
	DayThu DayToken = "thu"
	DayFri DayToken = "fri"
	DaySat DayToken = "sat"
	DaySun DayToken = "sun"
)

var weekdayTokens = map[time.Weekday]DayToken{
	time.Monday:    DayMon,
	time.Tuesday:   DayTue,
	time.Wednesday: DayWed,
	time.Thursday:  DayThu,
	time.Friday:    DayFri,
	time.Saturday:  DaySat,
	time.Sunday:    DaySun,
}

// TokenForWeekday maps a calendar weekday to its filter token.
func TokenForWeekday(w time.Weekday) DayToken {
	return weekdayTokens[w]
}

// ValidDayToken reports whether s is a recognized day token.
func ValidDayToken(s string) bool {
	switch DayToken(s) {
	case DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun:
		return true
	}
	return false
}
