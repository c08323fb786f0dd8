/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeauthority is the single source of "now" for the scheduler.
// Components never read the wall clock directly; they hold an Authority
// bound to a channel's timezone and ask it. Tests inject a fixed clock.
package timeauthority

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNaiveTimestamp is returned when an ingress timestamp carries no
// explicit UTC offset. All instants crossing the API or CLI boundary must
// be zone-qualified.
var ErrNaiveTimestamp = errors.New("timestamp has no UTC offset")

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process wall clock. The monotonic reading carried
// by time.Now keeps in-process comparisons monotonic across NTP steps.
type SystemClock struct{}

// Now returns the current UTC instant.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a controllable clock for deterministic tests.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock pins the clock to t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Authority binds a clock to one channel's timezone and answers every
// time question the engine has: the current instant, local conversion,
// and elapsed seconds.
type Authority struct {
	clock Clock
	loc   *time.Location
}

// New builds an Authority over clock in loc. A nil location means UTC.
func New(clock Clock, loc *time.Location) *Authority {
	if loc == nil {
		loc = time.UTC
	}
	return &Authority{clock: clock, loc: loc}
}

// ForTimezone builds an Authority for an IANA timezone name.
func ForTimezone(clock Clock, name string) (*Authority, error) {
	if name == "" {
		return New(clock, time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return New(clock, loc), nil
}

// NowUTC returns the current instant in UTC.
func (a *Authority) NowUTC() time.Time {
	return a.clock.Now().UTC()
}

// NowLocal returns the current instant in the bound timezone.
func (a *Authority) NowLocal() time.Time {
	return a.clock.Now().In(a.loc)
}

// Location returns the bound timezone.
func (a *Authority) Location() *time.Location {
	return a.loc
}

// ToLocal converts a UTC instant into the bound timezone.
func (a *Authority) ToLocal(t time.Time) time.Time {
	return t.In(a.loc)
}

// ToUTC converts an instant into UTC.
func (a *Authority) ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// SecondsSince reports elapsed seconds between t and now. Values in the
// future clamp to zero, never negative.
func (a *Authority) SecondsSince(t time.Time) float64 {
	d := a.clock.Now().Sub(t)
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

// naiveLayouts are accepted by careless producers and explicitly rejected
// here so the failure names the real problem instead of a format error.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an RFC 3339 instant. Timestamps lacking an
// explicit offset are rejected with ErrNaiveTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if _, naiveErr := time.Parse(layout, s); naiveErr == nil {
			return time.Time{}, fmt.Errorf("parse %q: %w", s, ErrNaiveTimestamp)
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
}
