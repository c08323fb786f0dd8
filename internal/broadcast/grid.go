/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"fmt"
	"time"
)

// Grid is a channel's alignment lattice: block size, valid block-start
// minutes within an hour, and the broadcast-day start offset. Zone
// boundaries are checked against the lattice anchored at the day start,
// never at calendar midnight.
type Grid struct {
	BlockMinutes    int
	Offsets         []int
	DayStartMinutes int
}

// Validate checks the grid configuration itself. Offsets must include 0;
// without it the day boundaries 00:00 and 24:00 could never sit on the
// lattice and no plan could cover a full day.
func (g Grid) Validate() error {
	if g.BlockMinutes <= 0 {
		return fmt.Errorf("grid block size %d: must be positive", g.BlockMinutes)
	}
	if 60%g.BlockMinutes != 0 && g.BlockMinutes%60 != 0 {
		return fmt.Errorf("grid block size %d: must divide or be a multiple of 60", g.BlockMinutes)
	}
	if len(g.Offsets) == 0 {
		return fmt.Errorf("grid offsets: at least one required")
	}
	seen := make(map[int]bool, len(g.Offsets))
	hasZero := false
	for _, off := range g.Offsets {
		if off < 0 || off >= 60 {
			return fmt.Errorf("grid offset %d: out of range [0,60)", off)
		}
		if seen[off] {
			return fmt.Errorf("grid offset %d: duplicate", off)
		}
		seen[off] = true
		if off == 0 {
			hasZero = true
		}
	}
	if !hasZero {
		return fmt.Errorf("grid offsets: must include 0")
	}
	if g.DayStartMinutes < 0 || g.DayStartMinutes >= 24*60 {
		return fmt.Errorf("broadcast day start %d: out of range [0,1440)", g.DayStartMinutes)
	}
	return nil
}

// BlockSeconds returns the block size in seconds.
func (g Grid) BlockSeconds() int { return g.BlockMinutes * 60 }

func (g Grid) offsetSet() map[int]bool {
	set := make(map[int]bool, len(g.Offsets))
	for _, off := range g.Offsets {
		set[off] = true
	}
	return set
}

// Aligned reports whether t sits on the lattice. The normalized end of
// day is always a boundary.
func (g Grid) Aligned(t DayTime) bool {
	if t == DaySeconds {
		return true
	}
	if !t.WholeMinute() {
		return false
	}
	return g.offsetSet()[t.Minutes()%60]
}

// DurationDivisible reports whether the window's covered time is a whole
// number of blocks.
func (g Grid) DurationDivisible(w Window) bool {
	return w.DurationSeconds()%g.BlockSeconds() == 0
}

// NextBoundaryAfter returns the first lattice offset strictly after rel
// seconds from the day start.
func (g Grid) NextBoundaryAfter(rel int) int {
	set := g.offsetSet()
	for m := rel/60 + 1; ; m++ {
		if set[m%60] {
			return m * 60
		}
	}
}

// BoundaryAtOrAfter returns rel when it already sits on the lattice,
// otherwise the next boundary after it.
func (g Grid) BoundaryAtOrAfter(rel int) int {
	if rel%60 == 0 && g.offsetSet()[(rel/60)%60] {
		return rel
	}
	return g.NextBoundaryAfter(rel)
}

// DayStart returns the absolute instant the broadcast day begins in loc.
// Construction from wall components lets the location normalize day-start
// offsets that land inside a DST gap.
func (g Grid) DayStart(date Date, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day,
		g.DayStartMinutes/60, g.DayStartMinutes%60, 0, 0, loc)
}

// DayWindow returns the half-open absolute interval of a broadcast day.
func (g Grid) DayWindow(date Date, loc *time.Location) (time.Time, time.Time) {
	return g.DayStart(date, loc), g.DayStart(date.AddDays(1), loc)
}

// DayLengthSeconds returns the physical length of the broadcast day,
// 23, 24 or 25 hours around DST transitions.
func (g Grid) DayLengthSeconds(date Date, loc *time.Location) int {
	start, end := g.DayWindow(date, loc)
	return int(end.Sub(start) / time.Second)
}

// BroadcastDayOf attributes an instant to its broadcast day: local time
// at or past the day-start offset belongs to that calendar date,
// earlier local time belongs to the previous one.
func (g Grid) BroadcastDayOf(t time.Time, loc *time.Location) Date {
	local := t.In(loc)
	d := DateOf(local)
	if local.Before(g.DayStart(d, loc)) {
		return d.AddDays(-1)
	}
	return d
}

// Transition describes the DST change inside one broadcast day.
type Transition struct {
	// Short is true on spring-forward days (local day under 24h).
	Short bool
	// ShiftSeconds is the magnitude of the clock jump, normally 3600.
	ShiftSeconds int
	// At is the absolute instant local clocks jump.
	At time.Time
	// PhysicalOffset is seconds from the day start to the jump. Nominal
	// and physical offsets agree before the jump.
	PhysicalOffset int
}

// Transition locates the DST change inside a broadcast day, or returns
// nil on a plain 24-hour day.
func (g Grid) Transition(date Date, loc *time.Location) *Transition {
	start, end := g.DayWindow(date, loc)
	length := int(end.Sub(start) / time.Second)
	if length == DaySeconds {
		return nil
	}
	_, startOff := start.Zone()
	lo, hi := 0, length
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if _, off := start.Add(time.Duration(mid) * time.Second).Zone(); off != startOff {
			hi = mid
		} else {
			lo = mid
		}
	}
	shift := DaySeconds - length
	tr := &Transition{
		Short:          shift > 0,
		ShiftSeconds:   shift,
		At:             start.Add(time.Duration(hi) * time.Second),
		PhysicalOffset: hi,
	}
	if !tr.Short {
		tr.ShiftSeconds = -shift
	}
	return tr
}

// PhysicalSeconds maps a nominal day offset onto physical seconds from
// the day start. On a short day the skipped span clamps to the jump; on
// a long day offsets past the jump take the second occurrence of the
// repeated hour.
func (tr *Transition) PhysicalSeconds(nominal int) int {
	if tr == nil {
		return nominal
	}
	if nominal <= tr.PhysicalOffset {
		return nominal
	}
	if tr.Short {
		if nominal < tr.PhysicalOffset+tr.ShiftSeconds {
			return tr.PhysicalOffset
		}
		return nominal - tr.ShiftSeconds
	}
	return nominal + tr.ShiftSeconds
}

// SpansNominal reports whether a nominal window contains the jump, which
// is exactly when its physical duration differs from its nominal one.
// On a short day the skipped nominal span is [offset, offset+shift); on a
// long day the repeated hour hangs off the single nominal instant at the
// jump and belongs to the window starting there.
func (tr *Transition) SpansNominal(w Window) bool {
	if tr == nil {
		return false
	}
	for _, seg := range w.Segments() {
		start, end := int(seg.Start), int(seg.End)
		if tr.Short {
			if start < tr.PhysicalOffset+tr.ShiftSeconds && end > tr.PhysicalOffset {
				return true
			}
		} else if start <= tr.PhysicalOffset && end > tr.PhysicalOffset {
			return true
		}
	}
	return false
}
