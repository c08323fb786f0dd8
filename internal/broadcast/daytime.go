/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"fmt"
	"strconv"
	"strings"
)

// DaySeconds is the length of a nominal broadcast day.
const DaySeconds = 24 * 60 * 60

// DayTime is an offset in seconds from the broadcast-day start. The
// normalized end-of-day value DaySeconds prints as 24:00:00; no larger
// value is representable.
type DayTime int

// ParseDayTime parses HH:MM or HH:MM:SS. 24:00 and 24:00:00 are accepted
// as the normalized end-of-day.
func ParseDayTime(s string) (DayTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("parse day time %q: want HH:MM or HH:MM:SS", s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("parse day time %q: component %q is not two digits", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("parse day time %q: component %q is not a number", s, p)
		}
		nums[i] = n
	}
	h, m, sec := nums[0], nums[1], 0
	if len(nums) == 3 {
		sec = nums[2]
	}
	if m > 59 || sec > 59 {
		return 0, fmt.Errorf("parse day time %q: minute or second out of range", s)
	}
	total := h*3600 + m*60 + sec
	if total > DaySeconds {
		return 0, fmt.Errorf("parse day time %q: beyond 24:00:00", s)
	}
	return DayTime(total), nil
}

func (t DayTime) String() string {
	if t == DaySeconds {
		return "24:00:00"
	}
	return fmt.Sprintf("%02d:%02d:%02d", int(t)/3600, int(t)/60%60, int(t)%60)
}

// Seconds returns the offset in seconds.
func (t DayTime) Seconds() int { return int(t) }

// Minutes returns the offset in whole minutes.
func (t DayTime) Minutes() int { return int(t) / 60 }

// WholeMinute reports whether the time has a zero seconds component.
func (t DayTime) WholeMinute() bool { return int(t)%60 == 0 }

// Window is a broadcast-day-relative time window. Start > End marks a
// wrap window spanning the day boundary; it covers [0,End) and
// [Start,24:00) on each day it is active.
type Window struct {
	Start DayTime
	End   DayTime
}

// Wraps reports whether the window spans the broadcast-day boundary.
func (w Window) Wraps() bool { return w.Start > w.End }

// Segments returns the window as non-wrapping pieces in day order.
func (w Window) Segments() []Window {
	if !w.Wraps() {
		return []Window{w}
	}
	segs := make([]Window, 0, 2)
	if w.End > 0 {
		segs = append(segs, Window{Start: 0, End: w.End})
	}
	segs = append(segs, Window{Start: w.Start, End: DaySeconds})
	return segs
}

// DurationSeconds returns the total covered seconds.
func (w Window) DurationSeconds() int {
	if w.Wraps() {
		return (DaySeconds - int(w.Start)) + int(w.End)
	}
	return int(w.End) - int(w.Start)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t DayTime) bool {
	for _, s := range w.Segments() {
		if t >= s.Start && t < s.End {
			return true
		}
	}
	return false
}

// Intersects reports whether two windows share any time, comparing every
// unwrapped segment pair.
func (w Window) Intersects(o Window) bool {
	for _, a := range w.Segments() {
		for _, b := range o.Segments() {
			if a.Start < b.End && a.End > b.Start {
				return true
			}
		}
	}
	return false
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}
