/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package broadcast

import (
	"testing"
	"time"
)

func testGrid() Grid {
	return Grid{BlockMinutes: 30, Offsets: []int{0, 30}, DayStartMinutes: 6 * 60}
}

func TestParseDayTime(t *testing.T) {
	tests := []struct {
		in      string
		want    DayTime
		wantErr bool
	}{
		{"00:00", 0, false},
		{"06:00", 6 * 3600, false},
		{"19:30:00", 19*3600 + 30*60, false},
		{"24:00", DaySeconds, false},
		{"24:00:00", DaySeconds, false},
		{"24:00:01", 0, true},
		{"25:00", 0, true},
		{"06:61", 0, true},
		{"6:00", 0, true},
		{"banana", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDayTime(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDayTime(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDayTime(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDayTime(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEndOfDayRoundTrip(t *testing.T) {
	got, err := ParseDayTime("24:00:00")
	if err != nil {
		t.Fatalf("ParseDayTime: %v", err)
	}
	if s := got.String(); s != "24:00:00" {
		t.Fatalf("String = %q, want 24:00:00", s)
	}
	if got != DaySeconds {
		t.Fatalf("stored value = %d, want %d", got, DaySeconds)
	}
}

func TestWindowSegments(t *testing.T) {
	plain := Window{Start: 6 * 3600, End: 12 * 3600}
	if plain.Wraps() {
		t.Fatal("plain window reported as wrapping")
	}
	if got := plain.DurationSeconds(); got != 6*3600 {
		t.Fatalf("duration = %d, want %d", got, 6*3600)
	}

	wrap := Window{Start: 23 * 3600, End: 1 * 3600}
	if !wrap.Wraps() {
		t.Fatal("wrap window not detected")
	}
	segs := wrap.Segments()
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != 3600 {
		t.Fatalf("first segment = %v", segs[0])
	}
	if segs[1].Start != 23*3600 || segs[1].End != DaySeconds {
		t.Fatalf("second segment = %v", segs[1])
	}
	if got := wrap.DurationSeconds(); got != 2*3600 {
		t.Fatalf("wrap duration = %d, want %d", got, 2*3600)
	}
}

func TestWindowIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b Window
		want bool
	}{
		{"disjoint", Window{0, 3600}, Window{3600, 7200}, false},
		{"overlap", Window{0, 7200}, Window{3600, 10800}, true},
		{"nested", Window{0, 10800}, Window{3600, 7200}, true},
		{"wrap vs head", Window{23 * 3600, 3600}, Window{0, 1800}, true},
		{"wrap vs middle", Window{23 * 3600, 3600}, Window{12 * 3600, 13 * 3600}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersects(tt.b); got != tt.want {
				t.Fatalf("Intersects = %v, want %v", got, tt.want)
			}
			if got := tt.b.Intersects(tt.a); got != tt.want {
				t.Fatalf("Intersects (reversed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGridValidate(t *testing.T) {
	tests := []struct {
		name    string
		grid    Grid
		wantErr bool
	}{
		{"valid", testGrid(), false},
		{"hour blocks", Grid{BlockMinutes: 60, Offsets: []int{0}, DayStartMinutes: 0}, false},
		{"two hour blocks", Grid{BlockMinutes: 120, Offsets: []int{0}, DayStartMinutes: 360}, false},
		{"zero block", Grid{BlockMinutes: 0, Offsets: []int{0}}, true},
		{"ragged block", Grid{BlockMinutes: 45, Offsets: []int{0}}, true},
		{"no offsets", Grid{BlockMinutes: 30}, true},
		{"missing zero offset", Grid{BlockMinutes: 30, Offsets: []int{15, 45}}, true},
		{"duplicate offset", Grid{BlockMinutes: 30, Offsets: []int{0, 30, 30}}, true},
		{"offset out of range", Grid{BlockMinutes: 30, Offsets: []int{0, 60}}, true},
		{"day start out of range", Grid{BlockMinutes: 30, Offsets: []int{0}, DayStartMinutes: 1440}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("want error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGridAlignment(t *testing.T) {
	g := testGrid()
	tests := []struct {
		in   string
		want bool
	}{
		{"00:00", true},
		{"19:30", true},
		{"19:45", false},
		{"19:30:30", false},
		{"24:00:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dt, err := ParseDayTime(tt.in)
			if err != nil {
				t.Fatalf("ParseDayTime: %v", err)
			}
			if got := g.Aligned(dt); got != tt.want {
				t.Fatalf("Aligned(%s) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNextBoundaryAfter(t *testing.T) {
	g := testGrid()
	tests := []struct {
		rel  int
		want int
	}{
		{0, 1800},
		{100, 1800},
		{1800, 3600},
		{1811, 3600},
		{86100, 86400},
	}
	for _, tt := range tests {
		if got := g.NextBoundaryAfter(tt.rel); got != tt.want {
			t.Fatalf("NextBoundaryAfter(%d) = %d, want %d", tt.rel, got, tt.want)
		}
	}
	if got := g.BoundaryAtOrAfter(1800); got != 1800 {
		t.Fatalf("BoundaryAtOrAfter(1800) = %d, want 1800", got)
	}
	if got := g.BoundaryAtOrAfter(1801); got != 3600 {
		t.Fatalf("BoundaryAtOrAfter(1801) = %d, want 3600", got)
	}
}

func TestBroadcastDayAttribution(t *testing.T) {
	g := testGrid()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	tests := []struct {
		name  string
		local time.Time
		want  Date
	}{
		{"after day start", time.Date(2026, 7, 10, 12, 0, 0, 0, loc), Date{2026, 7, 10}},
		{"exactly day start", time.Date(2026, 7, 10, 6, 0, 0, 0, loc), Date{2026, 7, 10}},
		{"before day start", time.Date(2026, 7, 10, 5, 59, 0, 0, loc), Date{2026, 7, 9}},
		{"just past midnight", time.Date(2026, 7, 11, 0, 30, 0, 0, loc), Date{2026, 7, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.BroadcastDayOf(tt.local, loc); !got.Equal(tt.want) {
				t.Fatalf("BroadcastDayOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransitionDetection(t *testing.T) {
	g := testGrid()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	t.Run("plain day", func(t *testing.T) {
		if tr := g.Transition(Date{2026, 7, 10}, loc); tr != nil {
			t.Fatalf("unexpected transition: %+v", tr)
		}
		if got := g.DayLengthSeconds(Date{2026, 7, 10}, loc); got != DaySeconds {
			t.Fatalf("day length = %d, want %d", got, DaySeconds)
		}
	})

	t.Run("spring forward", func(t *testing.T) {
		// Clocks jump 02:00 -> 03:00 on 2026-03-08, inside broadcast
		// day 2026-03-07 (06:00 day start).
		date := Date{2026, 3, 7}
		if got := g.DayLengthSeconds(date, loc); got != 23*3600 {
			t.Fatalf("day length = %d, want %d", got, 23*3600)
		}
		tr := g.Transition(date, loc)
		if tr == nil {
			t.Fatal("transition not detected")
		}
		if !tr.Short {
			t.Fatal("spring forward should be a short day")
		}
		if tr.ShiftSeconds != 3600 {
			t.Fatalf("shift = %d, want 3600", tr.ShiftSeconds)
		}
		if tr.PhysicalOffset != 20*3600 {
			t.Fatalf("physical offset = %d, want %d", tr.PhysicalOffset, 20*3600)
		}
	})

	t.Run("fall back", func(t *testing.T) {
		// Clocks fall 02:00 -> 01:00 on 2026-11-01, inside broadcast
		// day 2026-10-31.
		date := Date{2026, 10, 31}
		if got := g.DayLengthSeconds(date, loc); got != 25*3600 {
			t.Fatalf("day length = %d, want %d", got, 25*3600)
		}
		tr := g.Transition(date, loc)
		if tr == nil {
			t.Fatal("transition not detected")
		}
		if tr.Short {
			t.Fatal("fall back should be a long day")
		}
		if tr.PhysicalOffset != 20*3600 {
			t.Fatalf("physical offset = %d, want %d", tr.PhysicalOffset, 20*3600)
		}
	})
}

func TestTransitionNominalMapping(t *testing.T) {
	g := testGrid()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	short := g.Transition(Date{2026, 3, 7}, loc)
	if short == nil {
		t.Fatal("missing spring transition")
	}
	long := g.Transition(Date{2026, 10, 31}, loc)
	if long == nil {
		t.Fatal("missing fall transition")
	}

	tests := []struct {
		name    string
		tr      *Transition
		nominal int
		want    int
	}{
		{"short before jump", short, 10 * 3600, 10 * 3600},
		{"short inside skipped hour", short, 20*3600 + 1800, 20 * 3600},
		{"short after jump", short, 22 * 3600, 21 * 3600},
		{"short end of day", short, DaySeconds, 23 * 3600},
		{"long before jump", long, 10 * 3600, 10 * 3600},
		{"long after jump", long, 22 * 3600, 23 * 3600},
		{"long end of day", long, DaySeconds, 25 * 3600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tr.PhysicalSeconds(tt.nominal); got != tt.want {
				t.Fatalf("PhysicalSeconds(%d) = %d, want %d", tt.nominal, got, tt.want)
			}
		})
	}

	spanning := Window{Start: 19 * 3600, End: 21 * 3600}
	if !short.SpansNominal(spanning) {
		t.Fatal("window over the skipped hour should span the transition")
	}
	after := Window{Start: 21 * 3600, End: DaySeconds}
	if short.SpansNominal(after) {
		t.Fatal("window after the jump must not span the transition")
	}
	before := Window{Start: 0, End: 19 * 3600}
	if short.SpansNominal(before) {
		t.Fatal("window before the jump must not span the transition")
	}
}

func TestDateHelpers(t *testing.T) {
	d, err := ParseDate("2026-12-31")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if next := d.AddDays(1); !next.Equal(Date{2027, 1, 1}) {
		t.Fatalf("AddDays = %s, want 2027-01-01", next)
	}
	if d.Weekday() != time.Thursday {
		t.Fatalf("weekday = %s, want Thursday", d.Weekday())
	}
	if !ValidDayToken("mon") || ValidDayToken("monday") {
		t.Fatal("day token validation broken")
	}
	if TokenForWeekday(time.Thursday) != DayThu {
		t.Fatal("token mapping broken")
	}
}
