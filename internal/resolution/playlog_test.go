package resolution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

func seedSlate(t *testing.T, db *gorm.DB, ch *models.Channel, durMS int64) *models.CatalogItem {
	t.Helper()
	slate := &models.CatalogItem{
		ID:         uuid.NewString(),
		Title:      "Station Slate",
		DurationMS: durMS,
		Kind:       models.ItemSlate,
		Approved:   true,
	}
	if err := db.Create(slate).Error; err != nil {
		t.Fatalf("seed slate: %v", err)
	}
	if err := db.Model(ch).Update("slate_item_id", slate.ID).Error; err != nil {
		t.Fatalf("assign slate: %v", err)
	}
	return slate
}

func assertGapFree(t *testing.T, rows []models.PlaylogEvent, start, end time.Time) {
	t.Helper()
	if len(rows) == 0 {
		t.Fatalf("no playlog events")
	}
	if !rows[0].StartsAt.Equal(start) {
		t.Fatalf("playlog starts %s, want %s", rows[0].StartsAt, start)
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].StartsAt.Equal(rows[i-1].EndsAt) {
			t.Fatalf("gap between event %d ending %s and event %d starting %s",
				i-1, rows[i-1].EndsAt, i, rows[i].StartsAt)
		}
	}
	if last := rows[len(rows)-1]; !last.EndsAt.Equal(end) {
		t.Fatalf("playlog ends %s, want %s", last.EndsAt, end)
	}
}

func TestEmitPlaylogFillsAvails(t *testing.T) {
	eng, db, _ := setupEngine(t)
	ch := seedChannel(t, db, "UTC")
	slate := seedSlate(t, db, ch, 180_000)
	short := seedItem(t, db, "Twenty Minute Show", 1_200_000)
	seedPlan(t, db, ch.ID, "Main", 10,
		zoneSpec{name: "All Day", start: 0, end: broadcast.DaySeconds, progs: []*models.Program{assetProg(short)}})

	date := bd(2026, time.August, 24)
	day, err := eng.ResolveDay(context.Background(), ch.ID, date)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if day.AvailSeconds != 48*600 {
		t.Fatalf("avail seconds = %d, want %d", day.AvailSeconds, 48*600)
	}

	dayStart := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	n, err := eng.EmitPlaylog(context.Background(), ch.ID, dayStart.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	// each half hour: one show + three full slate loops + one truncated
	if want := 48 * 5; n != want {
		t.Fatalf("emitted %d events, want %d", n, want)
	}

	rows, err := eng.Playlog(context.Background(), ch.ID, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("playlog: %v", err)
	}
	assertGapFree(t, rows, dayStart, dayEnd)

	content, filler := 0, 0
	for _, ev := range rows {
		switch ev.Kind {
		case models.PlaylogContent:
			content++
		case models.PlaylogFiller:
			filler++
			if ev.CatalogItemID != slate.ID {
				t.Fatalf("filler event plays %s, want slate", ev.CatalogItemID)
			}
		}
	}
	if content != 48 || filler != 192 {
		t.Fatalf("content/filler = %d/%d, want 48/192", content, filler)
	}
	if rows[1].DurationMS != 180_000 || rows[4].DurationMS != 60_000 {
		t.Fatalf("slate loop durations = %d, %d; want 180000 and a 60000 truncation",
			rows[1].DurationMS, rows[4].DurationMS)
	}

	again, err := eng.EmitPlaylog(context.Background(), ch.ID, dayStart.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("re-emit: %v", err)
	}
	if again != 0 {
		t.Fatalf("re-emit wrote %d events, want 0", again)
	}
}

func TestEmitPlaylogRequiresSlate(t *testing.T) {
	eng, db, _ := setupEngine(t)
	ch := seedChannel(t, db, "UTC")
	short := seedItem(t, db, "Twenty Minute Show", 1_200_000)
	seedPlan(t, db, ch.ID, "Main", 10,
		zoneSpec{name: "All Day", start: 0, end: broadcast.DaySeconds, progs: []*models.Program{assetProg(short)}})

	date := bd(2026, time.August, 24)
	if _, err := eng.ResolveDay(context.Background(), ch.ID, date); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err := eng.EmitPlaylog(context.Background(), ch.ID, time.Date(2026, 8, 24, 20, 0, 0, 0, time.UTC))
	if err == nil || !strings.Contains(err.Error(), "slate") {
		t.Fatalf("err = %v, want missing slate", err)
	}
}

func TestEmitPlaylogSupersedes(t *testing.T) {
	eng, db, clock := setupEngine(t)
	ch := seedChannel(t, db, "UTC")
	showA := seedItem(t, db, "Morning Block", 1_800_000)
	showB := seedItem(t, db, "Replacement Block", 1_800_000)
	seedPlan(t, db, ch.ID, "Main", 10,
		zoneSpec{name: "All Day", start: 0, end: broadcast.DaySeconds, progs: []*models.Program{assetProg(showA)}})

	date := bd(2026, time.August, 24)
	day1, err := eng.ResolveDay(context.Background(), ch.ID, date)
	if err != nil {
		t.Fatalf("resolve rev 1: %v", err)
	}
	dayStart := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	if n, err := eng.EmitPlaylog(context.Background(), ch.ID, dayStart.Add(20*time.Hour)); err != nil || n != 48 {
		t.Fatalf("first emission = %d, %v; want 48", n, err)
	}

	clock.Set(time.Date(2026, 8, 24, 15, 10, 0, 0, time.UTC))
	seedPlan(t, db, ch.ID, "Takeover", 20,
		zoneSpec{name: "All Day", start: 0, end: broadcast.DaySeconds, progs: []*models.Program{assetProg(showB)}})
	day2, err := eng.ResolveDay(context.Background(), ch.ID, date)
	if err != nil {
		t.Fatalf("resolve rev 2: %v", err)
	}

	n, err := eng.EmitPlaylog(context.Background(), ch.ID, dayStart.Add(20*time.Hour))
	if err != nil {
		t.Fatalf("second emission: %v", err)
	}
	if n != 29 {
		t.Fatalf("second emission wrote %d events, want 29 from 15:30", n)
	}

	rows, err := eng.Playlog(context.Background(), ch.ID, dayStart, dayEnd)
	if err != nil {
		t.Fatalf("playlog: %v", err)
	}
	assertGapFree(t, rows, dayStart, dayEnd)
	if len(rows) != 48 {
		t.Fatalf("playlog has %d events, want 48", len(rows))
	}

	var old, fresh int
	for _, ev := range rows {
		switch ev.ScheduleDayID {
		case day1.ID:
			old++
			if ev.Title != "Morning Block" {
				t.Fatalf("aired event rewritten to %q", ev.Title)
			}
		case day2.ID:
			fresh++
			if ev.Title != "Replacement Block" {
				t.Fatalf("regenerated event = %q", ev.Title)
			}
		default:
			t.Fatalf("event owned by unknown day %s", ev.ScheduleDayID)
		}
	}
	// events before now stay with the superseded revision; only the
	// future regenerated
	if old != 19 || fresh != 29 {
		t.Fatalf("kept/regenerated = %d/%d, want 19/29", old, fresh)
	}
}

func TestOnAirOffset(t *testing.T) {
	eng, db, _ := setupEngine(t)
	ch := seedChannel(t, db, "UTC")
	show := seedItem(t, db, "Half Hour Show", 1_800_000)
	seedPlan(t, db, ch.ID, "Main", 10,
		zoneSpec{name: "All Day", start: 0, end: broadcast.DaySeconds, progs: []*models.Program{assetProg(show)}})

	date := bd(2026, time.August, 24)
	if _, err := eng.ResolveDay(context.Background(), ch.ID, date); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	dayStart := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	if _, err := eng.EmitPlaylog(context.Background(), ch.ID, dayStart.Add(20*time.Hour)); err != nil {
		t.Fatalf("emit: %v", err)
	}

	at := dayStart.Add(45 * time.Minute)
	on, err := eng.OnAir(context.Background(), ch.ID, at)
	if err != nil {
		t.Fatalf("on air: %v", err)
	}
	if on.CatalogItemID != show.ID || on.Kind != models.PlaylogContent {
		t.Fatalf("on air = %s %s", on.CatalogItemID, on.Kind)
	}
	if !on.StartsAt.Equal(dayStart.Add(30 * time.Minute)) {
		t.Fatalf("on air starts %s", on.StartsAt)
	}
	if on.OffsetMS != 900_000 || on.RemainingMS != 900_000 {
		t.Fatalf("offset/remaining = %d/%d, want 900000/900000", on.OffsetMS, on.RemainingMS)
	}

	_, err = eng.OnAir(context.Background(), ch.ID, dayStart.Add(-2*time.Hour))
	var nf *scheduling.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want not found outside the emitted horizon", err)
	}
}
