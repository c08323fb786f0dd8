/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/storage"
)

func setupExporter(t *testing.T) (*Exporter, *gorm.DB, *storage.FSStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.ScheduleDay{}, &models.ScheduleSegment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := storage.NewFSStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	return NewExporter(db, store, events.NewBus(), zerolog.Nop()), db, store
}

func seedResolvedDay(t *testing.T, db *gorm.DB, date broadcast.Date) *models.Channel {
	t.Helper()
	channel := &models.Channel{
		ID:               uuid.NewString(),
		Name:             "City One",
		Slug:             "city-one",
		Timezone:         "UTC",
		GridBlockMinutes: 30,
		GridOffsets:      []int{0, 30},
		Active:           true,
		Version:          1,
	}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}

	day := &models.ScheduleDay{
		ID:            uuid.NewString(),
		ChannelID:     channel.ID,
		BroadcastDate: time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC),
		Revision:      1,
		State:         models.DayResolved,
		PlanName:      "Autumn Weekday",
		SegmentCount:  3,
	}
	if err := db.Create(day).Error; err != nil {
		t.Fatalf("create day: %v", err)
	}

	start := time.Date(date.Year, date.Month, date.Day, 6, 0, 0, 0, time.UTC)
	segments := []models.ScheduleSegment{
		{
			ID: uuid.NewString(), ScheduleDayID: day.ID, ChannelID: channel.ID,
			Position: 0, ZoneName: "Morning", Title: "Evening News #1",
			Kind: models.SegmentContent, StartsAt: start, EndsAt: start.Add(30 * time.Minute),
			DurationMS: 30 * 60 * 1000,
		},
		{
			ID: uuid.NewString(), ScheduleDayID: day.ID, ChannelID: channel.ID,
			Position: 1, ZoneName: "Morning",
			Kind: models.SegmentAvail, StartsAt: start.Add(30 * time.Minute), EndsAt: start.Add(45 * time.Minute),
			DurationMS: 15 * 60 * 1000,
		},
		{
			ID: uuid.NewString(), ScheduleDayID: day.ID, ChannelID: channel.ID,
			Position: 2, ZoneName: "Morning", Title: "Weather, Sharp; Brief",
			Kind: models.SegmentContent, StartsAt: start.Add(45 * time.Minute), EndsAt: start.Add(75 * time.Minute),
			DurationMS: 30 * 60 * 1000,
		},
	}
	for i := range segments {
		if err := db.Create(&segments[i]).Error; err != nil {
			t.Fatalf("create segment: %v", err)
		}
	}
	return channel
}

func TestRenderXMLTV_ListsAllSegmentsInOrder(t *testing.T) {
	ex, db, _ := setupExporter(t)
	date := broadcast.Date{Year: 2026, Month: time.August, Day: 24}
	channel := seedResolvedDay(t, db, date)

	out, err := ex.RenderXMLTV(context.Background(), channel.ID, date)
	if err != nil {
		t.Fatalf("render xmltv: %v", err)
	}
	doc := string(out)

	if !strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Fatalf("missing xml declaration:\n%s", doc)
	}
	if !strings.Contains(doc, `channel id="city-one"`) {
		t.Fatalf("missing channel element:\n%s", doc)
	}
	if !strings.Contains(doc, "<title>Evening News #1</title>") {
		t.Fatalf("missing content programme:\n%s", doc)
	}
	// Avail gaps surface as placeholder programmes.
	if !strings.Contains(doc, "To Be Announced") {
		t.Fatalf("missing avail placeholder:\n%s", doc)
	}
	if !strings.Contains(doc, `start="20260824060000 +0000"`) {
		t.Fatalf("missing localized start timestamp:\n%s", doc)
	}
}

func TestRenderICal_SkipsAvailsAndEscapesText(t *testing.T) {
	ex, db, _ := setupExporter(t)
	date := broadcast.Date{Year: 2026, Month: time.August, Day: 24}
	channel := seedResolvedDay(t, db, date)

	out, err := ex.RenderICal(context.Background(), channel.ID, date)
	if err != nil {
		t.Fatalf("render ical: %v", err)
	}
	doc := string(out)

	if got := strings.Count(doc, "BEGIN:VEVENT"); got != 2 {
		t.Fatalf("events = %d, want 2 (avails skipped):\n%s", got, doc)
	}
	if !strings.Contains(doc, "SUMMARY:Evening News #1\r\n") {
		t.Fatalf("missing summary:\n%s", doc)
	}
	if !strings.Contains(doc, `SUMMARY:Weather\, Sharp\; Brief`) {
		t.Fatalf("unescaped summary text:\n%s", doc)
	}
	if !strings.Contains(doc, "DTSTART:20260824T060000Z") {
		t.Fatalf("missing utc start:\n%s", doc)
	}
}

func TestExportDay_ArchivesBothFormats(t *testing.T) {
	ex, db, store := setupExporter(t)
	date := broadcast.Date{Year: 2026, Month: time.August, Day: 24}
	channel := seedResolvedDay(t, db, date)
	ctx := context.Background()

	results, err := ex.ExportDay(ctx, channel.ID, date)
	if err != nil {
		t.Fatalf("export day: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	want := map[string]string{
		"xmltv": "guide/city-one/2026-08-24.xml",
		"ical":  "guide/city-one/2026-08-24.ics",
	}
	for _, r := range results {
		key, ok := want[r.Format]
		if !ok {
			t.Fatalf("unexpected format %q", r.Format)
		}
		if r.Key != key {
			t.Fatalf("key = %q, want %q", r.Key, key)
		}
		data, err := store.Get(ctx, r.Key)
		if err != nil {
			t.Fatalf("read archived %s: %v", r.Format, err)
		}
		if len(data) != r.Bytes {
			t.Fatalf("%s bytes = %d, want %d", r.Format, len(data), r.Bytes)
		}
	}
}

func TestExportDay_UnresolvedDay(t *testing.T) {
	ex, db, _ := setupExporter(t)
	date := broadcast.Date{Year: 2026, Month: time.August, Day: 24}
	channel := seedResolvedDay(t, db, date)

	other := broadcast.Date{Year: 2026, Month: time.August, Day: 25}
	if _, err := ex.ExportDay(context.Background(), channel.ID, other); err != ErrDayNotResolved {
		t.Fatalf("err = %v, want ErrDayNotResolved", err)
	}
}

func TestExportDay_PicksLatestRevision(t *testing.T) {
	ex, db, _ := setupExporter(t)
	date := broadcast.Date{Year: 2026, Month: time.August, Day: 24}
	channel := seedResolvedDay(t, db, date)

	day2 := &models.ScheduleDay{
		ID:            uuid.NewString(),
		ChannelID:     channel.ID,
		BroadcastDate: time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC),
		Revision:      2,
		State:         models.DayResolved,
	}
	if err := db.Create(day2).Error; err != nil {
		t.Fatalf("create revision 2: %v", err)
	}
	start := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	seg := &models.ScheduleSegment{
		ID: uuid.NewString(), ScheduleDayID: day2.ID, ChannelID: channel.ID,
		Position: 0, Title: "Revised Morning Block",
		Kind: models.SegmentContent, StartsAt: start, EndsAt: start.Add(time.Hour),
	}
	if err := db.Create(seg).Error; err != nil {
		t.Fatalf("create segment: %v", err)
	}

	out, err := ex.RenderXMLTV(context.Background(), channel.ID, date)
	if err != nil {
		t.Fatalf("render xmltv: %v", err)
	}
	if !strings.Contains(string(out), "Revised Morning Block") {
		t.Fatalf("latest revision not used:\n%s", out)
	}
	if strings.Contains(string(out), "Evening News #1") {
		t.Fatalf("stale revision segments leaked into export:\n%s", out)
	}
}
