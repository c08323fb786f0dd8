/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package epgstation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

func setupDest(t *testing.T) *Importer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.Series{}, &models.CatalogItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := timeauthority.NewFixedClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	validator := scheduling.NewValidator(db, clock, zerolog.Nop())
	return New(db, validator, events.NewBus(), zerolog.Nop())
}

func airing(name, genre string, start time.Time, minutes int) programRow {
	return programRow{
		ChannelID: 1,
		Name:      name,
		Genre:     genre,
		StartAt:   start.UnixMilli(),
		EndAt:     start.Add(time.Duration(minutes) * time.Minute).UnixMilli(),
	}
}

func TestImportPrograms_RecurringNamesBecomeSeries(t *testing.T) {
	imp := setupDest(t)
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	programs := []programRow{
		airing("Evening News", "news", base, 30),
		airing("Evening News", "news", base.AddDate(0, 0, 1), 30),
		airing("Evening News", "news", base.AddDate(0, 0, 2), 30),
		airing("One-Off Documentary", "docs", base.Add(time.Hour), 90),
	}

	result := &Result{}
	if err := imp.importPrograms(context.Background(), programs, result); err != nil {
		t.Fatalf("import programs: %v", err)
	}

	if result.Series != 1 {
		t.Fatalf("series = %d, want 1", result.Series)
	}
	if result.Items != 4 {
		t.Fatalf("items = %d, want 4", result.Items)
	}

	var series models.Series
	if err := imp.dest.First(&series, "title = ?", "Evening News").Error; err != nil {
		t.Fatalf("load series: %v", err)
	}

	var episodes []models.CatalogItem
	if err := imp.dest.Where("series_id = ?", series.ID).
		Order("episode_number ASC").Find(&episodes).Error; err != nil {
		t.Fatalf("load episodes: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("episodes = %d, want 3", len(episodes))
	}
	for n, ep := range episodes {
		if ep.EpisodeNumber != n+1 || ep.Kind != models.ItemEpisode || ep.DurationMS != 30*60*1000 {
			t.Fatalf("episode %d = %+v", n, ep)
		}
	}

	var oneOff models.CatalogItem
	if err := imp.dest.First(&oneOff, "title = ?", "One-Off Documentary").Error; err != nil {
		t.Fatalf("load one-off: %v", err)
	}
	if oneOff.Kind != models.ItemFeature || oneOff.SeriesID != nil {
		t.Fatalf("one-off = %+v, want standalone feature", oneOff)
	}
}

func TestImportPrograms_SkipsEmptyWindows(t *testing.T) {
	imp := setupDest(t)
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	programs := []programRow{
		airing("Zero Length", "", base, 0),
	}
	result := &Result{}
	if err := imp.importPrograms(context.Background(), programs, result); err != nil {
		t.Fatalf("import programs: %v", err)
	}
	if result.Items != 0 || len(result.Warnings) != 1 {
		t.Fatalf("result = %+v, want skipped airing with warning", result)
	}
}

func TestGroupRecurring(t *testing.T) {
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)
	programs := []programRow{
		airing("A", "", base, 30),
		airing("A", "", base.Add(time.Hour), 30),
		airing("B", "", base, 30),
	}
	recurring := groupRecurring(programs)
	if !recurring["A"] || recurring["B"] {
		t.Fatalf("recurring = %v, want A recurring and B not", recurring)
	}
}
