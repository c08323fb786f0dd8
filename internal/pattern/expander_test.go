/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pattern

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/catalog"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/rotation"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/selection"
)

var testGrid = broadcast.Grid{BlockMinutes: 30, Offsets: []int{0, 30}, DayStartMinutes: 6 * 60}

func setupExpander(t *testing.T) (*Expander, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Series{},
		&models.CatalogItem{},
		&models.RotationState{},
		&models.RotationPlay{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sel := selection.NewEngine(
		catalog.NewService(db, zerolog.Nop()),
		rotation.NewStore(db, zerolog.Nop()),
		zerolog.Nop(),
	)
	return NewExpander(sel, zerolog.Nop()), db
}

func seedAsset(t *testing.T, db *gorm.DB, title string, durationMS int64) *models.CatalogItem {
	t.Helper()
	item := &models.CatalogItem{
		ID:         uuid.NewString(),
		Title:      title,
		DurationMS: durationMS,
		Kind:       models.ItemFeature,
		Approved:   true,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return item
}

func assetProgram(itemID string, position int) models.Program {
	return models.Program{
		ID:       uuid.NewString(),
		Position: position,
		Kind:     models.ProgramAsset,
		AssetID:  &itemID,
	}
}

func instantAt() func(int) time.Time {
	dayStart := time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)
	return func(sec int) time.Time {
		return dayStart.Add(time.Duration(sec) * time.Second)
	}
}

func TestExpandCyclic(t *testing.T) {
	exp, db := setupExpander(t)
	ctx := context.Background()
	a := seedAsset(t, db, "Half Hour A", 1_800_000)
	b := seedAsset(t, db, "Half Hour B", 1_800_000)

	res, err := exp.Expand(ctx, Request{
		ChannelID:    "ch1",
		Grid:         testGrid,
		StartSeconds: 0,
		EndSeconds:   2 * 3600,
		Programs:     []models.Program{assetProgram(a.ID, 0), assetProgram(b.ID, 1)},
		InstantAt:    instantAt(),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	want := []string{"Half Hour A", "Half Hour B", "Half Hour A", "Half Hour B"}
	if len(res.Slots) != len(want) {
		t.Fatalf("slots = %d, want %d", len(res.Slots), len(want))
	}
	for i, title := range want {
		slot := res.Slots[i]
		if slot.Pick.Title != title {
			t.Fatalf("slot %d = %q, want %q", i, slot.Pick.Title, title)
		}
		if slot.StartSeconds != i*1800 {
			t.Fatalf("slot %d starts %d, want %d", i, slot.StartSeconds, i*1800)
		}
	}
	if len(res.Gaps) != 0 || res.CarryOutSeconds != 0 {
		t.Fatalf("gaps = %v, carry = %d; want clean fill", res.Gaps, res.CarryOutSeconds)
	}
}

func TestExpandSnapsShortItems(t *testing.T) {
	exp, db := setupExpander(t)
	ctx := context.Background()
	short := seedAsset(t, db, "Twenty-Two Minutes", 1_320_000)

	res, err := exp.Expand(ctx, Request{
		ChannelID:    "ch1",
		Grid:         testGrid,
		StartSeconds: 0,
		EndSeconds:   3600,
		Programs:     []models.Program{assetProgram(short.ID, 0)},
		InstantAt:    instantAt(),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	// A 22-minute item occupies its 30-minute block; the next placement
	// snaps to the following boundary and the avail is observable.
	if len(res.Slots) != 2 {
		t.Fatalf("slots = %d, want 2", len(res.Slots))
	}
	if res.Slots[0].StartSeconds != 0 || res.Slots[0].EndSeconds != 1320 {
		t.Fatalf("slot 0 = [%d,%d), want [0,1320)", res.Slots[0].StartSeconds, res.Slots[0].EndSeconds)
	}
	if res.Slots[1].StartSeconds != 1800 {
		t.Fatalf("slot 1 starts %d, want 1800", res.Slots[1].StartSeconds)
	}
	wantGaps := []Gap{
		{StartSeconds: 1320, EndSeconds: 1800},
		{StartSeconds: 3120, EndSeconds: 3600},
	}
	if len(res.Gaps) != len(wantGaps) {
		t.Fatalf("gaps = %+v, want %+v", res.Gaps, wantGaps)
	}
	for i, g := range wantGaps {
		if res.Gaps[i] != g {
			t.Fatalf("gap %d = %+v, want %+v", i, res.Gaps[i], g)
		}
	}
}

func TestExpandCarryOut(t *testing.T) {
	exp, db := setupExpander(t)
	ctx := context.Background()
	film := seedAsset(t, db, "Ninety Minute Feature", 5_400_000)

	res, err := exp.Expand(ctx, Request{
		ChannelID:    "ch1",
		Grid:         testGrid,
		StartSeconds: 0,
		EndSeconds:   3600,
		Programs:     []models.Program{assetProgram(film.ID, 0)},
		InstantAt:    instantAt(),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(res.Slots) != 1 {
		t.Fatalf("slots = %d, want 1", len(res.Slots))
	}
	if res.Slots[0].EndSeconds != 5400 {
		t.Fatalf("slot ends %d, want 5400", res.Slots[0].EndSeconds)
	}
	if res.CarryOutSeconds != 1800 {
		t.Fatalf("carry-out = %d, want 1800", res.CarryOutSeconds)
	}
	if len(res.Gaps) != 0 {
		t.Fatalf("gaps = %+v, want none", res.Gaps)
	}
}

func TestExpandEmptyPatternIsSilence(t *testing.T) {
	exp, _ := setupExpander(t)
	ctx := context.Background()

	res, err := exp.Expand(ctx, Request{
		ChannelID:    "ch1",
		Grid:         testGrid,
		StartSeconds: 3600,
		EndSeconds:   7200,
		Programs:     nil,
		InstantAt:    instantAt(),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(res.Slots) != 0 {
		t.Fatalf("slots = %d, want none", len(res.Slots))
	}
	if len(res.Gaps) != 1 || res.Gaps[0] != (Gap{StartSeconds: 3600, EndSeconds: 7200}) {
		t.Fatalf("gaps = %+v, want one whole-window gap", res.Gaps)
	}
}

func TestExpandSeriesRotatesAcrossSlots(t *testing.T) {
	exp, db := setupExpander(t)
	ctx := context.Background()

	series := &models.Series{ID: uuid.NewString(), Title: "Evening Serial", Active: true}
	if err := db.Create(series).Error; err != nil {
		t.Fatalf("seed series: %v", err)
	}
	for i, title := range []string{"Episode 1", "Episode 2", "Episode 3"} {
		ep := &models.CatalogItem{
			ID:            uuid.NewString(),
			SeriesID:      &series.ID,
			Title:         title,
			EpisodeNumber: i + 1,
			DurationMS:    1_800_000,
			Kind:          models.ItemEpisode,
			Approved:      true,
		}
		if err := db.Create(ep).Error; err != nil {
			t.Fatalf("seed episode: %v", err)
		}
	}
	policy := models.RotationSequential
	prog := models.Program{
		ID:       uuid.NewString(),
		Kind:     models.ProgramSeries,
		SeriesID: &series.ID,
		Rotation: &policy,
	}

	res, err := exp.Expand(ctx, Request{
		ChannelID:    "ch1",
		Grid:         testGrid,
		StartSeconds: 0,
		EndSeconds:   2 * 3600,
		Programs:     []models.Program{prog},
		InstantAt:    instantAt(),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	// One series program repeated cyclically walks the rotation.
	want := []string{"Episode 1", "Episode 2", "Episode 3", "Episode 1"}
	if len(res.Slots) != len(want) {
		t.Fatalf("slots = %d, want %d", len(res.Slots), len(want))
	}
	for i, title := range want {
		if res.Slots[i].Pick.Title != title {
			t.Fatalf("slot %d = %q, want %q", i, res.Slots[i].Pick.Title, title)
		}
	}
}

func TestExpandSelectionFailureFailsWindow(t *testing.T) {
	exp, db := setupExpander(t)
	ctx := context.Background()
	item := seedAsset(t, db, "Pulled From Air", 1_800_000)
	if err := db.Model(&models.CatalogItem{}).Where("id = ?", item.ID).Update("approved", false).Error; err != nil {
		t.Fatalf("unapprove: %v", err)
	}

	_, err := exp.Expand(ctx, Request{
		ChannelID:    "ch1",
		Grid:         testGrid,
		StartSeconds: 0,
		EndSeconds:   3600,
		Programs:     []models.Program{assetProgram(item.ID, 0)},
		InstantAt:    instantAt(),
	})
	var sf *scheduling.SchedulingFailure
	if !errors.As(err, &sf) {
		t.Fatalf("expected scheduling failure, got %v", err)
	}
	if sf.Code != scheduling.FailNoEligibleContent {
		t.Fatalf("code = %s, want %s", sf.Code, scheduling.FailNoEligibleContent)
	}
}

func TestOrderPrograms(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	programs := []models.Program{
		{ID: "c", Position: 1, CreatedAt: early},
		{ID: "b", Position: 0, CreatedAt: late},
		{ID: "a", Position: 0, CreatedAt: early},
		{ID: "d", Position: 0, CreatedAt: early},
	}
	OrderPrograms(programs)

	got := []string{programs[0].ID, programs[1].ID, programs[2].ID, programs[3].ID}
	want := []string{"a", "d", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
