/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.RotationState{}, &models.RotationPlay{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewStore(db, zerolog.Nop())
}

func TestStateCreatesOnceAndPersists(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	channel, scope := uuid.NewString(), uuid.NewString()

	first, err := store.State(ctx, channel, scope)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if first.Cursor != 0 {
		t.Errorf("fresh cursor = %d, want 0", first.Cursor)
	}
	if first.Seed == 0 {
		t.Error("fresh state has zero seed")
	}

	if err := store.Advance(ctx, channel, scope, 5); err != nil {
		t.Fatalf("advance: %v", err)
	}
	second, err := store.State(ctx, channel, scope)
	if err != nil {
		t.Fatalf("state again: %v", err)
	}
	if second.ID != first.ID {
		t.Error("state row recreated instead of reused")
	}
	if second.Cursor != 5 {
		t.Errorf("cursor = %d, want 5", second.Cursor)
	}
	if second.Seed != first.Seed {
		t.Errorf("seed changed: %d != %d", second.Seed, first.Seed)
	}
}

func TestSeedIsPerChannel(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	scope := uuid.NewString()

	a, err := store.State(ctx, uuid.NewString(), scope)
	if err != nil {
		t.Fatalf("state a: %v", err)
	}
	b, err := store.State(ctx, uuid.NewString(), scope)
	if err != nil {
		t.Fatalf("state b: %v", err)
	}
	if a.Seed == b.Seed {
		t.Error("two channels share a rotation seed")
	}
}

func TestAdvanceMissingScope(t *testing.T) {
	store := setupStore(t)
	if err := store.Advance(context.Background(), uuid.NewString(), uuid.NewString(), 1); err == nil {
		t.Fatal("expected error advancing unknown scope")
	}
}

func TestLastPlayedKeepsMostRecent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	channel, scope := uuid.NewString(), uuid.NewString()
	item := uuid.NewString()
	other := uuid.NewString()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	if err := store.RecordPlay(ctx, channel, scope, item, base); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordPlay(ctx, channel, scope, item, base.Add(48*time.Hour)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.RecordPlay(ctx, channel, scope, other, base.Add(time.Hour)); err != nil {
		t.Fatalf("record: %v", err)
	}

	last, err := store.LastPlayed(ctx, channel, scope)
	if err != nil {
		t.Fatalf("last played: %v", err)
	}
	if len(last) != 2 {
		t.Fatalf("expected 2 items, got %d", len(last))
	}
	if !last[item].Equal(base.Add(48 * time.Hour)) {
		t.Errorf("item last played %v, want %v", last[item], base.Add(48*time.Hour))
	}
	if !last[other].Equal(base.Add(time.Hour)) {
		t.Errorf("other last played %v, want %v", last[other], base.Add(time.Hour))
	}
}

func TestPrune(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	channel, scope := uuid.NewString(), uuid.NewString()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := store.RecordPlay(ctx, channel, scope, uuid.NewString(), base.AddDate(0, 0, i)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	pruned, err := store.Prune(ctx, base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 3 {
		t.Errorf("pruned %d rows, want 3", pruned)
	}

	last, err := store.LastPlayed(ctx, channel, scope)
	if err != nil {
		t.Fatalf("last played: %v", err)
	}
	if len(last) != 2 {
		t.Errorf("expected 2 surviving plays, got %d", len(last))
	}
}
