/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Series{}, &models.CatalogItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return NewService(db, zerolog.Nop()), db
}

func seedItem(t *testing.T, db *gorm.DB, item models.CatalogItem) models.CatalogItem {
	t.Helper()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.DurationMS == 0 {
		item.DurationMS = 1_800_000
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func TestEpisodesOrdering(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	series := models.Series{ID: uuid.NewString(), Title: "Harbor Lights", Active: true}
	if err := db.Create(&series).Error; err != nil {
		t.Fatalf("create series: %v", err)
	}

	// Seeded out of order on purpose.
	seedItem(t, db, models.CatalogItem{SeriesID: &series.ID, Title: "E3", EpisodeNumber: 3, Kind: models.ItemEpisode, Approved: true})
	seedItem(t, db, models.CatalogItem{SeriesID: &series.ID, Title: "E1", EpisodeNumber: 1, Kind: models.ItemEpisode, Approved: true})
	seedItem(t, db, models.CatalogItem{SeriesID: &series.ID, Title: "E2", EpisodeNumber: 2, Kind: models.ItemEpisode, Approved: true})
	// Unapproved episodes never air.
	seedItem(t, db, models.CatalogItem{SeriesID: &series.ID, Title: "E4", EpisodeNumber: 4, Kind: models.ItemEpisode})

	eps, err := svc.Episodes(ctx, series.ID)
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if len(eps) != 3 {
		t.Fatalf("expected 3 approved episodes, got %d", len(eps))
	}
	for i, want := range []string{"E1", "E2", "E3"} {
		if eps[i].Title != want {
			t.Errorf("episode %d = %s, want %s", i, eps[i].Title, want)
		}
	}
}

func TestEligibleByRule(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	seedItem(t, db, models.CatalogItem{Title: "Old News", Kind: models.ItemFeature, Genre: "news", Year: 2015, Approved: true})
	seedItem(t, db, models.CatalogItem{Title: "Fresh News", Kind: models.ItemFeature, Genre: "news", Year: 2024, Approved: true})
	seedItem(t, db, models.CatalogItem{Title: "Tagged News", Kind: models.ItemFeature, Genre: "news", Year: 2024, Tags: []string{"live", "local"}, Approved: true})
	seedItem(t, db, models.CatalogItem{Title: "Drama", Kind: models.ItemFeature, Genre: "drama", Year: 2024, Approved: true})
	seedItem(t, db, models.CatalogItem{Title: "Unapproved News", Kind: models.ItemFeature, Genre: "news", Year: 2024})
	seedItem(t, db, models.CatalogItem{Title: "Slate Card", Kind: models.ItemSlate, Genre: "news", Year: 2024, Approved: true})
	seedItem(t, db, models.CatalogItem{Title: "Epic", Kind: models.ItemFeature, Genre: "news", Year: 2024, DurationMS: 7_200_000, Approved: true})

	tests := []struct {
		name string
		sel  models.RuleSelector
		want []string
	}{
		{"genre", models.RuleSelector{Genre: "news"}, []string{"Old News", "Fresh News", "Tagged News", "Epic"}},
		{"min year", models.RuleSelector{Genre: "news", MinYear: 2020}, []string{"Fresh News", "Tagged News", "Epic"}},
		{"max year", models.RuleSelector{Genre: "news", MaxYear: 2020}, []string{"Old News"}},
		{"duration cap", models.RuleSelector{Genre: "news", MaxDurationMS: 3_600_000}, []string{"Old News", "Fresh News", "Tagged News"}},
		{"tags all required", models.RuleSelector{Tags: []string{"live", "local"}}, []string{"Tagged News"}},
		{"tags partial miss", models.RuleSelector{Tags: []string{"live", "national"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := svc.EligibleByRule(ctx, &tt.sel)
			if err != nil {
				t.Fatalf("eligible: %v", err)
			}
			got := make([]string, len(items))
			for i, item := range items {
				got[i] = item.Title
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			wantSet := map[string]bool{}
			for _, w := range tt.want {
				wantSet[w] = true
			}
			for _, g := range got {
				if !wantSet[g] {
					t.Errorf("unexpected item %s (want %v)", g, tt.want)
				}
			}
		})
	}
}

func TestSoftDeleteHidesItem(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	item := seedItem(t, db, models.CatalogItem{Title: "Retired", Kind: models.ItemFeature, Genre: "news", Approved: true})
	if err := svc.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.GetItem(ctx, item.ID); err == nil {
		t.Fatal("expected deleted item to be invisible")
	} else {
		var nf *scheduling.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	}

	items, err := svc.EligibleByRule(ctx, &models.RuleSelector{Genre: "news"})
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("deleted item still eligible: %v", items)
	}
}

func TestItemsByID(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	a := seedItem(t, db, models.CatalogItem{Title: "A", Kind: models.ItemPromo, Approved: true})
	b := seedItem(t, db, models.CatalogItem{Title: "B", Kind: models.ItemPromo, Approved: true})

	got, err := svc.ItemsByID(ctx, []string{a.ID, b.ID, uuid.NewString()})
	if err != nil {
		t.Fatalf("items by id: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 found items, got %d", len(got))
	}
	if got[a.ID].Title != "A" || got[b.ID].Title != "B" {
		t.Errorf("wrong items returned: %v", got)
	}
}

func TestCreateItemValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	err := svc.CreateItem(ctx, &models.CatalogItem{Title: "No Duration", Kind: models.ItemFeature})
	var ve *scheduling.ValidationError
	if !errors.As(err, &ve) || ve.Code != scheduling.CodeDurationInvalid {
		t.Fatalf("expected duration_invalid, got %v", err)
	}

	err = svc.CreateItem(ctx, &models.CatalogItem{DurationMS: 1000, Kind: models.ItemFeature})
	if !errors.As(err, &ve) || ve.Code != scheduling.CodeNameRequired {
		t.Fatalf("expected name_required, got %v", err)
	}

	ghost := uuid.NewString()
	err = svc.CreateItem(ctx, &models.CatalogItem{Title: "Orphan", DurationMS: 1000, Kind: models.ItemEpisode, SeriesID: &ghost})
	var nf *scheduling.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for ghost series, got %v", err)
	}
}

func TestSetApproval(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	item := seedItem(t, db, models.CatalogItem{Title: "Pending", Kind: models.ItemFeature})
	if err := svc.SetApproval(ctx, item.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, err := svc.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Approved {
		t.Error("item not approved")
	}

	var nf *scheduling.NotFoundError
	if err := svc.SetApproval(ctx, uuid.NewString(), true); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
