/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// Series groups catalog items for rotation-based programs.
type Series struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Title       string `gorm:"uniqueIndex"`
	Description string `gorm:"type:text"`
	Active      bool   `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CatalogItemKind classifies catalog content.
type CatalogItemKind string

const (
	ItemEpisode CatalogItemKind = "episode"
	ItemFeature CatalogItemKind = "feature"
	ItemPromo   CatalogItemKind = "promo"
	ItemFiller  CatalogItemKind = "filler"
	ItemSlate   CatalogItemKind = "slate"
)

// CatalogItem is one approved piece of content. The scheduler consumes
// the catalog read-only; eligibility means approved and not deleted.
type CatalogItem struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	SeriesID      *string `gorm:"type:uuid;index"`
	Title         string  `gorm:"index"`
	EpisodeNumber int     // ordering within a series for sequential rotation
	DurationMS    int64
	Kind          CatalogItemKind `gorm:"type:varchar(16);index"`
	Genre         string          `gorm:"index"`
	Tags          []string        `gorm:"serializer:json"`
	Year          int
	Rating        string `gorm:"type:varchar(16)"`
	Approved      bool   `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

// Duration returns the item's runtime.
func (i *CatalogItem) Duration() time.Duration {
	return time.Duration(i.DurationMS) * time.Millisecond
}
