/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package traffic imports a legacy traffic-system sqlite database.
// Stations become channels and the spot inventory becomes catalog
// items; rows that already exist by name are skipped, so the import is
// safe to re-run.
package traffic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	_ "github.com/mattn/go-sqlite3"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Result reports what one import created and skipped.
type Result struct {
	Channels        int      `json:"channels"`
	ChannelsSkipped int      `json:"channels_skipped"`
	Items           int      `json:"items"`
	ItemsSkipped    int      `json:"items_skipped"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Importer copies a legacy traffic database into the catalog.
type Importer struct {
	dest      *gorm.DB
	validator *scheduling.Validator
	bus       *events.Bus
	logger    zerolog.Logger
}

func New(dest *gorm.DB, validator *scheduling.Validator, bus *events.Bus, logger zerolog.Logger) *Importer {
	return &Importer{
		dest:      dest,
		validator: validator,
		bus:       bus,
		logger:    logger.With().Str("component", "migration_traffic").Logger(),
	}
}

// Import reads the sqlite file at path. The legacy schema is the
// traffic system's: stations(name, timezone, block_minutes) and
// inventory(station, title, length_ms, category, genre).
func (i *Importer) Import(ctx context.Context, path string) (*Result, error) {
	src, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	defer src.Close()

	if err := src.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping legacy database: %w", err)
	}

	result := &Result{}
	channelIDs, err := i.importStations(ctx, src, result)
	if err != nil {
		return nil, err
	}
	if err := i.importInventory(ctx, src, channelIDs, result); err != nil {
		return nil, err
	}

	i.bus.Publish(events.EventAuditImport, events.Payload{
		"resource_type": "migration",
		"source":        "traffic",
		"channels":      result.Channels,
		"items":         result.Items,
	})

	i.logger.Info().
		Int("channels", result.Channels).
		Int("channels_skipped", result.ChannelsSkipped).
		Int("items", result.Items).
		Int("items_skipped", result.ItemsSkipped).
		Msg("traffic import complete")

	return result, nil
}

func (i *Importer) importStations(ctx context.Context, src *sql.DB, result *Result) (map[string]string, error) {
	rows, err := src.QueryContext(ctx,
		`SELECT id, name, COALESCE(timezone, ''), COALESCE(block_minutes, 30) FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("read stations: %w", err)
	}
	defer rows.Close()

	channelIDs := make(map[string]string)
	for rows.Next() {
		var legacyID int64
		var name, tz string
		var blockMinutes int
		if err := rows.Scan(&legacyID, &name, &tz, &blockMinutes); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}

		var existing models.Channel
		err := i.dest.WithContext(ctx).First(&existing, "name = ?", name).Error
		if err == nil {
			channelIDs[fmt.Sprint(legacyID)] = existing.ID
			result.ChannelsSkipped++
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("check channel %s: %w", name, err)
		}

		channel := ChannelFromStation(name, tz, blockMinutes)
		if err := i.validator.ValidateChannel(channel); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("station %q skipped: %v", name, err))
			i.logger.Warn().Err(err).Str("station", name).Msg("station failed validation, skipped")
			continue
		}
		if err := i.dest.WithContext(ctx).Create(channel).Error; err != nil {
			return nil, fmt.Errorf("create channel %s: %w", name, err)
		}
		channelIDs[fmt.Sprint(legacyID)] = channel.ID
		result.Channels++
	}
	return channelIDs, rows.Err()
}

func (i *Importer) importInventory(ctx context.Context, src *sql.DB, channelIDs map[string]string, result *Result) error {
	rows, err := src.QueryContext(ctx,
		`SELECT title, COALESCE(length_ms, 0), COALESCE(category, ''), COALESCE(genre, '') FROM inventory ORDER BY id`)
	if err != nil {
		return fmt.Errorf("read inventory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var title, category, genre string
		var lengthMS int64
		if err := rows.Scan(&title, &lengthMS, &category, &genre); err != nil {
			return fmt.Errorf("scan inventory row: %w", err)
		}
		if lengthMS <= 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("inventory %q skipped: no duration", title))
			continue
		}

		var n int64
		if err := i.dest.WithContext(ctx).Model(&models.CatalogItem{}).
			Where("title = ?", title).Count(&n).Error; err != nil {
			return fmt.Errorf("check item %s: %w", title, err)
		}
		if n > 0 {
			result.ItemsSkipped++
			continue
		}

		item := &models.CatalogItem{
			ID:         uuid.NewString(),
			Title:      title,
			DurationMS: lengthMS,
			Kind:       KindForCategory(category),
			Genre:      genre,
			Approved:   true,
		}
		if err := i.dest.WithContext(ctx).Create(item).Error; err != nil {
			return fmt.Errorf("create item %s: %w", title, err)
		}
		result.Items++
	}
	return rows.Err()
}

// ChannelFromStation maps a legacy station row onto a channel with a
// uniform half-hour grid when the source carries no block length.
func ChannelFromStation(name, tz string, blockMinutes int) *models.Channel {
	if blockMinutes <= 0 || 60%blockMinutes != 0 {
		blockMinutes = 30
	}
	offsets := make([]int, 0, 60/blockMinutes)
	for m := 0; m < 60; m += blockMinutes {
		offsets = append(offsets, m)
	}
	return &models.Channel{
		ID:               uuid.NewString(),
		Name:             name,
		Slug:             Slugify(name),
		Timezone:         tz,
		GridBlockMinutes: blockMinutes,
		GridOffsets:      offsets,
		Active:           true,
		Version:          1,
	}
}

// KindForCategory maps legacy inventory categories onto catalog kinds.
func KindForCategory(category string) models.CatalogItemKind {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "spot", "commercial", "promo":
		return models.ItemPromo
	case "filler", "interstitial":
		return models.ItemFiller
	case "episode", "show":
		return models.ItemEpisode
	case "slate":
		return models.ItemSlate
	default:
		return models.ItemFeature
	}
}

// Slugify lowers a name into a URL-safe slug.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
