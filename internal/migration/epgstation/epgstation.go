/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package epgstation imports channels and programme history from a
// legacy EPG postgres database. Programme names recur daily in an EPG,
// so recurring names become series with one episode per airing; one-off
// programmes become standalone features.
package epgstation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	_ "github.com/lib/pq"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/migration/traffic"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Result reports what one import created and skipped.
type Result struct {
	Channels        int      `json:"channels"`
	ChannelsSkipped int      `json:"channels_skipped"`
	Series          int      `json:"series"`
	Items           int      `json:"items"`
	ItemsSkipped    int      `json:"items_skipped"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Importer copies a legacy EPG database into the catalog.
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
		logger:    logger.With().Str("component", "migration_epg").Logger(),
	}
}

// programRow is one legacy programme airing.
type programRow struct {
	ChannelID int64
	Name      string
	Genre     string
	StartAt   int64 // unix milliseconds
	EndAt     int64
}

// Import connects with the given postgres DSN and copies channels and
// programmes.
func (i *Importer) Import(ctx context.Context, dsn string) (*Result, error) {
	src, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open EPG database: %w", err)
	}
	defer src.Close()

	if err := src.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping EPG database: %w", err)
	}

	result := &Result{}
	if err := i.importChannels(ctx, src, result); err != nil {
		return nil, err
	}

	programs, err := readPrograms(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := i.importPrograms(ctx, programs, result); err != nil {
		return nil, err
	}

	i.bus.Publish(events.EventAuditImport, events.Payload{
		"resource_type": "migration",
		"source":        "epgstation",
		"channels":      result.Channels,
		"series":        result.Series,
		"items":         result.Items,
	})

	i.logger.Info().
		Int("channels", result.Channels).
		Int("series", result.Series).
		Int("items", result.Items).
		Msg("EPG import complete")

	return result, nil
}

func (i *Importer) importChannels(ctx context.Context, src *sql.DB, result *Result) error {
	rows, err := src.QueryContext(ctx,
		`SELECT id, name FROM channel ORDER BY id`)
	if err != nil {
		return fmt.Errorf("read channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var legacyID int64
		var name string
		if err := rows.Scan(&legacyID, &name); err != nil {
			return fmt.Errorf("scan channel: %w", err)
		}

		var n int64
		if err := i.dest.WithContext(ctx).Model(&models.Channel{}).
			Where("name = ?", name).Count(&n).Error; err != nil {
			return fmt.Errorf("check channel %s: %w", name, err)
		}
		if n > 0 {
			result.ChannelsSkipped++
			continue
		}

		channel := traffic.ChannelFromStation(name, "", 30)
		if err := i.validator.ValidateChannel(channel); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("channel %q skipped: %v", name, err))
			continue
		}
		if err := i.dest.WithContext(ctx).Create(channel).Error; err != nil {
			return fmt.Errorf("create channel %s: %w", name, err)
		}
		result.Channels++
	}
	return rows.Err()
}

func readPrograms(ctx context.Context, src *sql.DB) ([]programRow, error) {
	rows, err := src.QueryContext(ctx,
		`SELECT "channelId", name, COALESCE(genre, ''), "startAt", "endAt" FROM program ORDER BY "startAt"`)
	if err != nil {
		return nil, fmt.Errorf("read programs: %w", err)
	}
	defer rows.Close()

	var out []programRow
	for rows.Next() {
		var p programRow
		if err := rows.Scan(&p.ChannelID, &p.Name, &p.Genre, &p.StartAt, &p.EndAt); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (i *Importer) importPrograms(ctx context.Context, programs []programRow, result *Result) error {
	recurring := groupRecurring(programs)

	seriesIDs := make(map[string]string)
	episodeCounts := make(map[string]int)

	for _, p := range programs {
		duration := durationMS(p)
		if duration <= 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("programme %q skipped: empty airing window", p.Name))
			continue
		}

		isSeries := recurring[p.Name]
		var seriesID *string
		title := p.Name
		episode := 0

		if isSeries {
			id, ok := seriesIDs[p.Name]
			if !ok {
				var err error
				id, err = i.ensureSeries(ctx, p.Name, result)
				if err != nil {
					return err
				}
				seriesIDs[p.Name] = id
			}
			episodeCounts[p.Name]++
			episode = episodeCounts[p.Name]
			seriesID = &id
			title = fmt.Sprintf("%s #%d", p.Name, episode)
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

		kind := models.ItemFeature
		if isSeries {
			kind = models.ItemEpisode
		}
		item := &models.CatalogItem{
			ID:            uuid.NewString(),
			SeriesID:      seriesID,
			Title:         title,
			EpisodeNumber: episode,
			DurationMS:    duration,
			Kind:          kind,
			Genre:         p.Genre,
			Year:          time.UnixMilli(p.StartAt).UTC().Year(),
			Approved:      true,
		}
		if err := i.dest.WithContext(ctx).Create(item).Error; err != nil {
			return fmt.Errorf("create item %s: %w", title, err)
		}
		result.Items++
	}
	return nil
}

func (i *Importer) ensureSeries(ctx context.Context, name string, result *Result) (string, error) {
	var existing models.Series
	err := i.dest.WithContext(ctx).First(&existing, "title = ?", name).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("check series %s: %w", name, err)
	}

	series := &models.Series{
		ID:     uuid.NewString(),
		Title:  name,
		Active: true,
	}
	if err := i.dest.WithContext(ctx).Create(series).Error; err != nil {
		return "", fmt.Errorf("create series %s: %w", name, err)
	}
	result.Series++
	return series.ID, nil
}

// groupRecurring reports which programme names air more than once.
func groupRecurring(programs []programRow) map[string]bool {
	counts := make(map[string]int, len(programs))
	for _, p := range programs {
		counts[p.Name]++
	}
	recurring := make(map[string]bool, len(counts))
	for name, n := range counts {
		recurring[name] = n > 1
	}
	return recurring
}

// durationMS derives an airing's duration from its window.
func durationMS(p programRow) int64 {
	return p.EndAt - p.StartAt
}
