/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/storage"
	"github.com/friendsincode/saga_tv/internal/telemetry"
)

// ErrDayNotResolved is returned when no resolved revision exists for the
// requested day.
var ErrDayNotResolved = errors.New("day not resolved")

// Exporter renders resolved days to guide formats and archives them in
// the object store.
type Exporter struct {
	db     *gorm.DB
	store  storage.ObjectStore
	bus    *events.Bus
	logger zerolog.Logger
}

// NewExporter creates a guide exporter.
func NewExporter(db *gorm.DB, store storage.ObjectStore, bus *events.Bus, logger zerolog.Logger) *Exporter {
	return &Exporter{
		db:     db,
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "guide_exporter").Logger(),
	}
}

// ExportResult reports one archived guide artifact.
type ExportResult struct {
	Format string
	Key    string
	Bytes  int
}

// ExportDay renders the latest resolved revision of (channel, date) as
// XMLTV and iCal and writes both to the object store under
// guide/<slug>/<date>.<ext>. It returns one result per format.
func (ex *Exporter) ExportDay(ctx context.Context, channelID string, date broadcast.Date) ([]ExportResult, error) {
	var channel models.Channel
	if err := ex.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}

	day, segments, err := ex.resolvedSegments(ctx, channelID, date)
	if err != nil {
		return nil, err
	}

	loc, err := channel.Location()
	if err != nil {
		return nil, fmt.Errorf("channel timezone: %w", err)
	}

	results := make([]ExportResult, 0, 2)

	xmlStart := time.Now()
	tv := BuildXMLTV(&channel, segments, loc)
	data, err := MarshalXMLTV(tv)
	if err != nil {
		telemetry.GuideExportsTotal.WithLabelValues("xmltv", "error").Inc()
		return nil, err
	}
	xmlKey := fmt.Sprintf("guide/%s/%s.xml", channel.Slug, date)
	if err := ex.store.Put(ctx, xmlKey, data); err != nil {
		telemetry.GuideExportsTotal.WithLabelValues("xmltv", "error").Inc()
		return nil, fmt.Errorf("store xmltv: %w", err)
	}
	telemetry.GuideExportDuration.WithLabelValues("xmltv").Observe(time.Since(xmlStart).Seconds())
	telemetry.GuideExportsTotal.WithLabelValues("xmltv", "success").Inc()
	results = append(results, ExportResult{Format: "xmltv", Key: xmlKey, Bytes: len(data)})

	icalStart := time.Now()
	icalData := BuildICal(&channel, segments, time.Now())
	icalKey := fmt.Sprintf("guide/%s/%s.ics", channel.Slug, date)
	if err := ex.store.Put(ctx, icalKey, icalData); err != nil {
		telemetry.GuideExportsTotal.WithLabelValues("ical", "error").Inc()
		return nil, fmt.Errorf("store ical: %w", err)
	}
	telemetry.GuideExportDuration.WithLabelValues("ical").Observe(time.Since(icalStart).Seconds())
	telemetry.GuideExportsTotal.WithLabelValues("ical", "success").Inc()
	results = append(results, ExportResult{Format: "ical", Key: icalKey, Bytes: len(icalData)})

	if ex.bus != nil {
		ex.bus.Publish(events.EventGuidePublished, events.Payload{
			"channel_id":     channel.ID,
			"broadcast_date": date.String(),
			"revision":       day.Revision,
			"keys":           []string{xmlKey, icalKey},
		})
	}

	ex.logger.Info().
		Str("channel", channel.Slug).
		Str("date", date.String()).
		Int("segments", len(segments)).
		Msg("guide exported")

	return results, nil
}

// RenderXMLTV renders the latest resolved revision without archiving,
// for direct HTTP serving.
func (ex *Exporter) RenderXMLTV(ctx context.Context, channelID string, date broadcast.Date) ([]byte, error) {
	var channel models.Channel
	if err := ex.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	_, segments, err := ex.resolvedSegments(ctx, channelID, date)
	if err != nil {
		return nil, err
	}
	loc, err := channel.Location()
	if err != nil {
		return nil, fmt.Errorf("channel timezone: %w", err)
	}
	return MarshalXMLTV(BuildXMLTV(&channel, segments, loc))
}

// RenderICal renders the latest resolved revision without archiving.
func (ex *Exporter) RenderICal(ctx context.Context, channelID string, date broadcast.Date) ([]byte, error) {
	var channel models.Channel
	if err := ex.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	_, segments, err := ex.resolvedSegments(ctx, channelID, date)
	if err != nil {
		return nil, err
	}
	return BuildICal(&channel, segments, time.Now()), nil
}

func (ex *Exporter) resolvedSegments(ctx context.Context, channelID string, date broadcast.Date) (*models.ScheduleDay, []models.ScheduleSegment, error) {
	var day models.ScheduleDay
	err := ex.db.WithContext(ctx).
		Where("channel_id = ? AND broadcast_date = ? AND state = ?",
			channelID, time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC), models.DayResolved).
		Order("revision DESC").
		First(&day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrDayNotResolved
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load day: %w", err)
	}

	var segments []models.ScheduleSegment
	if err := ex.db.WithContext(ctx).
		Where("schedule_day_id = ?", day.ID).
		Order("position ASC").
		Find(&segments).Error; err != nil {
		return nil, nil, fmt.Errorf("load segments: %w", err)
	}
	return &day, segments, nil
}
