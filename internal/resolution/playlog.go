/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package resolution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/catalog"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// EmitPlaylog extends the channel's playlog through until. Emission is
// per broadcast day and atomic: a day's events commit together with the
// deletion of superseded future events from older revisions, and past
// events are never touched. Avail spans fill with the channel slate
// item looped, so the emitted timeline has no holes. Returns the number
// of events written.
func (e *Engine) EmitPlaylog(ctx context.Context, channelID string, until time.Time) (int, error) {
	var channel models.Channel
	if err := e.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, scheduling.NewNotFound("channel", channelID)
		}
		return 0, fmt.Errorf("load channel: %w", err)
	}
	loc, err := channel.Location()
	if err != nil {
		return 0, fmt.Errorf("resolve channel timezone: %w", err)
	}
	grid := channel.Grid()
	now := e.clock.Now()

	total := 0
	var through time.Time
	endDate := grid.BroadcastDayOf(until, loc)
	for date := grid.BroadcastDayOf(now, loc); !date.After(endDate); date = date.AddDays(1) {
		day, err := latestResolved(ctx, e.db.WithContext(ctx), channelID, date)
		if err != nil {
			return total, err
		}
		if day == nil {
			// resolution has not caught up; the horizon orders days
			// before playlogs
			break
		}
		n, next, err := e.emitDay(ctx, &channel, day, grid, now)
		if err != nil {
			return total, err
		}
		total += n
		through = next
	}
	if total > 0 {
		e.logger.Info().
			Str("channel_id", channelID).
			Int("events", total).
			Time("through", through).
			Msg("playlog extended")
		e.bus.Publish(events.EventPlaylogExtended, events.Payload{
			"channel_id": channelID,
			"events":     total,
			"through":    through,
		})
	}
	return total, nil
}

// emitDay writes one broadcast day's missing playlog events. The walk
// starts where emitted history ends, so re-running is idempotent and a
// mid-day re-resolution regenerates only the span after now.
func (e *Engine) emitDay(ctx context.Context, channel *models.Channel, day *models.ScheduleDay, grid broadcast.Grid, now time.Time) (int, time.Time, error) {
	loc, err := channel.Location()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("resolve channel timezone: %w", err)
	}
	date := day.Date()
	dayStart := grid.DayStart(date, loc)
	dayEnd := grid.DayStart(date.AddDays(1), loc)
	next := dayEnd
	written := 0
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cutoff := now
		if cutoff.Before(dayStart) {
			cutoff = dayStart
		}
		if err := tx.Where("channel_id = ? AND schedule_day_id <> ? AND starts_at >= ? AND starts_at < ?",
			day.ChannelID, day.ID, cutoff, dayEnd).
			Delete(&models.PlaylogEvent{}).Error; err != nil {
			return fmt.Errorf("delete superseded events: %w", err)
		}

		var horizon sql.NullTime
		if err := tx.Model(&models.PlaylogEvent{}).
			Where("channel_id = ? AND starts_at < ?", day.ChannelID, dayEnd).
			Select("MAX(ends_at)").Scan(&horizon).Error; err != nil {
			return fmt.Errorf("find emitted horizon: %w", err)
		}
		walk := dayStart
		if horizon.Valid && horizon.Time.After(walk) {
			walk = horizon.Time
		}
		if !walk.Before(dayEnd) {
			next = walk
			return nil
		}

		var segments []models.ScheduleSegment
		if err := tx.Where("schedule_day_id = ? AND kind <> ? AND ends_at > ?",
			day.ID, models.SegmentAvail, walk).
			Order("starts_at ASC").Find(&segments).Error; err != nil {
			return fmt.Errorf("load segments: %w", err)
		}

		slate, err := e.slateItem(ctx, tx, channel)
		if err != nil {
			return err
		}

		var rows []models.PlaylogEvent
		for i := range segments {
			seg := &segments[i]
			if seg.StartsAt.After(walk) {
				fills, err := slateEvents(day, slate, channel, walk, seg.StartsAt)
				if err != nil {
					return err
				}
				rows = append(rows, fills...)
				walk = seg.StartsAt
			}
			ev := eventFromSegment(day, seg, walk)
			rows = append(rows, ev)
			walk = ev.EndsAt
		}
		if walk.Before(dayEnd) {
			fills, err := slateEvents(day, slate, channel, walk, dayEnd)
			if err != nil {
				return err
			}
			rows = append(rows, fills...)
			walk = dayEnd
		}
		if walk.After(dayEnd) {
			next = walk
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("write playlog events: %w", err)
			}
		}
		written = len(rows)
		return nil
	})
	return written, next, err
}

func (e *Engine) slateItem(ctx context.Context, tx *gorm.DB, channel *models.Channel) (*models.CatalogItem, error) {
	if channel.SlateItemID == nil {
		return nil, nil
	}
	slate, err := catalog.NewService(tx, e.logger).GetItem(ctx, *channel.SlateItemID)
	if err != nil {
		return nil, fmt.Errorf("load slate item: %w", err)
	}
	return slate, nil
}

func eventFromSegment(day *models.ScheduleDay, seg *models.ScheduleSegment, walk time.Time) models.PlaylogEvent {
	start := seg.StartsAt
	if walk.After(start) {
		start = walk
	}
	itemID := ""
	if seg.CatalogItemID != nil {
		itemID = *seg.CatalogItemID
	}
	return models.PlaylogEvent{
		ID:            uuid.NewString(),
		ChannelID:     day.ChannelID,
		ScheduleDayID: day.ID,
		SegmentID:     &seg.ID,
		CatalogItemID: itemID,
		Kind:          models.PlaylogContent,
		Title:         seg.Title,
		StartsAt:      start,
		EndsAt:        seg.EndsAt,
		DurationMS:    seg.EndsAt.Sub(start).Milliseconds(),
	}
}

// slateEvents loops the slate item across an avail span; the last
// iteration truncates so the span closes exactly.
func slateEvents(day *models.ScheduleDay, slate *models.CatalogItem, channel *models.Channel, from, to time.Time) ([]models.PlaylogEvent, error) {
	if slate == nil {
		return nil, fmt.Errorf("channel %s has no slate item to fill %s of avail starting %s",
			channel.Slug, to.Sub(from), from.Format(time.RFC3339))
	}
	if slate.DurationMS <= 0 {
		return nil, fmt.Errorf("slate item %s has no duration", slate.ID)
	}
	step := time.Duration(slate.DurationMS) * time.Millisecond
	var rows []models.PlaylogEvent
	for t := from; t.Before(to); {
		end := t.Add(step)
		if end.After(to) {
			end = to
		}
		rows = append(rows, models.PlaylogEvent{
			ID:            uuid.NewString(),
			ChannelID:     day.ChannelID,
			ScheduleDayID: day.ID,
			CatalogItemID: slate.ID,
			Kind:          models.PlaylogFiller,
			Title:         slate.Title,
			StartsAt:      t,
			EndsAt:        end,
			DurationMS:    end.Sub(t).Milliseconds(),
		})
		t = end
	}
	return rows, nil
}

// Playlog returns the channel's playlog events overlapping [from, to),
// in air order.
func (e *Engine) Playlog(ctx context.Context, channelID string, from, to time.Time) ([]models.PlaylogEvent, error) {
	var rows []models.PlaylogEvent
	if err := e.db.WithContext(ctx).
		Where("channel_id = ? AND ends_at > ? AND starts_at < ?", channelID, from, to).
		Order("starts_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load playlog: %w", err)
	}
	return rows, nil
}

// PrunePlaylog deletes playlog events that ended at or before the
// cutoff, returning how many rows went away.
func (e *Engine) PrunePlaylog(ctx context.Context, before time.Time) (int64, error) {
	res := e.db.WithContext(ctx).Where("ends_at <= ?", before).Delete(&models.PlaylogEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune playlog: %w", res.Error)
	}
	return res.RowsAffected, nil
}
