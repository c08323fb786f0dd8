/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package resolution materializes broadcast days. It walks the active
// plan's zones in physical air order, expands their patterns into
// concrete segments, and derives the millisecond playlog from the
// result. A day resolves completely or fails completely: a failed day
// is recorded with its failure code, keeps no segments, and leaves
// rotation state untouched.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/catalog"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/pattern"
	"github.com/friendsincode/saga_tv/internal/priority"
	"github.com/friendsincode/saga_tv/internal/rotation"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/selection"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

// Engine resolves schedule days and derives playlogs.
type Engine struct {
	db     *gorm.DB
	clock  timeauthority.Clock
	bus    *events.Bus
	logger zerolog.Logger
}

// NewEngine creates a resolution engine.
func NewEngine(db *gorm.DB, clock timeauthority.Clock, bus *events.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		db:     db,
		clock:  clock,
		bus:    bus,
		logger: logger.With().Str("component", "resolution").Logger(),
	}
}

// ResolveDay resolves one broadcast day at the next revision number.
// A scheduling failure still commits: the day row lands in state failed
// with its code and no segments, and the failure comes back alongside
// the row so callers can tell a recorded failure from an infrastructure
// error, where the row is nil. Rotation cursors only move when the day
// resolves.
func (e *Engine) ResolveDay(ctx context.Context, channelID string, date broadcast.Date) (*models.ScheduleDay, error) {
	var channel models.Channel
	if err := e.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.NewNotFound("channel", channelID)
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}
	loc, err := channel.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve channel timezone: %w", err)
	}
	grid := channel.Grid()
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("channel grid: %w", err)
	}

	day := &models.ScheduleDay{}
	var failure error
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rev int
		if err := tx.Model(&models.ScheduleDay{}).
			Where("channel_id = ? AND broadcast_date = ?", channelID, dateTime(date)).
			Select("COALESCE(MAX(revision), 0)").Scan(&rev).Error; err != nil {
			return fmt.Errorf("next revision: %w", err)
		}
		*day = models.ScheduleDay{
			ID:            uuid.NewString(),
			ChannelID:     channelID,
			BroadcastDate: dateTime(date),
			Revision:      rev + 1,
			State:         models.DayResolving,
		}
		if err := tx.Create(day).Error; err != nil {
			return fmt.Errorf("create schedule day: %w", err)
		}

		// The build runs in a savepoint so a scheduling failure rolls
		// back segments and rotation cursor movement while the outer
		// transaction still commits the failed day row.
		buildErr := tx.Transaction(func(build *gorm.DB) error {
			return e.build(ctx, build, &channel, day, grid, loc)
		})
		if buildErr != nil {
			var sf *scheduling.SchedulingFailure
			var ve *scheduling.ValidationError
			switch {
			case errors.As(buildErr, &sf):
				day.FailureCode = sf.Code
				day.FailureDetail = sf.Message
			case errors.As(buildErr, &ve):
				day.FailureCode = ve.Code
				day.FailureDetail = ve.Message
			default:
				return buildErr
			}
			failure = buildErr
			day.State = models.DayFailed
			day.SegmentCount = 0
			day.AvailSeconds = 0
			day.CarryoverItemID = nil
			return tx.Save(day).Error
		}
		now := e.clock.Now().UTC()
		day.State = models.DayResolved
		day.ResolvedAt = &now
		return tx.Save(day).Error
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", date, err)
	}

	if failure != nil {
		e.logger.Warn().
			Str("channel_id", channelID).
			Str("date", date.String()).
			Int("revision", day.Revision).
			Str("code", day.FailureCode).
			Msg("day resolution failed")
		e.bus.Publish(events.EventDayFailed, events.Payload{
			"channel_id": channelID,
			"date":       date.String(),
			"revision":   day.Revision,
			"code":       day.FailureCode,
		})
		return day, failure
	}

	e.logger.Info().
		Str("channel_id", channelID).
		Str("date", date.String()).
		Int("revision", day.Revision).
		Str("plan", day.PlanName).
		Int("segments", day.SegmentCount).
		Int("avail_seconds", day.AvailSeconds).
		Msg("day resolved")
	e.bus.Publish(events.EventDayResolved, events.Payload{
		"channel_id": channelID,
		"date":       date.String(),
		"revision":   day.Revision,
		"plan":       day.PlanName,
	})
	if day.Revision > 1 {
		e.bus.Publish(events.EventDaySuperseded, events.Payload{
			"channel_id": channelID,
			"date":       date.String(),
			"revision":   day.Revision - 1,
		})
	}
	return day, nil
}

func (e *Engine) build(ctx context.Context, tx *gorm.DB, channel *models.Channel, day *models.ScheduleDay, grid broadcast.Grid, loc *time.Location) error {
	date := day.Date()
	dayStart := grid.DayStart(date, loc)
	dayEnd := grid.DayStart(date.AddDays(1), loc)
	tr := grid.Transition(date, loc)

	plan, err := priority.NewResolver(tx, e.logger).ActivePlan(ctx, channel.ID, date)
	if err != nil {
		return err
	}
	day.PlanID = &plan.ID
	day.PlanName = plan.Name
	day.PlanPriority = plan.Priority

	var zones []models.Zone
	if err := tx.WithContext(ctx).Where("plan_id = ?", plan.ID).
		Order("start_seconds ASC, id ASC").Find(&zones).Error; err != nil {
		return fmt.Errorf("load zones: %w", err)
	}
	if gap := scheduling.CoverageGap(zones, date); gap != nil {
		return gap
	}
	spans, err := physicalSpans(zones, date, tr)
	if err != nil {
		return err
	}

	var segments []models.ScheduleSegment
	occupied := 0

	copied, copyCursor, err := e.copyAired(ctx, tx, day, dayStart, dayEnd, grid)
	if err != nil {
		return err
	}
	if len(copied) > 0 {
		segments = append(segments, copied...)
		occupied = copyCursor
	} else {
		head, carrySec, err := e.carryIn(ctx, tx, day, date, dayStart)
		if err != nil {
			return err
		}
		if head != nil {
			segments = append(segments, *head)
			occupied = carrySec
		}
	}

	// Selection binds to this transaction so rolling it back restores
	// rotation cursors and play memory.
	sel := selection.NewEngine(catalog.NewService(tx, e.logger), rotation.NewStore(tx, e.logger), e.logger)
	exp := pattern.NewExpander(sel, e.logger)
	programCache := map[string][]models.Program{}

	for i := range spans {
		sp := &spans[i]
		if sp.end <= occupied {
			e.logger.Debug().
				Str("zone", sp.zone.Name).
				Str("date", date.String()).
				Msg("zone window consumed by preceding carry-out")
			continue
		}
		zstart := sp.start
		if occupied > zstart {
			zstart = occupied
		}
		ws := grid.BoundaryAtOrAfter(zstart)
		if ws > sp.end {
			ws = sp.end
		}
		if ws > zstart {
			// Air between the previous item's natural end and the
			// first boundary inside the zone stays unprogrammed.
			segments = append(segments, availRow(day, channel, sp.zone, zstart, ws, dayStart))
		}
		if ws >= sp.end {
			occupied = sp.end
			continue
		}

		programs, err := e.patternPrograms(ctx, tx, sp.zone.PatternID, programCache)
		if err != nil {
			return err
		}
		if len(programs) == 0 {
			e.logger.Warn().
				Str("code", scheduling.WarnPatternEmpty).
				Str("zone", sp.zone.Name).
				Str("date", date.String()).
				Msg("pattern has no programs; zone airs as avail")
		}
		res, err := exp.Expand(ctx, pattern.Request{
			ChannelID:    channel.ID,
			Grid:         grid,
			StartSeconds: ws,
			EndSeconds:   sp.end,
			Programs:     programs,
			InstantAt: func(off int) time.Time {
				return dayStart.Add(time.Duration(off) * time.Second)
			},
		})
		if err != nil {
			return err
		}
		for _, slot := range res.Slots {
			segments = append(segments, slotRows(day, channel, sp.zone, slot, dayStart)...)
		}
		for _, gap := range res.Gaps {
			segments = append(segments, availRow(day, channel, sp.zone, gap.StartSeconds, gap.EndSeconds, dayStart))
		}
		occupied = sp.end + res.CarryOutSeconds
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartsAt.Before(segments[j].StartsAt)
	})
	availMS := int64(0)
	for i := range segments {
		segments[i].Position = i
		if segments[i].Kind == models.SegmentAvail {
			availMS += segments[i].DurationMS
		}
	}
	for i := len(segments) - 1; i >= 0; i-- {
		seg := &segments[i]
		if seg.Kind != models.SegmentContent {
			continue
		}
		if seg.EndsAt.After(dayEnd) {
			day.CarryoverItemID = seg.CatalogItemID
		}
		break
	}
	if len(segments) > 0 {
		if err := tx.Create(&segments).Error; err != nil {
			return fmt.Errorf("write segments: %w", err)
		}
	}
	day.SegmentCount = len(segments)
	day.AvailSeconds = int(availMS / 1000)
	return nil
}

// zoneSpan is one eligible zone window projected onto physical seconds
// from the day start.
type zoneSpan struct {
	zone  *models.Zone
	start int
	end   int
}

// physicalSpans projects eligible zone windows onto the physical axis,
// gating zones that meet a DST transition on their declared policy.
// Wrap windows contribute one span per segment.
func physicalSpans(zones []models.Zone, date broadcast.Date, tr *broadcast.Transition) ([]zoneSpan, error) {
	var spans []zoneSpan
	for i := range zones {
		z := &zones[i]
		if !scheduling.ZoneActiveOn(z, date) {
			continue
		}
		w := z.Window()
		if w.DurationSeconds() == 0 {
			continue
		}
		if tr != nil && tr.SpansNominal(w) {
			if err := dstGate(z, date, tr); err != nil {
				return nil, err
			}
		}
		for _, seg := range w.Segments() {
			start := tr.PhysicalSeconds(int(seg.Start))
			end := tr.PhysicalSeconds(int(seg.End))
			if end <= start {
				// the window sits entirely inside the skipped hour
				continue
			}
			spans = append(spans, zoneSpan{zone: z, start: start, end: end})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.start != b.start {
			return a.start < b.start
		}
		return a.zone.ID < b.zone.ID
	})
	return spans, nil
}

// dstGate admits the spanning zone onto a transition day only when its
// policy matches the day's direction. The zone then absorbs the whole
// clock shift, however many grid blocks that spans.
func dstGate(z *models.Zone, date broadcast.Date, tr *broadcast.Transition) error {
	kind := "fall-back"
	if tr.Short {
		kind = "spring-forward"
	}
	p := z.DSTPolicy
	if p == nil || *p == models.DSTReject {
		return scheduling.NewSchedulingFailure(scheduling.FailDSTIncompatible,
			fmt.Sprintf("zone %q meets the %s transition on %s and does not authorize adjustment", z.Name, kind, date))
	}
	if tr.Short && *p != models.DSTShrinkOneBlock {
		return scheduling.NewSchedulingFailure(scheduling.FailDSTIncompatible,
			fmt.Sprintf("zone %q declares %s but %s is a short day", z.Name, *p, date))
	}
	if !tr.Short && *p != models.DSTExpandOneBlock {
		return scheduling.NewSchedulingFailure(scheduling.FailDSTIncompatible,
			fmt.Sprintf("zone %q declares %s but %s is a long day", z.Name, *p, date))
	}
	return nil
}

func (e *Engine) patternPrograms(ctx context.Context, tx *gorm.DB, patternID string, cache map[string][]models.Program) ([]models.Program, error) {
	if programs, ok := cache[patternID]; ok {
		return programs, nil
	}
	var programs []models.Program
	if err := tx.WithContext(ctx).Where("pattern_id = ?", patternID).Find(&programs).Error; err != nil {
		return nil, fmt.Errorf("load programs: %w", err)
	}
	pattern.OrderPrograms(programs)
	cache[patternID] = programs
	return programs, nil
}

// carryIn records the previous day's overrunning item as the head
// segment of this day, marking its span occupied.
func (e *Engine) carryIn(ctx context.Context, tx *gorm.DB, day *models.ScheduleDay, date broadcast.Date, dayStart time.Time) (*models.ScheduleSegment, int, error) {
	prev, err := latestResolved(ctx, tx, day.ChannelID, date.AddDays(-1))
	if err != nil {
		return nil, 0, err
	}
	if prev == nil || prev.CarryoverItemID == nil {
		return nil, 0, nil
	}
	var seg models.ScheduleSegment
	err = tx.WithContext(ctx).
		Where("schedule_day_id = ? AND kind = ?", prev.ID, models.SegmentContent).
		Order("starts_at DESC").First(&seg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("load carryover segment: %w", err)
	}
	if !seg.EndsAt.After(dayStart) {
		return nil, 0, nil
	}
	ms := seg.EndsAt.Sub(dayStart).Milliseconds()
	head := models.ScheduleSegment{
		ID:            uuid.NewString(),
		ScheduleDayID: day.ID,
		ChannelID:     day.ChannelID,
		CatalogItemID: seg.CatalogItemID,
		SeriesID:      seg.SeriesID,
		Title:         seg.Title,
		Kind:          models.SegmentCarryover,
		StartsAt:      dayStart,
		EndsAt:        seg.EndsAt,
		DurationMS:    ms,
	}
	return &head, int((ms + 999) / 1000), nil
}

// copyAired preserves history on mid-day re-resolution: segments of the
// superseded revision that started before the soft-start boundary are
// copied unchanged into the new revision, and the rebuild begins at
// that boundary. The current item always finishes.
func (e *Engine) copyAired(ctx context.Context, tx *gorm.DB, day *models.ScheduleDay, dayStart, dayEnd time.Time, grid broadcast.Grid) ([]models.ScheduleSegment, int, error) {
	if day.Revision == 1 {
		return nil, 0, nil
	}
	now := e.clock.Now()
	if !now.After(dayStart) || !now.Before(dayEnd) {
		return nil, 0, nil
	}
	prev, err := latestResolved(ctx, tx, day.ChannelID, day.Date())
	if err != nil || prev == nil {
		return nil, 0, err
	}

	cut := now
	var onAir models.ScheduleSegment
	err = tx.WithContext(ctx).
		Where("schedule_day_id = ? AND kind <> ? AND starts_at <= ? AND ends_at > ?",
			prev.ID, models.SegmentAvail, now, now).
		Order("starts_at DESC").First(&onAir).Error
	switch {
	case err == nil:
		cut = onAir.EndsAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, 0, fmt.Errorf("load on-air segment: %w", err)
	}
	boundary := grid.BoundaryAtOrAfter(ceilSeconds(cut.Sub(dayStart)))
	boundaryAt := dayStart.Add(time.Duration(boundary) * time.Second)

	var aired []models.ScheduleSegment
	if err := tx.WithContext(ctx).
		Where("schedule_day_id = ? AND starts_at < ?", prev.ID, boundaryAt).
		Order("starts_at ASC").Find(&aired).Error; err != nil {
		return nil, 0, fmt.Errorf("load aired segments: %w", err)
	}
	copied := make([]models.ScheduleSegment, 0, len(aired))
	for _, seg := range aired {
		if seg.EndsAt.After(boundaryAt) {
			// only an open avail can straddle the boundary; content
			// defines it
			seg.EndsAt = boundaryAt
			seg.DurationMS = boundaryAt.Sub(seg.StartsAt).Milliseconds()
			if seg.DurationMS <= 0 {
				continue
			}
		}
		seg.ID = uuid.NewString()
		seg.ScheduleDayID = day.ID
		seg.CreatedAt = time.Time{}
		copied = append(copied, seg)
	}
	e.logger.Info().
		Str("channel_id", day.ChannelID).
		Str("date", day.Date().String()).
		Int("copied", len(copied)).
		Int("resume_seconds", boundary).
		Msg("mid-day re-resolution keeps aired segments")
	return copied, boundary, nil
}

func slotRows(day *models.ScheduleDay, channel *models.Channel, z *models.Zone, slot pattern.Slot, dayStart time.Time) []models.ScheduleSegment {
	starts := dayStart.Add(time.Duration(slot.StartSeconds) * time.Second)
	base := models.ScheduleSegment{
		ScheduleDayID: day.ID,
		ChannelID:     channel.ID,
		ZoneID:        &z.ID,
		ZoneName:      z.Name,
		PatternID:     &z.PatternID,
		ProgramID:     &slot.Program.ID,
		Kind:          models.SegmentContent,
	}
	if len(slot.Pick.Members) > 0 {
		rows := make([]models.ScheduleSegment, 0, len(slot.Pick.Members))
		at := starts
		for i := range slot.Pick.Members {
			m := slot.Pick.Members[i]
			row := base
			row.ID = uuid.NewString()
			row.CatalogItemID = &m.ID
			row.SeriesID = m.SeriesID
			row.Title = m.Title
			row.StartsAt = at
			row.EndsAt = at.Add(time.Duration(m.DurationMS) * time.Millisecond)
			row.DurationMS = m.DurationMS
			rows = append(rows, row)
			at = row.EndsAt
		}
		return rows
	}
	row := base
	row.ID = uuid.NewString()
	itemID := slot.Pick.ItemID
	row.CatalogItemID = &itemID
	row.SeriesID = slot.Pick.SeriesID
	row.Title = slot.Pick.Title
	row.StartsAt = starts
	row.EndsAt = starts.Add(time.Duration(slot.Pick.DurationMS) * time.Millisecond)
	row.DurationMS = slot.Pick.DurationMS
	return []models.ScheduleSegment{row}
}

func availRow(day *models.ScheduleDay, channel *models.Channel, z *models.Zone, startSec, endSec int, dayStart time.Time) models.ScheduleSegment {
	starts := dayStart.Add(time.Duration(startSec) * time.Second)
	ends := dayStart.Add(time.Duration(endSec) * time.Second)
	return models.ScheduleSegment{
		ID:            uuid.NewString(),
		ScheduleDayID: day.ID,
		ChannelID:     channel.ID,
		ZoneID:        &z.ID,
		ZoneName:      z.Name,
		PatternID:     &z.PatternID,
		Kind:          models.SegmentAvail,
		Title:         "Avail",
		StartsAt:      starts,
		EndsAt:        ends,
		DurationMS:    ends.Sub(starts).Milliseconds(),
	}
}

// latestResolved returns the newest resolved revision for the date, or
// nil when the day never resolved.
func latestResolved(ctx context.Context, tx *gorm.DB, channelID string, date broadcast.Date) (*models.ScheduleDay, error) {
	var day models.ScheduleDay
	err := tx.WithContext(ctx).
		Where("channel_id = ? AND broadcast_date = ? AND state = ?",
			channelID, dateTime(date), models.DayResolved).
		Order("revision DESC").First(&day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule day: %w", err)
	}
	return &day, nil
}

// Day returns the newest revision of a broadcast day in any state, so
// callers can observe failures.
func (e *Engine) Day(ctx context.Context, channelID string, date broadcast.Date) (*models.ScheduleDay, error) {
	var day models.ScheduleDay
	err := e.db.WithContext(ctx).
		Where("channel_id = ? AND broadcast_date = ?", channelID, dateTime(date)).
		Order("revision DESC").First(&day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scheduling.NewNotFound("schedule day", fmt.Sprintf("%s/%s", channelID, date))
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule day: %w", err)
	}
	return &day, nil
}

// Segments returns the segment rows of the newest resolved revision in
// air order.
func (e *Engine) Segments(ctx context.Context, channelID string, date broadcast.Date) (*models.ScheduleDay, []models.ScheduleSegment, error) {
	day, err := latestResolved(ctx, e.db.WithContext(ctx), channelID, date)
	if err != nil {
		return nil, nil, err
	}
	if day == nil {
		return nil, nil, scheduling.NewNotFound("schedule day", fmt.Sprintf("%s/%s", channelID, date))
	}
	var segments []models.ScheduleSegment
	if err := e.db.WithContext(ctx).
		Where("schedule_day_id = ?", day.ID).
		Order("position ASC").Find(&segments).Error; err != nil {
		return nil, nil, fmt.Errorf("load segments: %w", err)
	}
	return day, segments, nil
}

// Carryover describes an item spanning a broadcast-day rollover, with
// the item's own bounds and the carried window from the day start to
// its natural end, in UTC and channel-local time.
type Carryover struct {
	CatalogItemID    string    `json:"catalog_item_id"`
	Title            string    `json:"title"`
	StartsAtUTC      time.Time `json:"starts_at_utc"`
	EndsAtUTC        time.Time `json:"ends_at_utc"`
	StartsAtLocal    time.Time `json:"starts_at_local"`
	EndsAtLocal      time.Time `json:"ends_at_local"`
	WindowStartUTC   time.Time `json:"window_start_utc"`
	WindowEndUTC     time.Time `json:"window_end_utc"`
	WindowStartLocal time.Time `json:"window_start_local"`
	WindowEndLocal   time.Time `json:"window_end_local"`
	Seconds          int       `json:"seconds"`
}

// Carryover reports the item carrying over into the date's day-start
// boundary, or nil when the previous day ends cleanly.
func (e *Engine) Carryover(ctx context.Context, channelID string, date broadcast.Date) (*Carryover, error) {
	var channel models.Channel
	if err := e.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.NewNotFound("channel", channelID)
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}
	loc, err := channel.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve channel timezone: %w", err)
	}
	dayStart := channel.Grid().DayStart(date, loc)

	prev, err := latestResolved(ctx, e.db.WithContext(ctx), channelID, date.AddDays(-1))
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.CarryoverItemID == nil {
		return nil, nil
	}
	var seg models.ScheduleSegment
	err = e.db.WithContext(ctx).
		Where("schedule_day_id = ? AND kind = ?", prev.ID, models.SegmentContent).
		Order("starts_at DESC").First(&seg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load carryover segment: %w", err)
	}
	if seg.CatalogItemID == nil || !seg.EndsAt.After(dayStart) {
		return nil, nil
	}
	return &Carryover{
		CatalogItemID:    *seg.CatalogItemID,
		Title:            seg.Title,
		StartsAtUTC:      seg.StartsAt.UTC(),
		EndsAtUTC:        seg.EndsAt.UTC(),
		StartsAtLocal:    seg.StartsAt.In(loc),
		EndsAtLocal:      seg.EndsAt.In(loc),
		WindowStartUTC:   dayStart.UTC(),
		WindowEndUTC:     seg.EndsAt.UTC(),
		WindowStartLocal: dayStart.In(loc),
		WindowEndLocal:   seg.EndsAt.In(loc),
		Seconds:          ceilSeconds(seg.EndsAt.Sub(dayStart)),
	}, nil
}

// OnAir is what a channel is playing at one instant.
type OnAir struct {
	ChannelID     string             `json:"channel_id"`
	At            time.Time          `json:"at"`
	CatalogItemID string             `json:"catalog_item_id"`
	SegmentID     *string            `json:"segment_id,omitempty"`
	Kind          models.PlaylogKind `json:"kind"`
	Title         string             `json:"title"`
	StartsAt      time.Time          `json:"starts_at"`
	EndsAt        time.Time          `json:"ends_at"`
	OffsetMS      int64              `json:"offset_ms"`
	RemainingMS   int64              `json:"remaining_ms"`
}

// OnAir reports the playlog event covering an instant with the offset
// into it. The playlog includes slate fills, so any instant inside the
// emitted horizon has an answer.
func (e *Engine) OnAir(ctx context.Context, channelID string, at time.Time) (*OnAir, error) {
	var ev models.PlaylogEvent
	err := e.db.WithContext(ctx).
		Where("channel_id = ? AND starts_at <= ? AND ends_at > ?", channelID, at, at).
		Order("starts_at DESC").First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scheduling.NewNotFound("playlog event", channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("load playlog event: %w", err)
	}
	return &OnAir{
		ChannelID:     channelID,
		At:            at,
		CatalogItemID: ev.CatalogItemID,
		SegmentID:     ev.SegmentID,
		Kind:          ev.Kind,
		Title:         ev.Title,
		StartsAt:      ev.StartsAt,
		EndsAt:        ev.EndsAt,
		OffsetMS:      at.Sub(ev.StartsAt).Milliseconds(),
		RemainingMS:   ev.EndsAt.Sub(at).Milliseconds(),
	}, nil
}

// Override records an operator correction and re-resolves the day at a
// new revision. The superseded revision and the override record both
// survive; history is never rewritten.
func (e *Engine) Override(ctx context.Context, channelID string, date broadcast.Date, reason string, createdBy *string, details map[string]any) (*models.ScheduleDay, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, scheduling.NewValidationError(scheduling.CodeReasonRequired,
			"an override must say why it exists")
	}
	day, resolveErr := e.ResolveDay(ctx, channelID, date)
	if day == nil {
		return nil, resolveErr
	}
	override := &models.ScheduleOverride{
		ID:            uuid.NewString(),
		ChannelID:     channelID,
		BroadcastDate: dateTime(date),
		ScheduleDayID: day.ID,
		Reason:        reason,
		CreatedBy:     createdBy,
		Details:       details,
	}
	if err := e.db.WithContext(ctx).Create(override).Error; err != nil {
		return day, fmt.Errorf("record override: %w", err)
	}
	e.logger.Info().
		Str("channel_id", channelID).
		Str("date", date.String()).
		Int("revision", day.Revision).
		Str("reason", reason).
		Msg("day overridden")
	e.bus.Publish(events.EventDayOverridden, events.Payload{
		"channel_id": channelID,
		"date":       date.String(),
		"revision":   day.Revision,
		"reason":     reason,
	})
	return day, resolveErr
}

func dateTime(d broadcast.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func ceilSeconds(d time.Duration) int {
	ms := d.Milliseconds()
	return int((ms + 999) / 1000)
}
