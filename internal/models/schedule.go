/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/saga_tv/internal/broadcast"
)

// DayState tracks a (channel, broadcast day) through resolution.
type DayState string

const (
	DayUnresolved DayState = "unresolved"
	DayResolving  DayState = "resolving"
	DayResolved   DayState = "resolved"
	DayFailed     DayState = "failed"
)

// ScheduleDay is the resolved schedule for one channel and broadcast day.
// Rows are immutable once resolved or failed; regeneration inserts the
// next revision instead of mutating. The current revision is the highest
// one, the current resolved revision the highest in state resolved.
type ScheduleDay struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	ChannelID     string    `gorm:"type:uuid;uniqueIndex:idx_day_channel_date_rev"`
	BroadcastDate time.Time `gorm:"type:date;uniqueIndex:idx_day_channel_date_rev"`
	Revision      int       `gorm:"uniqueIndex:idx_day_channel_date_rev"`

	State DayState `gorm:"type:varchar(16);index"`

	// Plan selection outcome, denormalized for the guide.
	PlanID       *string `gorm:"type:uuid"`
	PlanName     string
	PlanPriority int

	FailureCode   string `gorm:"type:varchar(64)"`
	FailureDetail string `gorm:"type:text"`

	SegmentCount    int
	AvailSeconds    int
	CarryoverItemID *string `gorm:"type:uuid"`

	ResolvedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Date returns the broadcast date as a civil date.
func (d *ScheduleDay) Date() broadcast.Date {
	return broadcast.DateOf(d.BroadcastDate)
}

// SegmentKind classifies guide segments.
type SegmentKind string

const (
	SegmentContent   SegmentKind = "content"
	SegmentAvail     SegmentKind = "avail"
	SegmentCarryover SegmentKind = "carryover"
)

// ScheduleSegment is one guide-grain row of a resolved day: a placed
// item, an observable avail gap, or the span a previous day's item
// carries over the rollover boundary.
type ScheduleSegment struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	ScheduleDayID string `gorm:"type:uuid;index"`
	ChannelID     string `gorm:"type:uuid;index:idx_segment_channel_start"`
	Position      int

	ZoneID    *string `gorm:"type:uuid"`
	ZoneName  string
	PatternID *string `gorm:"type:uuid"`
	ProgramID *string `gorm:"type:uuid"`

	CatalogItemID *string `gorm:"type:uuid"`
	SeriesID      *string `gorm:"type:uuid"`
	Title         string

	Kind       SegmentKind `gorm:"type:varchar(16)"`
	StartsAt   time.Time   `gorm:"index:idx_segment_channel_start"`
	EndsAt     time.Time
	DurationMS int64

	CreatedAt time.Time
}

// PlaylogKind classifies playback events.
type PlaylogKind string

const (
	PlaylogContent PlaylogKind = "content"
	PlaylogFiller  PlaylogKind = "filler"
)

// PlaylogEvent is one millisecond-precise playback record. Events are
// gap-free per channel: each start equals the previous end. Only the
// playlog emitter writes them; regeneration deletes superseded future
// events in the same transaction and never touches past ones.
type PlaylogEvent struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	ChannelID     string  `gorm:"type:uuid;index:idx_playlog_channel_start"`
	ScheduleDayID string  `gorm:"type:uuid;index"`
	SegmentID     *string `gorm:"type:uuid"`

	CatalogItemID string      `gorm:"type:uuid"`
	Kind          PlaylogKind `gorm:"type:varchar(16)"`
	Title         string

	StartsAt   time.Time `gorm:"index:idx_playlog_channel_start"`
	EndsAt     time.Time
	DurationMS int64

	CreatedAt time.Time
}

// ScheduleOverride records an explicit operator correction to a resolved
// day. History stays intact: the override points at the superseded day.
type ScheduleOverride struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	ChannelID     string         `gorm:"type:uuid;index"`
	BroadcastDate time.Time      `gorm:"type:date"`
	ScheduleDayID string         `gorm:"type:uuid"`
	Reason        string         `gorm:"type:text"`
	CreatedBy     *string        `gorm:"type:uuid"`
	Details       map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt     time.Time
}

// RotationState is the persisted cursor for one rotation scope, normally
// a (channel, series) pair.
type RotationState struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ChannelID string `gorm:"type:uuid;uniqueIndex:idx_rotation_scope"`
	ScopeID   string `gorm:"type:uuid;uniqueIndex:idx_rotation_scope"`
	Cursor    int
	Seed      int64
	UpdatedAt time.Time
}

// RotationPlay remembers a materialized pick for least-recently-used
// rotation.
type RotationPlay struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	ChannelID     string    `gorm:"type:uuid;index:idx_rotation_play_scope"`
	ScopeID       string    `gorm:"type:uuid;index:idx_rotation_play_scope"`
	CatalogItemID string    `gorm:"type:uuid;index"`
	PlayedAt      time.Time `gorm:"index"`
}
