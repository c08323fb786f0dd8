/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/saga_tv/internal/broadcast"
)

// SchedulePlan is a named, prioritized, time-bounded programming ruleset
// for one channel. Higher Priority wins; ties break by creation order
// then ID. Superseded plans are archived, never hard-deleted. Name
// uniqueness holds among non-archived plans only, so a successor may
// reuse the name of the plan it replaces; the validator enforces it.
type SchedulePlan struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	ChannelID string `gorm:"type:uuid;index:idx_plan_channel"`
	Name      string

	StartDate *time.Time `gorm:"type:date"`
	EndDate   *time.Time `gorm:"type:date"`
	// Recurrence is an RRULE evaluated at day granularity; any hour or
	// minute component is ignored.
	Recurrence string `gorm:"type:varchar(255)"`

	Priority int  `gorm:"index"`
	Active   bool `gorm:"index"`
	Archived bool `gorm:"index"`

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DSTPolicy declares how a zone behaves on a DST transition day. The
// zone whose window spans the transition instant absorbs the full
// clock shift, one hour on ordinary transitions. "One block" names the
// authorization, not the amount: on a 60-minute grid the shift is one
// block, on a 30-minute grid it is two.
type DSTPolicy string

const (
	// DSTReject fails the day when the zone meets any transition.
	DSTReject DSTPolicy = "reject"
	// DSTShrinkOneBlock authorizes absorbing the lost time on a short
	// day. Directionally invalid on a long day.
	DSTShrinkOneBlock DSTPolicy = "shrink_one_block"
	// DSTExpandOneBlock authorizes absorbing the repeated time on a long
	// day. Directionally invalid on a short day.
	DSTExpandOneBlock DSTPolicy = "expand_one_block"
)

// ValidDSTPolicy reports whether s is a member of the policy enum.
func ValidDSTPolicy(s string) bool {
	switch DSTPolicy(s) {
	case DSTReject, DSTShrinkOneBlock, DSTExpandOneBlock:
		return true
	}
	return false
}

// Zone is a named, grid-aligned time window inside a plan, referencing
// exactly one Pattern of the same plan. Times are broadcast-day-relative
// seconds; EndSeconds 86400 is the normalized end of day. Start past end
// marks a wrap window spanning the day boundary.
type Zone struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	PlanID string `gorm:"type:uuid;index"`
	Name   string

	StartSeconds int
	EndSeconds   int

	// DayFilter holds lowercase day tokens (mon..sun); nil means every
	// day. An empty list normalizes to nil on write.
	DayFilter []string `gorm:"serializer:json"`

	Enabled       bool
	EffectiveFrom *time.Time `gorm:"type:date"`
	EffectiveTo   *time.Time `gorm:"type:date"`
	DSTPolicy     *DSTPolicy `gorm:"type:varchar(32)"`

	PatternID string `gorm:"type:uuid;index"`

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window returns the zone's broadcast-day-relative window.
func (z *Zone) Window() broadcast.Window {
	return broadcast.Window{
		Start: broadcast.DayTime(z.StartSeconds),
		End:   broadcast.DayTime(z.EndSeconds),
	}
}

// AppliesOn reports whether the zone's day filter admits the date.
func (z *Zone) AppliesOn(date broadcast.Date) bool {
	if len(z.DayFilter) == 0 {
		return true
	}
	token := string(broadcast.TokenForWeekday(date.Weekday()))
	for _, d := range z.DayFilter {
		if d == token {
			return true
		}
	}
	return false
}

// Pattern is an ordered, durationless list of Programs belonging to one
// plan. A pattern with zero programs is legal and produces a warning at
// resolution time, never a failure.
type Pattern struct {
	ID          string  `gorm:"type:uuid;primaryKey"`
	PlanID      string  `gorm:"type:uuid;index"`
	Name        *string // optional, unique per plan when present
	Description string  `gorm:"type:text"`

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProgramKind tags the closed set of content reference variants.
type ProgramKind string

const (
	ProgramSeries  ProgramKind = "series"  // series with a rotation policy
	ProgramAsset   ProgramKind = "asset"   // one fixed catalog item
	ProgramRule    ProgramKind = "rule"    // filter over eligible items
	ProgramVirtual ProgramKind = "virtual" // composite of member assets
)

// RotationPolicy selects the next episode of a series program.
type RotationPolicy string

const (
	RotationSequential        RotationPolicy = "sequential"
	RotationRandom            RotationPolicy = "random"
	RotationLeastRecentlyUsed RotationPolicy = "least_recently_used"
)

// RuleSelector filters eligible catalog items for a rule program.
type RuleSelector struct {
	Genre         string   `json:"genre,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	MinYear       int      `json:"min_year,omitempty"`
	MaxYear       int      `json:"max_year,omitempty"`
	MaxDurationMS int64    `json:"max_duration_ms,omitempty"`
}

// VirtualComposite assembles member assets into one synthetic item whose
// duration is the member sum.
type VirtualComposite struct {
	Title   string   `json:"title"`
	ItemIDs []string `json:"item_ids"`
}

// Program is a catalog-level content reference held in pattern order.
// Programs carry no absolute timing; only zones and the grid determine
// when they play. Duplicate positions are tolerated and break ties by
// creation time then ID.
type Program struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	PatternID string `gorm:"type:uuid;index"`
	Position  int

	Kind     ProgramKind     `gorm:"type:varchar(16)"`
	SeriesID *string         `gorm:"type:uuid"`
	Rotation *RotationPolicy `gorm:"type:varchar(32)"`
	AssetID  *string         `gorm:"type:uuid"`

	Rule    *RuleSelector     `gorm:"type:jsonb;serializer:json"`
	Virtual *VirtualComposite `gorm:"type:jsonb;serializer:json"`

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}
