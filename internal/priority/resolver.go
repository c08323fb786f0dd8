/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package priority selects which schedule plan governs a channel on a
// given broadcast date and manages the plan lifecycle around that
// choice.
package priority

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Resolver picks the winning plan for a channel and broadcast date.
type Resolver struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewResolver creates a plan resolver.
func NewResolver(db *gorm.DB, logger zerolog.Logger) *Resolver {
	return &Resolver{
		db:     db,
		logger: logger.With().Str("component", "plan_resolver").Logger(),
	}
}

// WithDB returns a resolver bound to the given handle, typically a
// transaction.
func (r *Resolver) WithDB(db *gorm.DB) *Resolver {
	return &Resolver{db: db, logger: r.logger}
}

// ActivePlan resolves the single plan governing the channel on the
// given broadcast date. Candidates are active, non-archived plans whose
// date bounds and recurrence rule match the date. The highest priority
// wins; ties break by creation time, then by ID, never by iteration
// order. No candidate at all is a scheduling failure, not an empty
// result.
func (r *Resolver) ActivePlan(ctx context.Context, channelID string, date broadcast.Date) (*models.SchedulePlan, error) {
	candidates, err := r.CandidatesOn(ctx, channelID, date)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, scheduling.NewSchedulingFailure(scheduling.FailNoActivePlan,
			fmt.Sprintf("no active plan covers %s", date))
	}
	plan := candidates[0]
	return &plan, nil
}

// CandidatesOn returns every plan covering the date, in precedence
// order. The first element is the plan ActivePlan would pick.
func (r *Resolver) CandidatesOn(ctx context.Context, channelID string, date broadcast.Date) ([]models.SchedulePlan, error) {
	var plans []models.SchedulePlan
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Where("active = ?", true).
		Where("archived = ?", false).
		Order("priority DESC, created_at ASC, id ASC").
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}

	matched := plans[:0]
	for _, plan := range plans {
		ok, err := scheduling.PlanAppliesOn(&plan, date)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", plan.ID, err)
		}
		if ok {
			matched = append(matched, plan)
		}
	}
	return matched, nil
}

// TimelineEntry is one date of a plan-precedence preview. Plan is nil
// on dates nothing covers.
type TimelineEntry struct {
	Date broadcast.Date        `json:"date"`
	Plan *models.SchedulePlan  `json:"plan,omitempty"`
	Also []models.SchedulePlan `json:"also_eligible,omitempty"`
}

// Timeline previews the winning plan for consecutive broadcast dates,
// so operators can see precedence play out before a day resolves.
func (r *Resolver) Timeline(ctx context.Context, channelID string, from broadcast.Date, days int) ([]TimelineEntry, error) {
	entries := make([]TimelineEntry, 0, days)
	date := from
	for i := 0; i < days; i++ {
		candidates, err := r.CandidatesOn(ctx, channelID, date)
		if err != nil {
			return nil, err
		}
		entry := TimelineEntry{Date: date}
		if len(candidates) > 0 {
			plan := candidates[0]
			entry.Plan = &plan
			entry.Also = candidates[1:]
		}
		entries = append(entries, entry)
		date = date.AddDays(1)
	}
	return entries, nil
}

// IsNoActivePlan reports whether err is the "no plan covers this date"
// terminal state.
func IsNoActivePlan(err error) bool {
	var sf *scheduling.SchedulingFailure
	return errors.As(err, &sf) && sf.Code == scheduling.FailNoActivePlan
}
