/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package priority

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Service manages the plan lifecycle: creation with seeded coverage,
// activation, and supersession by archive.
type Service struct {
	db        *gorm.DB
	resolver  *Resolver
	validator *scheduling.Validator
	bus       *events.Bus
	logger    zerolog.Logger
}

// NewService creates a plan service.
func NewService(db *gorm.DB, validator *scheduling.Validator, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		resolver:  NewResolver(db, logger),
		validator: validator,
		bus:       bus,
		logger:    logger.With().Str("component", "plans").Logger(),
	}
}

// Resolver exposes the precedence resolver backing this service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// CreateRequest describes a new plan.
type CreateRequest struct {
	ChannelID  string
	Name       string
	Priority   int
	StartDate  *time.Time
	EndDate    *time.Time
	Recurrence string
	Active     bool
	// SkipDefaultZone leaves the plan without coverage, for callers that
	// create explicit zones in the same import.
	SkipDefaultZone bool
}

// Create validates and stores a plan. Unless the request opts out, the
// plan is seeded with one full-day zone and an empty default pattern so
// it satisfies whole-day coverage from the moment it exists.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.SchedulePlan, error) {
	var channel models.Channel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", req.ChannelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.NewNotFound("channel", req.ChannelID)
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}

	plan := &models.SchedulePlan{
		ID:         uuid.NewString(),
		ChannelID:  req.ChannelID,
		Name:       req.Name,
		Priority:   req.Priority,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Recurrence: req.Recurrence,
		Active:     req.Active,
		Version:    1,
	}
	if err := s.validator.ValidatePlan(plan); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return fmt.Errorf("create plan: %w", err)
		}
		if req.SkipDefaultZone {
			return nil
		}

		name := "Default"
		pattern := &models.Pattern{
			ID:          uuid.NewString(),
			PlanID:      plan.ID,
			Name:        &name,
			Description: "Seeded with the plan to guarantee whole-day coverage.",
			Version:     1,
		}
		if err := tx.Create(pattern).Error; err != nil {
			return fmt.Errorf("create default pattern: %w", err)
		}

		zone := &models.Zone{
			ID:           uuid.NewString(),
			PlanID:       plan.ID,
			Name:         "Default",
			StartSeconds: 0,
			EndSeconds:   broadcast.DaySeconds,
			Enabled:      true,
			PatternID:    pattern.ID,
			Version:      1,
		}
		if err := s.validator.WithDB(tx).ValidateZone(zone, plan, &channel); err != nil {
			return err
		}
		if err := tx.Create(zone).Error; err != nil {
			return fmt.Errorf("create default zone: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("plan_id", plan.ID).
		Str("channel_id", plan.ChannelID).
		Str("name", plan.Name).
		Int("priority", plan.Priority).
		Msg("plan created")
	s.publish(events.EventPlanCreated, plan)
	return plan, nil
}

// Update validates and saves a fully populated plan, bumping its
// version. Callers load the plan, apply their changes, and pass it back.
func (s *Service) Update(ctx context.Context, plan *models.SchedulePlan) (*models.SchedulePlan, error) {
	var existing models.SchedulePlan
	if err := s.db.WithContext(ctx).First(&existing, "id = ?", plan.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.NewNotFound("plan", plan.ID)
		}
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if existing.Archived {
		return nil, &scheduling.ConflictError{Resource: "plan", ID: plan.ID,
			Version: existing.Version}
	}

	plan.ChannelID = existing.ChannelID
	plan.CreatedAt = existing.CreatedAt
	plan.Version = existing.Version + 1
	if err := s.validator.ValidatePlan(plan); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(plan).Error; err != nil {
			return fmt.Errorf("save plan: %w", err)
		}
		return s.coverageGuard(tx, plan)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("plan_id", plan.ID).Int("version", plan.Version).Msg("plan updated")
	s.publish(events.EventPlanUpdated, plan)
	s.bus.Publish(events.EventScheduleUpdate, events.Payload{
		"channel_id": plan.ChannelID,
		"plan_id":    plan.ID,
	})
	return plan, nil
}

// SetActive toggles whether the plan participates in resolution.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*models.SchedulePlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Archived {
		return nil, &scheduling.ConflictError{Resource: "plan", ID: id, Version: plan.Version}
	}
	if plan.Active == active {
		return plan, nil
	}

	plan.Active = active
	plan.Version++
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(plan).Error; err != nil {
			return fmt.Errorf("save plan: %w", err)
		}
		return s.coverageGuard(tx, plan)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("plan_id", id).Bool("active", active).Msg("plan activation changed")
	s.publish(events.EventPlanActivated, plan)
	return plan, nil
}

// Archive retires a plan. Archived plans never resolve and free their
// name for a successor, but stay queryable for history.
func (s *Service) Archive(ctx context.Context, id string) (*models.SchedulePlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Archived {
		return plan, nil
	}

	plan.Archived = true
	plan.Active = false
	plan.Version++
	if err := s.db.WithContext(ctx).Save(plan).Error; err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	s.logger.Info().Str("plan_id", id).Str("name", plan.Name).Msg("plan archived")
	s.publish(events.EventPlanArchived, plan)
	return plan, nil
}

// Get loads one plan.
func (s *Service) Get(ctx context.Context, id string) (*models.SchedulePlan, error) {
	var plan models.SchedulePlan
	if err := s.db.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, scheduling.NewNotFound("plan", id)
		}
		return nil, fmt.Errorf("load plan: %w", err)
	}
	return &plan, nil
}

// List returns a channel's plans in precedence order.
func (s *Service) List(ctx context.Context, channelID string, includeArchived bool) ([]models.SchedulePlan, error) {
	q := s.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	var plans []models.SchedulePlan
	if err := q.Order("priority DESC, created_at ASC, id ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// Delete hard-deletes an archived plan and its zones, patterns, and
// programs. Plans with resolved history are kept; archive is the
// supported way to retire them.
func (s *Service) Delete(ctx context.Context, id string) error {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !plan.Archived {
		return scheduling.NewValidationError(scheduling.CodePlanNotArchived,
			"plan must be archived before deletion; archive it to retire it from resolution").
			WithDetail("plan_id", id)
	}

	var days int64
	if err := s.db.WithContext(ctx).Model(&models.ScheduleDay{}).
		Where("plan_id = ?", id).Count(&days).Error; err != nil {
		return fmt.Errorf("count schedule days: %w", err)
	}
	if days > 0 {
		return scheduling.NewValidationError(scheduling.CodePlanInUse,
			fmt.Sprintf("%d resolved days reference this plan; keep it archived instead of deleting", days)).
			WithDetail("plan_id", id).
			WithDetail("schedule_days", days)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var patternIDs []string
		if err := tx.Model(&models.Pattern{}).Where("plan_id = ?", id).
			Pluck("id", &patternIDs).Error; err != nil {
			return fmt.Errorf("list patterns: %w", err)
		}
		if len(patternIDs) > 0 {
			if err := tx.Where("pattern_id IN ?", patternIDs).
				Delete(&models.Program{}).Error; err != nil {
				return fmt.Errorf("delete programs: %w", err)
			}
		}
		if err := tx.Where("plan_id = ?", id).Delete(&models.Zone{}).Error; err != nil {
			return fmt.Errorf("delete zones: %w", err)
		}
		if err := tx.Where("plan_id = ?", id).Delete(&models.Pattern{}).Error; err != nil {
			return fmt.Errorf("delete patterns: %w", err)
		}
		if err := tx.Delete(&models.SchedulePlan{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("plan_id", id).Str("name", plan.Name).Msg("plan deleted")
	return nil
}

// coverageGuard re-checks whole-day coverage inside the mutating
// transaction. Inactive and archived plans pass; they do not resolve.
func (s *Service) coverageGuard(tx *gorm.DB, plan *models.SchedulePlan) error {
	if !plan.Active || plan.Archived {
		return nil
	}
	var channel models.Channel
	if err := tx.First(&channel, "id = ?", plan.ChannelID).Error; err != nil {
		return fmt.Errorf("load channel: %w", err)
	}
	return s.validator.WithDB(tx).CheckPlanCoverage(plan, &channel, scheduling.CoverageWindowDays)
}

func (s *Service) publish(eventType events.EventType, plan *models.SchedulePlan) {
	s.bus.Publish(eventType, events.Payload{
		"plan_id":    plan.ID,
		"channel_id": plan.ChannelID,
		"name":       plan.Name,
		"priority":   plan.Priority,
		"active":     plan.Active,
		"archived":   plan.Archived,
	})
}
