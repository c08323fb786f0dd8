/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package importer loads declarative plan documents. A document carries
// one plan with its zones, patterns and programs; everything passes the
// same validation as interactive edits, and a document that fails any
// check imports nothing.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/priority"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Document is the root of a YAML plan document.
type Document struct {
	// Channel accepts a channel slug or ID.
	Channel string  `yaml:"channel"`
	Plan    PlanDoc `yaml:"plan"`
}

// PlanDoc declares one schedule plan with its full zone/pattern graph.
type PlanDoc struct {
	Name       string `yaml:"name"`
	Priority   int    `yaml:"priority"`
	Recurrence string `yaml:"recurrence,omitempty"`
	StartDate  string `yaml:"start_date,omitempty"`
	EndDate    string `yaml:"end_date,omitempty"`
	Active     bool   `yaml:"active,omitempty"`

	Patterns []PatternDoc `yaml:"patterns"`
	Zones    []ZoneDoc    `yaml:"zones"`
}

type PatternDoc struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Programs    []ProgramDoc `yaml:"programs"`
}

type ProgramDoc struct {
	Position int    `yaml:"position"`
	Kind     string `yaml:"kind"`
	SeriesID string `yaml:"series_id,omitempty"`
	Rotation string `yaml:"rotation,omitempty"`
	AssetID  string `yaml:"asset_id,omitempty"`

	Rule    *RuleDoc    `yaml:"rule,omitempty"`
	Virtual *VirtualDoc `yaml:"virtual,omitempty"`
}

type RuleDoc struct {
	Genre         string   `yaml:"genre,omitempty"`
	Tags          []string `yaml:"tags,omitempty"`
	MinYear       int      `yaml:"min_year,omitempty"`
	MaxYear       int      `yaml:"max_year,omitempty"`
	MaxDurationMS int64    `yaml:"max_duration_ms,omitempty"`
}

type VirtualDoc struct {
	Title   string   `yaml:"title"`
	ItemIDs []string `yaml:"item_ids"`
}

// ZoneDoc declares a zone; Pattern names a pattern defined in the same
// document.
type ZoneDoc struct {
	Name          string   `yaml:"name"`
	Start         string   `yaml:"start"`
	End           string   `yaml:"end"`
	Pattern       string   `yaml:"pattern"`
	DayFilter     []string `yaml:"day_filter,omitempty"`
	Disabled      bool     `yaml:"disabled,omitempty"`
	EffectiveFrom string   `yaml:"effective_from,omitempty"`
	EffectiveTo   string   `yaml:"effective_to,omitempty"`
	DSTPolicy     string   `yaml:"dst_policy,omitempty"`
}

// Result reports what one import created.
type Result struct {
	PlanID   string `json:"plan_id"`
	Plan     string `json:"plan"`
	Channel  string `json:"channel_id"`
	Zones    int    `json:"zones"`
	Patterns int    `json:"patterns"`
	Programs int    `json:"programs"`
}

// Importer loads plan documents through the plan service and validator.
type Importer struct {
	db        *gorm.DB
	plans     *priority.Service
	validator *scheduling.Validator
	bus       *events.Bus
	logger    zerolog.Logger
}

func New(db *gorm.DB, plans *priority.Service, validator *scheduling.Validator, bus *events.Bus, logger zerolog.Logger) *Importer {
	return &Importer{
		db:        db,
		plans:     plans,
		validator: validator,
		bus:       bus,
		logger:    logger.With().Str("component", "importer").Logger(),
	}
}

// Import parses and loads one YAML plan document. The document's zones
// and patterns replace the default seed; a failed validation leaves the
// database untouched.
func (i *Importer) Import(ctx context.Context, raw []byte) (*Result, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, scheduling.NewValidationError("import_parse", "document is not valid YAML").
			WithDetail("cause", err.Error())
	}
	if doc.Channel == "" {
		return nil, scheduling.NewValidationError("import_channel_required", "document must name a channel")
	}
	if doc.Plan.Name == "" {
		return nil, scheduling.NewValidationError("import_plan_name_required", "plan must have a name")
	}
	if len(doc.Plan.Zones) == 0 {
		return nil, scheduling.NewValidationError("import_zones_required", "plan must declare at least one zone")
	}

	channel, err := i.lookupChannel(ctx, doc.Channel)
	if err != nil {
		return nil, err
	}

	startDate, err := parseDocDate(doc.Plan.StartDate, "start_date")
	if err != nil {
		return nil, err
	}
	endDate, err := parseDocDate(doc.Plan.EndDate, "end_date")
	if err != nil {
		return nil, err
	}

	plan, err := i.plans.Create(ctx, priority.CreateRequest{
		ChannelID:       channel.ID,
		Name:            doc.Plan.Name,
		Priority:        doc.Plan.Priority,
		StartDate:       startDate,
		EndDate:         endDate,
		Recurrence:      doc.Plan.Recurrence,
		Active:          doc.Plan.Active,
		SkipDefaultZone: true,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{PlanID: plan.ID, Plan: plan.Name, Channel: channel.ID}

	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return i.loadGraph(tx, channel, plan, &doc.Plan, result)
	})
	if err != nil {
		// The plan shell was committed before the graph; remove it so a
		// failed document leaves nothing behind.
		if delErr := i.db.WithContext(ctx).Delete(&models.SchedulePlan{}, "id = ?", plan.ID).Error; delErr != nil {
			i.logger.Error().Err(delErr).Str("plan_id", plan.ID).Msg("failed to remove plan after aborted import")
		}
		return nil, err
	}

	i.bus.Publish(events.EventAuditImport, events.Payload{
		"channel_id":    channel.ID,
		"resource_type": "schedule_plan",
		"resource_id":   plan.ID,
		"plan":          plan.Name,
		"zones":         result.Zones,
		"patterns":      result.Patterns,
		"programs":      result.Programs,
	})

	i.logger.Info().
		Str("plan_id", plan.ID).
		Str("channel_id", channel.ID).
		Int("zones", result.Zones).
		Int("patterns", result.Patterns).
		Int("programs", result.Programs).
		Msg("plan document imported")

	return result, nil
}

func (i *Importer) loadGraph(tx *gorm.DB, channel *models.Channel, plan *models.SchedulePlan, pd *PlanDoc, result *Result) error {
	validator := i.validator.WithDB(tx)
	patternIDs := make(map[string]string, len(pd.Patterns))

	for pi := range pd.Patterns {
		patternDoc := &pd.Patterns[pi]
		if patternDoc.Name == "" {
			return scheduling.NewValidationError("import_pattern_name_required", "every pattern needs a name")
		}
		if _, dup := patternIDs[patternDoc.Name]; dup {
			return scheduling.NewValidationError(scheduling.CodeNameConflict, "duplicate pattern name "+patternDoc.Name)
		}

		name := patternDoc.Name
		pattern := &models.Pattern{
			ID:          uuid.NewString(),
			PlanID:      plan.ID,
			Name:        &name,
			Description: patternDoc.Description,
			Version:     1,
		}
		if _, err := validator.ValidatePattern(pattern); err != nil {
			return err
		}
		if err := tx.Create(pattern).Error; err != nil {
			return fmt.Errorf("create pattern %s: %w", patternDoc.Name, err)
		}
		patternIDs[patternDoc.Name] = pattern.ID
		result.Patterns++

		for _, programDoc := range patternDoc.Programs {
			program := programFromDoc(pattern.ID, programDoc)
			if err := validator.ValidateProgram(program); err != nil {
				return err
			}
			if err := tx.Create(program).Error; err != nil {
				return fmt.Errorf("create program: %w", err)
			}
			result.Programs++
		}
	}

	for _, zoneDoc := range pd.Zones {
		zone, err := zoneFromDoc(plan.ID, zoneDoc, patternIDs)
		if err != nil {
			return err
		}
		scheduling.NormalizeZone(zone)
		if err := validator.ValidateZone(zone, plan, channel); err != nil {
			return err
		}
		if err := tx.Create(zone).Error; err != nil {
			return fmt.Errorf("create zone %s: %w", zoneDoc.Name, err)
		}
		result.Zones++
	}

	// The declared zones replace the default seed, so the document is
	// held to the same whole-day coverage bar as interactive edits.
	return validator.CheckPlanCoverage(plan, channel, scheduling.CoverageWindowDays)
}

func (i *Importer) lookupChannel(ctx context.Context, ref string) (*models.Channel, error) {
	var channel models.Channel
	err := i.db.WithContext(ctx).First(&channel, "id = ? OR slug = ?", ref, ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scheduling.NewNotFound("channel", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup channel: %w", err)
	}
	return &channel, nil
}

func programFromDoc(patternID string, pd ProgramDoc) *models.Program {
	program := &models.Program{
		ID:        uuid.NewString(),
		PatternID: patternID,
		Position:  pd.Position,
		Kind:      models.ProgramKind(pd.Kind),
		Version:   1,
	}
	if pd.SeriesID != "" {
		id := pd.SeriesID
		program.SeriesID = &id
	}
	if pd.Rotation != "" {
		rot := models.RotationPolicy(pd.Rotation)
		program.Rotation = &rot
	}
	if pd.AssetID != "" {
		id := pd.AssetID
		program.AssetID = &id
	}
	if pd.Rule != nil {
		program.Rule = &models.RuleSelector{
			Genre:         pd.Rule.Genre,
			Tags:          pd.Rule.Tags,
			MinYear:       pd.Rule.MinYear,
			MaxYear:       pd.Rule.MaxYear,
			MaxDurationMS: pd.Rule.MaxDurationMS,
		}
	}
	if pd.Virtual != nil {
		program.Virtual = &models.VirtualComposite{
			Title:   pd.Virtual.Title,
			ItemIDs: pd.Virtual.ItemIDs,
		}
	}
	return program
}

func zoneFromDoc(planID string, zd ZoneDoc, patternIDs map[string]string) (*models.Zone, error) {
	patternID, ok := patternIDs[zd.Pattern]
	if !ok {
		return nil, scheduling.NewValidationError("import_pattern_unknown", "zone "+zd.Name+" references undefined pattern "+zd.Pattern)
	}

	start, verr := scheduling.ParseZoneTime(zd.Start)
	if verr != nil {
		return nil, verr
	}
	end, verr := scheduling.ParseZoneTime(zd.End)
	if verr != nil {
		return nil, verr
	}

	zone := &models.Zone{
		ID:           uuid.NewString(),
		PlanID:       planID,
		Name:         zd.Name,
		StartSeconds: int(start),
		EndSeconds:   int(end),
		DayFilter:    zd.DayFilter,
		Enabled:      !zd.Disabled,
		PatternID:    patternID,
		Version:      1,
	}

	from, err := parseDocDate(zd.EffectiveFrom, "effective_from")
	if err != nil {
		return nil, err
	}
	to, err := parseDocDate(zd.EffectiveTo, "effective_to")
	if err != nil {
		return nil, err
	}
	zone.EffectiveFrom = from
	zone.EffectiveTo = to

	if zd.DSTPolicy != "" {
		policy := models.DSTPolicy(zd.DSTPolicy)
		zone.DSTPolicy = &policy
	}
	return zone, nil
}

func parseDocDate(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, scheduling.NewValidationError(scheduling.CodeTimeFormat, field+" must be YYYY-MM-DD")
	}
	return &t, nil
}
