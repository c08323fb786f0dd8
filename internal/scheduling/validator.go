/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

// dstScanCapDays bounds the transition scan for pinned effective ranges.
// Longer ranges are only checked per-day at resolution time.
const dstScanCapDays = 400

// CoverageWindowDays is the look-ahead every mutation uses when it
// re-checks whole-day coverage. Seven days puts a concrete date behind
// each day-of-week token, so a filtered zone cannot hide a gap.
const CoverageWindowDays = 7

// Validator runs the domain rules shared by every mutation surface.
type Validator struct {
	db     *gorm.DB
	clock  timeauthority.Clock
	logger zerolog.Logger
}

// NewValidator creates a validator bound to a database handle.
func NewValidator(db *gorm.DB, clock timeauthority.Clock, logger zerolog.Logger) *Validator {
	return &Validator{
		db:     db,
		clock:  clock,
		logger: logger.With().Str("component", "validator").Logger(),
	}
}

// WithDB returns a copy bound to tx, so validation and the write it
// guards observe the same transaction.
func (v *Validator) WithDB(tx *gorm.DB) *Validator {
	c := *v
	c.db = tx
	return &c
}

// ParseZoneTime parses an HH:MM or HH:MM:SS boundary, mapping parse
// failures onto the stable time_format code.
func ParseZoneTime(s string) (broadcast.DayTime, *ValidationError) {
	t, err := broadcast.ParseDayTime(s)
	if err != nil {
		return 0, NewValidationError(CodeTimeFormat,
			fmt.Sprintf("invalid time %q: use HH:MM or HH:MM:SS, up to 24:00:00", s)).
			WithDetail("value", s)
	}
	return t, nil
}

// NormalizeZone applies the canonical write-time normalizations: an end
// of 00:00:00 means end of day, and an empty day filter means every day.
func NormalizeZone(z *models.Zone) {
	if z.EndSeconds == 0 {
		z.EndSeconds = broadcast.DaySeconds
	}
	if len(z.DayFilter) == 0 {
		z.DayFilter = nil
	}
	for i, d := range z.DayFilter {
		z.DayFilter[i] = strings.ToLower(strings.TrimSpace(d))
	}
}

// ValidateChannel checks a channel's grid and timezone configuration.
func (v *Validator) ValidateChannel(ch *models.Channel) error {
	if strings.TrimSpace(ch.Name) == "" {
		return NewValidationError(CodeNameRequired, "channel name is required")
	}
	if ch.Timezone != "" {
		if _, err := time.LoadLocation(ch.Timezone); err != nil {
			return NewValidationError(CodeTimezoneInvalid,
				fmt.Sprintf("unknown timezone %q: use an IANA name like Europe/Berlin", ch.Timezone)).
				WithDetail("timezone", ch.Timezone)
		}
	}
	if err := ch.Grid().Validate(); err != nil {
		return NewValidationError(CodeGridInvalid, err.Error())
	}
	if ch.SlateItemID != nil {
		var n int64
		if err := v.db.Model(&models.CatalogItem{}).Where("id = ?", *ch.SlateItemID).Count(&n).Error; err != nil {
			return fmt.Errorf("check slate item: %w", err)
		}
		if n == 0 {
			return NewValidationError(CodeItemNotFound, "slate item does not exist").
				WithDetail("item_id", *ch.SlateItemID)
		}
	}
	var n int64
	if err := v.db.Model(&models.Channel{}).
		Where("name = ? AND id != ?", ch.Name, ch.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("check channel name: %w", err)
	}
	if n > 0 {
		return NewValidationError(CodeNameConflict,
			fmt.Sprintf("a channel named %q already exists", ch.Name)).
			WithDetail("name", ch.Name)
	}
	return nil
}

// ValidatePlan checks a plan's own fields and its name uniqueness
// within the channel. Zone coverage is checked separately because it
// depends on the plan's full zone set.
func (v *Validator) ValidatePlan(plan *models.SchedulePlan) error {
	if strings.TrimSpace(plan.Name) == "" {
		return NewValidationError(CodeNameRequired, "plan name is required")
	}
	if plan.StartDate != nil && plan.EndDate != nil && plan.StartDate.After(*plan.EndDate) {
		return NewValidationError(CodeEffectiveRangeInvalid,
			"plan start date is after its end date").
			WithDetail("start_date", plan.StartDate.Format("2006-01-02")).
			WithDetail("end_date", plan.EndDate.Format("2006-01-02"))
	}
	if err := ValidateRecurrence(plan.Recurrence); err != nil {
		return err
	}
	var n int64
	if err := v.db.Model(&models.SchedulePlan{}).
		Where("channel_id = ? AND name = ? AND archived = ? AND id != ?",
			plan.ChannelID, plan.Name, false, plan.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("check plan name: %w", err)
	}
	if n > 0 {
		return NewValidationError(CodeNameConflict,
			fmt.Sprintf("a plan named %q already exists on this channel", plan.Name)).
			WithDetail("name", plan.Name)
	}
	return nil
}

// ValidateZone runs the zone checks in their contractual order and
// returns the first violation. The order is part of the API surface:
// given the same zone and the same sibling state, every entry point
// reports the same code.
func (v *Validator) ValidateZone(zone *models.Zone, plan *models.SchedulePlan, channel *models.Channel) error {
	NormalizeZone(zone)
	grid := channel.Grid()

	if e := checkTimeFormat(zone); e != nil {
		return e
	}
	if e := checkTimeOrder(zone); e != nil {
		return e
	}
	if e := checkDivisibility(zone, grid); e != nil {
		return e
	}
	if e := checkAlignment(zone, grid); e != nil {
		return e
	}
	if e, err := v.checkPatternRef(zone); err != nil {
		return err
	} else if e != nil {
		return e
	}
	if e, err := v.checkZoneName(zone); err != nil {
		return err
	} else if e != nil {
		return e
	}
	if e := checkDayFilter(zone); e != nil {
		return e
	}
	if e := checkEffectiveRange(zone); e != nil {
		return e
	}
	if e := checkDSTPolicy(zone, channel); e != nil {
		return e
	}
	if e, err := v.checkZoneOverlap(zone); err != nil {
		return err
	} else if e != nil {
		return e
	}
	return nil
}

func checkTimeFormat(zone *models.Zone) *ValidationError {
	if zone.StartSeconds < 0 || zone.StartSeconds >= broadcast.DaySeconds {
		return NewValidationError(CodeTimeFormat,
			"zone start must lie within the broadcast day, before 24:00:00").
			WithDetail("start_seconds", zone.StartSeconds)
	}
	if zone.EndSeconds <= 0 || zone.EndSeconds > broadcast.DaySeconds {
		return NewValidationError(CodeTimeFormat,
			"zone end must lie within the broadcast day, up to 24:00:00").
			WithDetail("end_seconds", zone.EndSeconds)
	}
	if zone.StartSeconds%60 != 0 || zone.EndSeconds%60 != 0 {
		return NewValidationError(CodeTimeFormat,
			"zone boundaries must fall on whole minutes").
			WithDetail("start", broadcast.DayTime(zone.StartSeconds).String()).
			WithDetail("end", broadcast.DayTime(zone.EndSeconds).String())
	}
	return nil
}

func checkTimeOrder(zone *models.Zone) *ValidationError {
	if zone.StartSeconds == zone.EndSeconds {
		return NewValidationError(CodeTimeOrder,
			"zone start and end are equal; a wrap-around window uses a start later than its end").
			WithDetail("start", broadcast.DayTime(zone.StartSeconds).String())
	}
	return nil
}

func checkDivisibility(zone *models.Zone, grid broadcast.Grid) *ValidationError {
	w := zone.Window()
	if !grid.DurationDivisible(w) {
		return NewValidationError(CodeGridDivisibility,
			fmt.Sprintf("zone duration %d minutes is not a whole number of %d-minute blocks",
				w.DurationSeconds()/60, grid.BlockMinutes)).
			WithDetail("duration_minutes", w.DurationSeconds()/60).
			WithDetail("block_minutes", grid.BlockMinutes)
	}
	return nil
}

func checkAlignment(zone *models.Zone, grid broadcast.Grid) *ValidationError {
	w := zone.Window()
	for _, b := range []struct {
		name string
		t    broadcast.DayTime
	}{{"start", w.Start}, {"end", w.End}} {
		if !grid.Aligned(b.t) {
			return NewValidationError(CodeGridAlignment,
				fmt.Sprintf("zone %s %s does not sit on a block boundary", b.name, b.t)).
				WithDetail("boundary", b.name).
				WithDetail("value", b.t.String())
		}
	}
	return nil
}

func (v *Validator) checkPatternRef(zone *models.Zone) (*ValidationError, error) {
	if zone.PatternID == "" {
		return NewValidationError(CodePatternNotFound, "zone must reference a pattern"), nil
	}
	var pattern models.Pattern
	if err := v.db.First(&pattern, "id = ?", zone.PatternID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewValidationError(CodePatternNotFound, "referenced pattern does not exist").
				WithDetail("pattern_id", zone.PatternID), nil
		}
		return nil, fmt.Errorf("fetch pattern: %w", err)
	}
	if pattern.PlanID != zone.PlanID {
		return NewValidationError(CodePatternPlanMismatch,
			"referenced pattern belongs to a different plan").
			WithDetail("pattern_id", zone.PatternID).
			WithDetail("pattern_plan_id", pattern.PlanID), nil
	}
	return nil, nil
}

func (v *Validator) checkZoneName(zone *models.Zone) (*ValidationError, error) {
	if strings.TrimSpace(zone.Name) == "" {
		return NewValidationError(CodeNameRequired, "zone name is required"), nil
	}
	var n int64
	if err := v.db.Model(&models.Zone{}).
		Where("plan_id = ? AND name = ? AND id != ?", zone.PlanID, zone.Name, zone.ID).
		Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check zone name: %w", err)
	}
	if n > 0 {
		return NewValidationError(CodeNameConflict,
			fmt.Sprintf("a zone named %q already exists in this plan", zone.Name)).
			WithDetail("name", zone.Name), nil
	}
	return nil, nil
}

func checkDayFilter(zone *models.Zone) *ValidationError {
	seen := make(map[string]bool, len(zone.DayFilter))
	for _, d := range zone.DayFilter {
		if !broadcast.ValidDayToken(d) {
			return NewValidationError(CodeDayFilterInvalid,
				fmt.Sprintf("unknown day token %q: use mon..sun", d)).
				WithDetail("token", d)
		}
		if seen[d] {
			return NewValidationError(CodeDayFilterInvalid,
				fmt.Sprintf("day token %q appears twice", d)).
				WithDetail("token", d)
		}
		seen[d] = true
	}
	return nil
}

func checkEffectiveRange(zone *models.Zone) *ValidationError {
	if zone.EffectiveFrom != nil && zone.EffectiveTo != nil && zone.EffectiveFrom.After(*zone.EffectiveTo) {
		return NewValidationError(CodeEffectiveRangeInvalid,
			"zone effective-from date is after its effective-to date").
			WithDetail("effective_from", zone.EffectiveFrom.Format("2006-01-02")).
			WithDetail("effective_to", zone.EffectiveTo.Format("2006-01-02"))
	}
	return nil
}

// checkDSTPolicy validates the policy value and, when the effective
// range pins the zone to concrete dates, rejects a policy that is
// directionally wrong for every transition it will ever meet. Open
// ranges are only enforced per-day at resolution.
func checkDSTPolicy(zone *models.Zone, channel *models.Channel) *ValidationError {
	if zone.DSTPolicy == nil {
		return nil
	}
	policy := *zone.DSTPolicy
	if !models.ValidDSTPolicy(string(policy)) {
		return NewValidationError(CodeDSTPolicyInvalid,
			fmt.Sprintf("unknown DST policy %q: use reject, shrink_one_block or expand_one_block", policy)).
			WithDetail("policy", string(policy))
	}
	if policy == models.DSTReject {
		return nil
	}
	if zone.EffectiveFrom == nil || zone.EffectiveTo == nil {
		return nil
	}
	loc, err := channel.Location()
	if err != nil {
		return nil // surfaced by channel validation
	}
	grid := channel.Grid()
	from := broadcast.DateOf(*zone.EffectiveFrom)
	to := broadcast.DateOf(*zone.EffectiveTo)

	seen, wrong := 0, 0
	var firstWrong broadcast.Date
	for d, i := from, 0; !d.After(to) && i < dstScanCapDays; d, i = d.AddDays(1), i+1 {
		tr := grid.Transition(d, loc)
		if tr == nil || !zone.AppliesOn(d) || !tr.SpansNominal(zone.Window()) {
			continue
		}
		seen++
		if (tr.Short && policy == models.DSTExpandOneBlock) ||
			(!tr.Short && policy == models.DSTShrinkOneBlock) {
			if wrong == 0 {
				firstWrong = d
			}
			wrong++
		}
	}
	if seen > 0 && wrong == seen {
		return NewValidationError(CodeDSTPolicyIncompatible,
			fmt.Sprintf("policy %s cannot absorb any transition inside the effective range", policy)).
			WithDetail("policy", string(policy)).
			WithDetail("first_transition_date", firstWrong.String())
	}
	return nil
}

func (v *Validator) checkZoneOverlap(zone *models.Zone) (*ValidationError, error) {
	if !zone.Enabled {
		return nil, nil
	}
	var siblings []models.Zone
	if err := v.db.
		Where("plan_id = ? AND enabled = ? AND id != ?", zone.PlanID, true, zone.ID).
		Find(&siblings).Error; err != nil {
		return nil, fmt.Errorf("fetch sibling zones: %w", err)
	}
	w := zone.Window()
	for _, s := range siblings {
		if !w.Intersects(s.Window()) {
			continue
		}
		if !dayFiltersIntersect(zone.DayFilter, s.DayFilter) {
			continue
		}
		if !effectiveRangesIntersect(zone, &s) {
			continue
		}
		return NewValidationError(CodeZoneOverlap,
			fmt.Sprintf("zone overlaps %q (%s); adjust either window, day filter or effective dates so only one applies",
				s.Name, s.Window())).
			WithDetail("conflicting_zone_id", s.ID).
			WithDetail("conflicting_zone_name", s.Name), nil
	}
	return nil, nil
}

// dayFiltersIntersect treats nil as every day.
func dayFiltersIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := make(map[string]bool, len(a))
	for _, d := range a {
		set[d] = true
	}
	for _, d := range b {
		if set[d] {
			return true
		}
	}
	return false
}

// effectiveRangesIntersect treats nil bounds as open ends.
func effectiveRangesIntersect(a, b *models.Zone) bool {
	if a.EffectiveFrom != nil && b.EffectiveTo != nil && a.EffectiveFrom.After(*b.EffectiveTo) {
		return false
	}
	if b.EffectiveFrom != nil && a.EffectiveTo != nil && b.EffectiveFrom.After(*a.EffectiveTo) {
		return false
	}
	return true
}

// ValidatePattern checks the pattern's plan reference and name, and
// reports the empty-pattern warning. Emptiness is legal: it only turns
// into silence on air, which the warning makes visible early.
func (v *Validator) ValidatePattern(p *models.Pattern) ([]Warning, error) {
	var plan models.SchedulePlan
	if err := v.db.First(&plan, "id = ?", p.PlanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError(CodePlanNotFound, "pattern's plan does not exist").
				WithDetail("plan_id", p.PlanID)
		}
		return nil, fmt.Errorf("fetch plan: %w", err)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		var n int64
		if err := v.db.Model(&models.Pattern{}).
			Where("plan_id = ? AND name = ? AND id != ?", p.PlanID, *p.Name, p.ID).
			Count(&n).Error; err != nil {
			return nil, fmt.Errorf("check pattern name: %w", err)
		}
		if n > 0 {
			return nil, NewValidationError(CodeNameConflict,
				fmt.Sprintf("a pattern named %q already exists in this plan", *p.Name)).
				WithDetail("name", *p.Name)
		}
	}
	var programs int64
	if err := v.db.Model(&models.Program{}).Where("pattern_id = ?", p.ID).Count(&programs).Error; err != nil {
		return nil, fmt.Errorf("count programs: %w", err)
	}
	var warnings []Warning
	if programs == 0 {
		warnings = append(warnings, Warning{
			Code:    WarnPatternEmpty,
			Message: "pattern has no programs; zones using it resolve to silence",
		})
	}
	return warnings, nil
}

// ValidateProgram checks position, variant shape and catalog references.
func (v *Validator) ValidateProgram(p *models.Program) error {
	var n int64
	if err := v.db.Model(&models.Pattern{}).Where("id = ?", p.PatternID).Count(&n).Error; err != nil {
		return fmt.Errorf("check pattern: %w", err)
	}
	if n == 0 {
		return NewValidationError(CodePatternNotFound, "program's pattern does not exist").
			WithDetail("pattern_id", p.PatternID)
	}
	if p.Position < 0 {
		return NewValidationError(CodeOrderNegative,
			fmt.Sprintf("program position %d must not be negative", p.Position)).
			WithDetail("position", p.Position)
	}
	switch p.Kind {
	case models.ProgramSeries:
		if p.SeriesID == nil || *p.SeriesID == "" || p.Rotation == nil {
			return NewValidationError(CodeProgramConfigInvalid,
				"series program needs a series and a rotation policy")
		}
		switch *p.Rotation {
		case models.RotationSequential, models.RotationRandom, models.RotationLeastRecentlyUsed:
		default:
			return NewValidationError(CodeProgramConfigInvalid,
				fmt.Sprintf("unknown rotation policy %q", *p.Rotation)).
				WithDetail("rotation", string(*p.Rotation))
		}
		if p.AssetID != nil || p.Rule != nil || p.Virtual != nil {
			return NewValidationError(CodeProgramConfigInvalid,
				"series program must not carry asset, rule or virtual configuration")
		}
		if err := v.db.Model(&models.Series{}).Where("id = ?", *p.SeriesID).Count(&n).Error; err != nil {
			return fmt.Errorf("check series: %w", err)
		}
		if n == 0 {
			return NewValidationError(CodeSeriesNotFound, "referenced series does not exist").
				WithDetail("series_id", *p.SeriesID)
		}
	case models.ProgramAsset:
		if p.AssetID == nil || *p.AssetID == "" {
			return NewValidationError(CodeProgramConfigInvalid, "asset program needs an asset")
		}
		if p.SeriesID != nil || p.Rotation != nil || p.Rule != nil || p.Virtual != nil {
			return NewValidationError(CodeProgramConfigInvalid,
				"asset program must not carry series, rule or virtual configuration")
		}
		if err := v.db.Model(&models.CatalogItem{}).Where("id = ?", *p.AssetID).Count(&n).Error; err != nil {
			return fmt.Errorf("check asset: %w", err)
		}
		if n == 0 {
			return NewValidationError(CodeItemNotFound, "referenced asset does not exist").
				WithDetail("item_id", *p.AssetID)
		}
	case models.ProgramRule:
		if p.Rule == nil {
			return NewValidationError(CodeProgramConfigInvalid, "rule program needs a selector")
		}
		if p.SeriesID != nil || p.Rotation != nil || p.AssetID != nil || p.Virtual != nil {
			return NewValidationError(CodeProgramConfigInvalid,
				"rule program must not carry series, asset or virtual configuration")
		}
		if p.Rule.MinYear != 0 && p.Rule.MaxYear != 0 && p.Rule.MinYear > p.Rule.MaxYear {
			return NewValidationError(CodeProgramConfigInvalid,
				"rule selector min year is greater than its max year")
		}
		if p.Rule.MaxDurationMS < 0 {
			return NewValidationError(CodeProgramConfigInvalid,
				"rule selector max duration must not be negative")
		}
	case models.ProgramVirtual:
		if p.Virtual == nil || len(p.Virtual.ItemIDs) == 0 {
			return NewValidationError(CodeProgramConfigInvalid,
				"virtual program needs at least one member item")
		}
		if p.SeriesID != nil || p.Rotation != nil || p.AssetID != nil || p.Rule != nil {
			return NewValidationError(CodeProgramConfigInvalid,
				"virtual program must not carry series, asset or rule configuration")
		}
		var count int64
		if err := v.db.Model(&models.CatalogItem{}).
			Where("id IN ?", p.Virtual.ItemIDs).Count(&count).Error; err != nil {
			return fmt.Errorf("check virtual members: %w", err)
		}
		if int(count) != len(uniqueStrings(p.Virtual.ItemIDs)) {
			return NewValidationError(CodeItemNotFound,
				"one or more virtual member items do not exist")
		}
	default:
		return NewValidationError(CodeProgramConfigInvalid,
			fmt.Sprintf("unknown program kind %q", p.Kind)).
			WithDetail("kind", string(p.Kind))
	}
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// CoverageGap reports the first uncovered span of the broadcast day on
// date, given the plan's zones, or nil when the union of active windows
// covers the whole day.
func CoverageGap(zones []models.Zone, date broadcast.Date) *ValidationError {
	type span struct{ start, end int }
	var spans []span
	for i := range zones {
		z := &zones[i]
		if !ZoneActiveOn(z, date) {
			continue
		}
		for _, seg := range z.Window().Segments() {
			spans = append(spans, span{int(seg.Start), int(seg.End)})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	cursor := 0
	for _, s := range spans {
		if s.start > cursor {
			break
		}
		if s.end > cursor {
			cursor = s.end
		}
	}
	if cursor >= broadcast.DaySeconds {
		return nil
	}
	gapEnd := broadcast.DaySeconds
	for _, s := range spans {
		if s.start > cursor {
			gapEnd = s.start
			break
		}
	}
	return NewValidationError(CodeCoverageGap,
		fmt.Sprintf("plan leaves %s uncovered between %s and %s",
			date, broadcast.DayTime(cursor), broadcast.DayTime(gapEnd))).
		WithDetail("date", date.String()).
		WithDetail("gap_start", broadcast.DayTime(cursor).String()).
		WithDetail("gap_end", broadcast.DayTime(gapEnd).String())
}

// ZoneActiveOn reports whether the zone participates on the date,
// checking enabled state, the effective range, and the day filter in
// activation order.
func ZoneActiveOn(z *models.Zone, date broadcast.Date) bool {
	if !z.Enabled {
		return false
	}
	if !zoneEffectiveOn(z, date) {
		return false
	}
	return z.AppliesOn(date)
}

func zoneEffectiveOn(z *models.Zone, date broadcast.Date) bool {
	if z.EffectiveFrom != nil && date.Before(broadcast.DateOf(*z.EffectiveFrom)) {
		return false
	}
	if z.EffectiveTo != nil && date.After(broadcast.DateOf(*z.EffectiveTo)) {
		return false
	}
	return true
}

// CheckPlanCoverage verifies full-day coverage on the next horizonDays
// broadcast dates the plan applies to. It runs inside every mutation
// that could open a gap, so an accepted write never strands resolution.
func (v *Validator) CheckPlanCoverage(plan *models.SchedulePlan, channel *models.Channel, horizonDays int) error {
	if !plan.Active || plan.Archived {
		return nil
	}
	loc, err := channel.Location()
	if err != nil {
		return fmt.Errorf("resolve channel timezone: %w", err)
	}
	var zones []models.Zone
	if err := v.db.Where("plan_id = ?", plan.ID).Find(&zones).Error; err != nil {
		return fmt.Errorf("fetch plan zones: %w", err)
	}
	grid := channel.Grid()
	date := grid.BroadcastDayOf(v.clock.Now(), loc)
	for i := 0; i < horizonDays; i++ {
		d := date.AddDays(i)
		applies, err := PlanAppliesOn(plan, d)
		if err != nil {
			return err
		}
		if !applies {
			continue
		}
		if gap := CoverageGap(zones, d); gap != nil {
			return gap
		}
	}
	return nil
}

// ValidatePlanGraph re-checks a whole plan for the preview surface,
// collecting every finding instead of stopping at the first.
func (v *Validator) ValidatePlanGraph(plan *models.SchedulePlan, channel *models.Channel, horizonDays int) (*Result, error) {
	result := &Result{Valid: true}

	if err := v.ValidatePlan(plan); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		result.AddError(ve)
	}

	var zones []models.Zone
	if err := v.db.Where("plan_id = ?", plan.ID).Order("created_at, id").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("fetch plan zones: %w", err)
	}
	for i := range zones {
		if err := v.ValidateZone(&zones[i], plan, channel); err != nil {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				return nil, err
			}
			ve.WithDetail("zone_id", zones[i].ID).WithDetail("zone_name", zones[i].Name)
			result.AddError(ve)
		}
	}

	var patterns []models.Pattern
	if err := v.db.Where("plan_id = ?", plan.ID).Order("created_at, id").Find(&patterns).Error; err != nil {
		return nil, fmt.Errorf("fetch plan patterns: %w", err)
	}
	for i := range patterns {
		warnings, err := v.ValidatePattern(&patterns[i])
		if err != nil {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				return nil, err
			}
			result.AddError(ve)
			continue
		}
		result.Warnings = append(result.Warnings, warnings...)

		var programs []models.Program
		if err := v.db.Where("pattern_id = ?", patterns[i].ID).
			Order("position, created_at, id").Find(&programs).Error; err != nil {
			return nil, fmt.Errorf("fetch programs: %w", err)
		}
		for j := range programs {
			if err := v.ValidateProgram(&programs[j]); err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					return nil, err
				}
				ve.WithDetail("program_id", programs[j].ID)
				result.AddError(ve)
			}
		}
	}

	if err := v.CheckPlanCoverage(plan, channel, horizonDays); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		result.AddError(ve)
	}

	v.logger.Debug().
		Str("plan_id", plan.ID).
		Bool("valid", result.Valid).
		Int("errors", len(result.Errors)).
		Int("warnings", len(result.Warnings)).
		Msg("plan graph validated")
	return result, nil
}
