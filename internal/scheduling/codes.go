/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

// Validation codes. These are part of the external contract: clients
// and operators match on them, so they never change meaning.
const (
	CodeTimeFormat            = "time_format"
	CodeTimeOrder             = "time_order"
	CodeGridDivisibility      = "grid_divisibility"
	CodeGridAlignment         = "grid_alignment"
	CodePatternNotFound       = "pattern_not_found"
	CodePatternPlanMismatch   = "pattern_plan_mismatch"
	CodeNameRequired          = "name_required"
	CodeNameConflict          = "name_conflict"
	CodeDayFilterInvalid      = "day_filter_invalid"
	CodeEffectiveRangeInvalid = "effective_range_invalid"
	CodeDSTPolicyInvalid      = "dst_policy_invalid"
	CodeDSTPolicyIncompatible = "dst_policy_incompatible"
	CodeZoneOverlap           = "zone_overlap"
	CodeCoverageGap           = "coverage_gap"
	CodePlanNotFound          = "plan_not_found"
	CodeSeriesNotFound        = "series_not_found"
	CodeItemNotFound          = "item_not_found"
	CodeRecurrenceInvalid     = "recurrence_invalid"
	CodeOrderNegative         = "order_negative"
	CodeProgramConfigInvalid  = "program_config_invalid"
	CodeGridInvalid           = "grid_invalid"
	CodeTimezoneInvalid       = "timezone_invalid"
	CodeTimestampNaive        = "timestamp_naive"
	CodeDurationInvalid       = "duration_invalid"
	CodePlanNotArchived       = "plan_not_archived"
	CodePlanInUse             = "plan_in_use"
	CodeReasonRequired        = "reason_required"
)

// Warning codes.
const (
	WarnPatternEmpty = "pattern_empty"
)

// Scheduling failure codes, recorded on failed schedule days.
const (
	FailNoActivePlan      = "no_active_plan"
	FailNoEligibleContent = "no_eligible_content"
	FailCoverageGap       = "coverage_gap"
	FailDSTIncompatible   = "dst_policy_incompatible"
)
