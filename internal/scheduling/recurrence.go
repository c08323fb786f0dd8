/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/models"
)

// recurrenceEpoch anchors rules on plans without a start date. Interval
// rules (every N days) should set a start date to pick their own phase;
// day-of-week rules do not depend on the anchor at all.
var recurrenceEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ValidateRecurrence checks that s is an empty string (daily) or a
// parseable RRULE.
func ValidateRecurrence(s string) error {
	if s == "" {
		return nil
	}
	if _, err := rrule.StrToRRule(s); err != nil {
		return NewValidationError(CodeRecurrenceInvalid,
			fmt.Sprintf("invalid recurrence rule: %v", err)).
			WithDetail("recurrence", s)
	}
	return nil
}

// PlanAppliesOn reports whether the plan governs the given broadcast
// date: inside its date bounds and matched by its recurrence rule.
// Recurrence is evaluated at day granularity; sub-day rule components
// are ignored.
func PlanAppliesOn(plan *models.SchedulePlan, date broadcast.Date) (bool, error) {
	if plan.StartDate != nil && date.Before(broadcast.DateOf(*plan.StartDate)) {
		return false, nil
	}
	if plan.EndDate != nil && date.After(broadcast.DateOf(*plan.EndDate)) {
		return false, nil
	}
	if plan.Recurrence == "" {
		return true, nil
	}
	rr, err := rrule.StrToRRule(plan.Recurrence)
	if err != nil {
		return false, NewValidationError(CodeRecurrenceInvalid,
			fmt.Sprintf("invalid recurrence rule: %v", err)).
			WithDetail("recurrence", plan.Recurrence)
	}
	anchor := recurrenceEpoch
	if plan.StartDate != nil {
		s := broadcast.DateOf(*plan.StartDate)
		anchor = time.Date(s.Year, s.Month, s.Day, 0, 0, 0, 0, time.UTC)
	}
	rr.DTStart(anchor)

	dayStart := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Second)
	return len(rr.Between(dayStart, dayEnd, true)) > 0, nil
}
