package priority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Channel{},
		&models.SchedulePlan{},
		&models.Zone{},
		&models.Pattern{},
		&models.Program{},
		&models.ScheduleDay{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := timeauthority.NewFixedClock(time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC))
	validator := scheduling.NewValidator(db, clock, zerolog.Nop())
	return NewService(db, validator, events.NewBus(), zerolog.Nop()), db
}

func seedChannel(t *testing.T, db *gorm.DB) *models.Channel {
	t.Helper()
	ch := &models.Channel{
		ID:               uuid.NewString(),
		Name:             "Channel " + uuid.NewString(),
		Slug:             "ch-" + uuid.NewString(),
		Timezone:         "UTC",
		GridBlockMinutes: 30,
		GridOffsets:      []int{0, 30},
		DayStartMinutes:  6 * 60,
		Active:           true,
	}
	if err := db.Create(ch).Error; err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	return ch
}

func seedPlan(t *testing.T, db *gorm.DB, p *models.SchedulePlan) *models.SchedulePlan {
	t.Helper()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return p
}

func bd(year int, month time.Month, day int) broadcast.Date {
	return broadcast.Date{Year: year, Month: month, Day: day}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected validation error %s, got nil", code)
	}
	var ve *scheduling.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Code != code {
		t.Fatalf("code = %s, want %s", ve.Code, code)
	}
}

func TestActivePlanHolidayOverride(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	base := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Base", Priority: 10, Active: true,
	})
	holiday := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Holiday Special", Priority: 30, Active: true,
		StartDate: datePtr(2026, time.December, 25),
		EndDate:   datePtr(2026, time.December, 25),
	})

	got, err := svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.December, 25))
	if err != nil {
		t.Fatalf("resolve dec 25: %v", err)
	}
	if got.ID != holiday.ID {
		t.Fatalf("dec 25 plan = %s, want holiday %s", got.Name, holiday.Name)
	}

	got, err = svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.December, 26))
	if err != nil {
		t.Fatalf("resolve dec 26: %v", err)
	}
	if got.ID != base.ID {
		t.Fatalf("dec 26 plan = %s, want base %s", got.Name, base.Name)
	}
}

func TestActivePlanTieBreak(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	older := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Older", Priority: 10, Active: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Newer", Priority: 10, Active: true,
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	got, err := svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.August, 24))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("tie went to %s, want older plan", got.Name)
	}

	// Same priority and creation time: the smaller ID wins, every run.
	ch2 := seedChannel(t, db)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedPlan(t, db, &models.SchedulePlan{
		ID: "22222222-0000-0000-0000-000000000000", ChannelID: ch2.ID,
		Name: "Second", Priority: 5, Active: true, CreatedAt: created,
	})
	first := seedPlan(t, db, &models.SchedulePlan{
		ID: "11111111-0000-0000-0000-000000000000", ChannelID: ch2.ID,
		Name: "First", Priority: 5, Active: true, CreatedAt: created,
	})

	for i := 0; i < 3; i++ {
		got, err := svc.Resolver().ActivePlan(ctx, ch2.ID, bd(2026, time.August, 24))
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got.ID != first.ID {
			t.Fatalf("tie went to %s, want lexically smaller ID", got.ID)
		}
	}
}

func TestActivePlanFiltersInactiveAndArchived(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Disabled", Priority: 50, Active: false,
	})
	seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Retired", Priority: 40, Active: true, Archived: true,
	})

	_, err := svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.August, 24))
	if !IsNoActivePlan(err) {
		t.Fatalf("expected no-active-plan failure, got %v", err)
	}

	live := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Live", Priority: 1, Active: true,
	})
	got, err := svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.August, 24))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != live.ID {
		t.Fatalf("plan = %s, want the only live plan", got.Name)
	}
}

func TestActivePlanRecurrence(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	base := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Weekday", Priority: 10, Active: true,
	})
	weekend := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Weekend", Priority: 20, Active: true,
		Recurrence: "FREQ=WEEKLY;BYDAY=SA,SU",
	})

	// 2026-08-29 is a Saturday, 2026-08-24 a Monday.
	got, err := svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.August, 29))
	if err != nil {
		t.Fatalf("resolve saturday: %v", err)
	}
	if got.ID != weekend.ID {
		t.Fatalf("saturday plan = %s, want weekend", got.Name)
	}

	got, err = svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.August, 24))
	if err != nil {
		t.Fatalf("resolve monday: %v", err)
	}
	if got.ID != base.ID {
		t.Fatalf("monday plan = %s, want weekday", got.Name)
	}
}

func TestTimeline(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	base := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Base", Priority: 10, Active: true,
	})
	holiday := seedPlan(t, db, &models.SchedulePlan{
		ChannelID: ch.ID, Name: "Holiday", Priority: 30, Active: true,
		StartDate: datePtr(2026, time.December, 25),
		EndDate:   datePtr(2026, time.December, 25),
	})

	entries, err := svc.Resolver().Timeline(ctx, ch.ID, bd(2026, time.December, 24), 3)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Plan == nil || entries[0].Plan.ID != base.ID {
		t.Fatalf("dec 24 = %+v, want base", entries[0].Plan)
	}
	if entries[1].Plan == nil || entries[1].Plan.ID != holiday.ID {
		t.Fatalf("dec 25 = %+v, want holiday", entries[1].Plan)
	}
	if len(entries[1].Also) != 1 || entries[1].Also[0].ID != base.ID {
		t.Fatalf("dec 25 also-eligible = %+v, want base", entries[1].Also)
	}
	if entries[2].Plan == nil || entries[2].Plan.ID != base.ID {
		t.Fatalf("dec 26 = %+v, want base", entries[2].Plan)
	}
}

func TestCreateSeedsDefaultZone(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	plan, err := svc.Create(ctx, CreateRequest{
		ChannelID: ch.ID, Name: "Main", Priority: 10, Active: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var zones []models.Zone
	if err := db.Where("plan_id = ?", plan.ID).Find(&zones).Error; err != nil {
		t.Fatalf("load zones: %v", err)
	}
	if len(zones) != 1 {
		t.Fatalf("zones = %d, want 1 seeded default", len(zones))
	}
	z := zones[0]
	if z.StartSeconds != 0 || z.EndSeconds != broadcast.DaySeconds || !z.Enabled {
		t.Fatalf("default zone window = %d..%d enabled=%v", z.StartSeconds, z.EndSeconds, z.Enabled)
	}

	var pattern models.Pattern
	if err := db.First(&pattern, "id = ?", z.PatternID).Error; err != nil {
		t.Fatalf("load seeded pattern: %v", err)
	}
	if pattern.PlanID != plan.ID {
		t.Fatalf("seeded pattern belongs to %s, want %s", pattern.PlanID, plan.ID)
	}

	// A freshly seeded plan satisfies whole-day coverage.
	if err := svc.validator.CheckPlanCoverage(plan, ch, 3); err != nil {
		t.Fatalf("coverage after seeding: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	_, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "  "})
	wantCode(t, err, scheduling.CodeNameRequired)

	_, err = svc.Create(ctx, CreateRequest{ChannelID: uuid.NewString(), Name: "Main"})
	var nf *scheduling.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for ghost channel, got %v", err)
	}

	if _, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main"}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	_, err = svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main"})
	wantCode(t, err, scheduling.CodeNameConflict)
}

func TestArchiveFreesName(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	first, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main", Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Archive(ctx, first.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// The successor may take over the retired plan's name.
	second, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main", Active: true})
	if err != nil {
		t.Fatalf("create successor: %v", err)
	}

	got, err := svc.Resolver().ActivePlan(ctx, ch.ID, bd(2026, time.August, 24))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("resolved %s, want successor; archived plans must not resolve", got.ID)
	}
}

func TestDeleteGuards(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	plan, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main", Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	wantCode(t, svc.Delete(ctx, plan.ID), scheduling.CodePlanNotArchived)

	if _, err := svc.Archive(ctx, plan.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}

	day := &models.ScheduleDay{
		ID: uuid.NewString(), ChannelID: ch.ID,
		BroadcastDate: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		State:         models.DayResolved, PlanID: &plan.ID,
	}
	if err := db.Create(day).Error; err != nil {
		t.Fatalf("seed day: %v", err)
	}
	wantCode(t, svc.Delete(ctx, plan.ID), scheduling.CodePlanInUse)

	if err := db.Delete(&models.ScheduleDay{}, "id = ?", day.ID).Error; err != nil {
		t.Fatalf("clear day: %v", err)
	}
	if err := svc.Delete(ctx, plan.ID); err != nil {
		t.Fatalf("delete archived plan: %v", err)
	}

	var zones int64
	if err := db.Model(&models.Zone{}).Where("plan_id = ?", plan.ID).Count(&zones).Error; err != nil {
		t.Fatalf("count zones: %v", err)
	}
	if zones != 0 {
		t.Fatalf("deleted plan left %d zones behind", zones)
	}
}

func TestUpdateBumpsVersion(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	plan, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main", Priority: 10, Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Other", Priority: 5, Active: true}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	plan.Priority = 20
	updated, err := svc.Update(ctx, plan)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}

	updated.Name = "Other"
	_, err = svc.Update(ctx, updated)
	wantCode(t, err, scheduling.CodeNameConflict)
}

func TestSetActiveRequiresCoverage(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	plan, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main", Priority: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Shrinking the seeded zone is legal while the plan is inactive.
	if err := db.Model(&models.Zone{}).Where("plan_id = ?", plan.ID).
		Update("end_seconds", 12*3600).Error; err != nil {
		t.Fatalf("shrink zone: %v", err)
	}

	_, err = svc.SetActive(ctx, plan.ID, true)
	wantCode(t, err, scheduling.CodeCoverageGap)

	var stored models.SchedulePlan
	if err := db.First(&stored, "id = ?", plan.ID).Error; err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	if stored.Active || stored.Version != plan.Version {
		t.Fatalf("plan persisted active=%v v%d, want activation rolled back", stored.Active, stored.Version)
	}

	// Restoring full coverage unblocks activation.
	if err := db.Model(&models.Zone{}).Where("plan_id = ?", plan.ID).
		Update("end_seconds", broadcast.DaySeconds).Error; err != nil {
		t.Fatalf("restore zone: %v", err)
	}
	activated, err := svc.SetActive(ctx, plan.ID, true)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !activated.Active {
		t.Fatalf("plan should be active after coverage is restored")
	}
}

func TestUpdateKeepsCoverageOfActivePlan(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	ch := seedChannel(t, db)

	plan, err := svc.Create(ctx, CreateRequest{ChannelID: ch.ID, Name: "Main", Priority: 10, Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Pin the zone to a window that ends before the plan does; the plan
	// update would leave later dates uncovered.
	if err := db.Model(&models.Zone{}).Where("plan_id = ?", plan.ID).
		Update("effective_to", time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)).Error; err != nil {
		t.Fatalf("pin zone: %v", err)
	}

	plan.Priority = 20
	_, err = svc.Update(ctx, plan)
	wantCode(t, err, scheduling.CodeCoverageGap)

	var stored models.SchedulePlan
	if err := db.First(&stored, "id = ?", plan.ID).Error; err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	if stored.Priority != 10 {
		t.Fatalf("priority persisted as %d, want update rolled back", stored.Priority)
	}
}
