/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Platform-level models
		&models.User{},
		&models.APIKey{},
		&models.AuditLog{},

		// Channel programming
		&models.Channel{},
		&models.SchedulePlan{},
		&models.Zone{},
		&models.Pattern{},
		&models.Program{},

		// Catalog reference (read-only to the engine, written by importers)
		&models.Series{},
		&models.CatalogItem{},

		// Resolution artifacts
		&models.ScheduleDay{},
		&models.ScheduleSegment{},
		&models.PlaylogEvent{},
		&models.ScheduleOverride{},

		// Rotation memory
		&models.RotationState{},
		&models.RotationPlay{},

		// Outbound webhooks
		&models.WebhookTarget{},
		&models.WebhookLog{},
	); err != nil {
		return err
	}

	return applyPostgresPlaylogOverlapGuard(database)
}

// applyPostgresPlaylogOverlapGuard installs a belt-and-braces trigger:
// the emitter already writes gap-free, non-overlapping events inside one
// transaction, but nothing else may ever sneak an overlapping row past
// it on postgres deployments.
func applyPostgresPlaylogOverlapGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_channel_playlog_overlap()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.ends_at <= NEW.starts_at THEN
    RAISE EXCEPTION 'playlog event end must be after start'
      USING ERRCODE = '23514';
  END IF;

  IF EXISTS (
    SELECT 1
    FROM playlog_events pe
    WHERE pe.channel_id = NEW.channel_id
      AND pe.id <> NEW.id
      AND tstzrange(pe.starts_at, pe.ends_at, '[)') && tstzrange(NEW.starts_at, NEW.ends_at, '[)')
  ) THEN
    RAISE EXCEPTION 'overlapping playlog events are not allowed for channel %', NEW.channel_id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_channel_playlog_overlap ON playlog_events;

CREATE TRIGGER trg_prevent_channel_playlog_overlap
BEFORE INSERT OR UPDATE OF channel_id, starts_at, ends_at
ON playlog_events
FOR EACH ROW
EXECUTE FUNCTION prevent_channel_playlog_overlap();
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres playlog overlap guard: %w", err)
	}

	return nil
}
