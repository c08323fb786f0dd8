/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for all sensitive operations.
const (
	AuditActionChannelCreate   AuditAction = "channel.create"
	AuditActionChannelUpdate   AuditAction = "channel.update"
	AuditActionPlanCreate      AuditAction = "plan.create"
	AuditActionPlanUpdate      AuditAction = "plan.update"
	AuditActionPlanArchive     AuditAction = "plan.archive"
	AuditActionZoneCreate      AuditAction = "zone.create"
	AuditActionZoneUpdate      AuditAction = "zone.update"
	AuditActionZoneDelete      AuditAction = "zone.delete"
	AuditActionPatternCreate   AuditAction = "pattern.create"
	AuditActionPatternUpdate   AuditAction = "pattern.update"
	AuditActionPatternDelete   AuditAction = "pattern.delete"
	AuditActionProgramCreate   AuditAction = "program.create"
	AuditActionProgramUpdate   AuditAction = "program.update"
	AuditActionProgramDelete   AuditAction = "program.delete"
	AuditActionDayResolved     AuditAction = "day.resolved"
	AuditActionDayFailed       AuditAction = "day.failed"
	AuditActionOverrideCreate  AuditAction = "override.create"
	AuditActionPlaylogExtended AuditAction = "playlog.extended"
	AuditActionGuideExported   AuditAction = "guide.exported"
	AuditActionAPIKeyCreate    AuditAction = "apikey.create"
	AuditActionAPIKeyRevoke    AuditAction = "apikey.revoke"
	AuditActionImport          AuditAction = "import.run"
)

// AuditLog records sensitive operations for accountability.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	UserID       *string        `gorm:"type:uuid;index:idx_audit_user"` // NULL for system actions
	UserEmail    string         `gorm:"type:varchar(255)"`
	ChannelID    *string        `gorm:"type:uuid;index:idx_audit_channel"`
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"`
	ResourceID   string         `gorm:"type:uuid"`
	Details      map[string]any `gorm:"type:jsonb;serializer:json"`
	IPAddress    string         `gorm:"type:varchar(45)"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
