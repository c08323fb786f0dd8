/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookTarget stores an outbound webhook endpoint for a channel.
// Events holds a comma-separated subset of the scheduling event types
// (day.resolved, day.failed, day.overridden, guide.published,
// playlog.extended); empty means all of them.
type WebhookTarget struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID string `gorm:"type:uuid;index;not null" json:"channel_id"`
	URL       string `gorm:"type:varchar(512);not null" json:"url"`
	Events    string `gorm:"type:varchar(255)" json:"events"`
	Secret    string `gorm:"type:varchar(255)" json:"-"`
	Active    bool   `gorm:"not null;default:true" json:"active"`

	Channel *Channel `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (WebhookTarget) TableName() string {
	return "webhook_targets"
}

// NewWebhookTarget creates a webhook target with a random signing
// secret.
func NewWebhookTarget(channelID, url, events string) *WebhookTarget {
	return &WebhookTarget{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		URL:       url,
		Events:    events,
		Secret:    uuid.NewString(),
		Active:    true,
	}
}

// WebhookLog records webhook delivery attempts.
type WebhookLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	TargetID   string    `gorm:"type:uuid;index;not null" json:"target_id"`
	Event      string    `gorm:"type:varchar(64);not null" json:"event"`
	StatusCode int       `json:"status_code"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	Duration   int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (WebhookLog) TableName() string {
	return "webhook_logs"
}
