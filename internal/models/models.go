/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/saga_tv/internal/broadcast"
)

// RoleName enumerates the RBAC roles.
type RoleName string

const (
	RoleAdmin  RoleName = "admin"
	RoleEditor RoleName = "editor"
	RoleViewer RoleName = "viewer"
)

// User represents an operator account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Role      RoleName `gorm:"type:varchar(16)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel is one linear channel with its broadcast grid configuration.
// The grid is immutable per effective period; changing it sets a new
// effective date and triggers downstream rebuilds.
type Channel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string `gorm:"uniqueIndex"`
	Slug        string `gorm:"uniqueIndex"`
	Description string `gorm:"type:text"`
	Timezone    string `gorm:"type:varchar(64)"` // IANA name; empty means UTC

	// Grid configuration, see broadcast.Grid.
	GridBlockMinutes  int
	GridOffsets       []int `gorm:"serializer:json"`
	DayStartMinutes   int
	GridEffectiveFrom *time.Time `gorm:"type:date"`

	// SlateItemID names the catalog item that fills avail gaps when the
	// playlog is emitted. NULL leaves avails unemittable.
	SlateItemID *string `gorm:"type:uuid"`

	Active    bool `gorm:"index"`
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Grid returns the channel's alignment lattice.
func (c *Channel) Grid() broadcast.Grid {
	return broadcast.Grid{
		BlockMinutes:    c.GridBlockMinutes,
		Offsets:         c.GridOffsets,
		DayStartMinutes: c.DayStartMinutes,
	}
}

// Location resolves the channel's timezone, falling back to UTC when the
// channel does not declare one.
func (c *Channel) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}
