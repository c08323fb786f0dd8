/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rotation persists per-channel rotation cursors and play
// memory. State is keyed by (channel, scope): two channels airing the
// same series rotate independently, and re-resolving an already
// resolved day must not advance anything twice.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/models"
)

// Store reads and writes rotation state.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a rotation store.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "rotation").Logger(),
	}
}

// WithDB returns a copy bound to tx so rotation advances commit or roll
// back together with the schedule day they belong to.
func (s *Store) WithDB(tx *gorm.DB) *Store {
	c := *s
	c.db = tx
	return &c
}

// State fetches the rotation row for (channel, scope), creating it with
// a derived seed on first use. The seed makes random rotation
// reproducible per channel and series.
func (s *Store) State(ctx context.Context, channelID, scopeID string) (*models.RotationState, error) {
	var state models.RotationState
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND scope_id = ?", channelID, scopeID).
		First(&state).Error
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("fetch rotation state: %w", err)
	}

	state = models.RotationState{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		ScopeID:   scopeID,
		Cursor:    0,
		Seed:      deriveSeed(channelID, scopeID),
	}
	if err := s.db.WithContext(ctx).Create(&state).Error; err != nil {
		return nil, fmt.Errorf("create rotation state: %w", err)
	}
	return &state, nil
}

// Advance moves the cursor for (channel, scope).
func (s *Store) Advance(ctx context.Context, channelID, scopeID string, cursor int) error {
	res := s.db.WithContext(ctx).Model(&models.RotationState{}).
		Where("channel_id = ? AND scope_id = ?", channelID, scopeID).
		Update("cursor", cursor)
	if res.Error != nil {
		return fmt.Errorf("advance rotation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("advance rotation: state for scope %s missing", scopeID)
	}
	return nil
}

// RecordPlay remembers a materialized pick for least-recently-used
// rotation.
func (s *Store) RecordPlay(ctx context.Context, channelID, scopeID, itemID string, at time.Time) error {
	play := models.RotationPlay{
		ID:            uuid.NewString(),
		ChannelID:     channelID,
		ScopeID:       scopeID,
		CatalogItemID: itemID,
		PlayedAt:      at,
	}
	if err := s.db.WithContext(ctx).Create(&play).Error; err != nil {
		return fmt.Errorf("record rotation play: %w", err)
	}
	return nil
}

// LastPlayed returns the most recent play instant per item within a
// scope. Items never played are absent.
func (s *Store) LastPlayed(ctx context.Context, channelID, scopeID string) (map[string]time.Time, error) {
	var plays []models.RotationPlay
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND scope_id = ?", channelID, scopeID).
		Order("played_at").
		Find(&plays).Error
	if err != nil {
		return nil, fmt.Errorf("fetch rotation plays: %w", err)
	}
	out := make(map[string]time.Time, len(plays))
	for _, p := range plays {
		if existing, ok := out[p.CatalogItemID]; !ok || p.PlayedAt.After(existing) {
			out[p.CatalogItemID] = p.PlayedAt
		}
	}
	return out, nil
}

// Prune drops play memory older than cutoff. LRU only needs enough
// history to order the current catalog, not forever.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("played_at < ?", cutoff).
		Delete(&models.RotationPlay{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune rotation plays: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Debug().Int64("pruned", res.RowsAffected).Msg("rotation plays pruned")
	}
	return res.RowsAffected, nil
}

// deriveSeed builds a stable seed from the scope identity so rotation
// order survives restarts without storing anything extra.
func deriveSeed(channelID, scopeID string) int64 {
	var h int64 = 1469598103934665603
	for _, b := range []byte(channelID + ":" + scopeID) {
		h ^= int64(b)
		h *= 1099511628211
	}
	if h < 0 {
		h = -h
	}
	return h
}
