/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

type channelRequest struct {
	Name              string  `json:"name"`
	Slug              string  `json:"slug"`
	Description       string  `json:"description"`
	Timezone          string  `json:"timezone"`
	GridBlockMinutes  int     `json:"grid_block_minutes"`
	GridOffsets       []int   `json:"grid_offsets"`
	DayStartMinutes   int     `json:"day_start_minutes"`
	GridEffectiveFrom *string `json:"grid_effective_from,omitempty"` // YYYY-MM-DD
	SlateItemID       *string `json:"slate_item_id,omitempty"`
	Active            *bool   `json:"active,omitempty"`
	Version           int     `json:"version,omitempty"`
}

func (a *API) handleChannelsList(w http.ResponseWriter, r *http.Request) {
	var channels []models.Channel
	if err := a.db.WithContext(r.Context()).Order("name ASC").Find(&channels).Error; err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (a *API) handleChannelsGet(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (a *API) handleChannelsCreate(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	channel := models.Channel{
		ID:               uuid.NewString(),
		Name:             req.Name,
		Slug:             req.Slug,
		Description:      req.Description,
		Timezone:         req.Timezone,
		GridBlockMinutes: req.GridBlockMinutes,
		GridOffsets:      req.GridOffsets,
		DayStartMinutes:  req.DayStartMinutes,
		SlateItemID:      req.SlateItemID,
		Active:           true,
		Version:          1,
	}
	if req.Active != nil {
		channel.Active = *req.Active
	}
	if req.GridEffectiveFrom != nil {
		d, err := parseDateField(*req.GridEffectiveFrom)
		if err != nil {
			a.writeDomainError(w, err)
			return
		}
		channel.GridEffectiveFrom = &d
	}

	if err := a.validator.ValidateChannel(&channel); err != nil {
		a.writeDomainError(w, err)
		return
	}
	if err := a.db.WithContext(r.Context()).Create(&channel).Error; err != nil {
		a.logger.Error().Err(err).Msg("create channel failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.invalidateChannelCache(r, channel.ID)
	a.bus.Publish(events.EventChannelCreated, events.Payload{"channel_id": channel.ID})
	a.publishAuditEvent(r, events.EventAuditChannelCreate, events.Payload{
		"channel_id":    channel.ID,
		"resource_type": "channel",
		"resource_id":   channel.ID,
		"name":          channel.Name,
	})

	a.logger.Info().Str("channel_id", channel.ID).Str("name", channel.Name).Msg("channel created")
	writeJSON(w, http.StatusCreated, channel)
}

func (a *API) handleChannelsUpdate(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if req.Version != 0 && req.Version != channel.Version {
		a.writeDomainError(w, &scheduling.ConflictError{
			Resource: "channel", ID: channel.ID, Version: req.Version,
		})
		return
	}

	gridChanged := req.GridBlockMinutes != channel.GridBlockMinutes ||
		req.DayStartMinutes != channel.DayStartMinutes ||
		!equalInts(req.GridOffsets, channel.GridOffsets)

	channel.Name = req.Name
	channel.Slug = req.Slug
	channel.Description = req.Description
	channel.Timezone = req.Timezone
	channel.GridBlockMinutes = req.GridBlockMinutes
	channel.GridOffsets = req.GridOffsets
	channel.DayStartMinutes = req.DayStartMinutes
	channel.SlateItemID = req.SlateItemID
	if req.Active != nil {
		channel.Active = *req.Active
	}

	// The grid is immutable per effective period: changing it requires an
	// explicit effective date from which the new lattice applies.
	if gridChanged {
		if req.GridEffectiveFrom == nil {
			a.writeDomainError(w, scheduling.NewValidationError(scheduling.CodeGridInvalid,
				"grid changes must name grid_effective_from; the grid is immutable per effective period"))
			return
		}
		d, err := parseDateField(*req.GridEffectiveFrom)
		if err != nil {
			a.writeDomainError(w, err)
			return
		}
		channel.GridEffectiveFrom = &d
	}

	if err := a.validator.ValidateChannel(channel); err != nil {
		a.writeDomainError(w, err)
		return
	}

	channel.Version++
	if err := a.db.WithContext(r.Context()).Save(channel).Error; err != nil {
		a.logger.Error().Err(err).Msg("update channel failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.invalidateChannelCache(r, channel.ID)
	a.bus.Publish(events.EventChannelUpdated, events.Payload{"channel_id": channel.ID})

	writeJSON(w, http.StatusOK, channel)
}

func (a *API) handleChannelsDelete(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}
	if !confirmDelete(w, r) {
		return
	}

	var planCount int64
	if err := a.db.WithContext(r.Context()).Model(&models.SchedulePlan{}).
		Where("channel_id = ?", channel.ID).Count(&planCount).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}
	var dayCount int64
	if err := a.db.WithContext(r.Context()).Model(&models.ScheduleDay{}).
		Where("channel_id = ?", channel.ID).Count(&dayCount).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}
	if planCount > 0 || dayCount > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "dependency_exists",
			"message": fmt.Sprintf(
				"%d plans and %d resolved days reference this channel; disable it instead of deleting",
				planCount, dayCount),
			"details": map[string]any{
				"plans":         planCount,
				"schedule_days": dayCount,
			},
		})
		return
	}

	if err := a.db.WithContext(r.Context()).Delete(&models.Channel{}, "id = ?", channel.ID).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete channel failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.invalidateChannelCache(r, channel.ID)
	a.bus.Publish(events.EventChannelDeleted, events.Payload{"channel_id": channel.ID})

	a.logger.Info().Str("channel_id", channel.ID).Msg("channel deleted")
	w.WriteHeader(http.StatusNoContent)
}

// loadChannel resolves the channelID route param or writes the error.
func (a *API) loadChannel(w http.ResponseWriter, r *http.Request) (*models.Channel, bool) {
	channelID := chi.URLParam(r, "channelID")

	var channel models.Channel
	err := a.db.WithContext(r.Context()).First(&channel, "id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "channel "+channelID+" not found")
		return nil, false
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load channel failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return nil, false
	}
	return &channel, true
}

func (a *API) invalidateChannelCache(r *http.Request, channelID string) {
	if a.cache == nil {
		return
	}
	_ = a.cache.InvalidateChannelList(r.Context())
	_ = a.cache.InvalidateChannel(r.Context(), channelID)
}

func parseDateField(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, scheduling.NewValidationError(scheduling.CodeTimeFormat,
			"dates use YYYY-MM-DD").WithDetail("value", s)
	}
	return t, nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
