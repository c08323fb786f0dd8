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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

// Zone times travel as HH:MM:SS strings so 24:00:00 survives the round
// trip; seconds are an internal representation.
type zoneRequest struct {
	Name          string   `json:"name"`
	Start         string   `json:"start"`
	End           string   `json:"end"`
	DayFilter     []string `json:"day_filter,omitempty"`
	Enabled       *bool    `json:"enabled,omitempty"`
	EffectiveFrom *string  `json:"effective_from,omitempty"`
	EffectiveTo   *string  `json:"effective_to,omitempty"`
	DSTPolicy     *string  `json:"dst_policy,omitempty"`
	PatternID     string   `json:"pattern_id"`
	Version       int      `json:"version,omitempty"`
}

type zoneResponse struct {
	models.Zone
	Start string `json:"start"`
	End   string `json:"end"`
}

func zoneJSON(z *models.Zone) zoneResponse {
	w := z.Window()
	return zoneResponse{Zone: *z, Start: w.Start.String(), End: w.End.String()}
}

func (a *API) handleZonesList(w http.ResponseWriter, r *http.Request) {
	plan, err := a.plans.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	var zones []models.Zone
	if err := a.db.WithContext(r.Context()).
		Where("plan_id = ?", plan.ID).
		Order("start_seconds ASC, created_at ASC").
		Find(&zones).Error; err != nil {
		a.logger.Error().Err(err).Msg("list zones failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	out := make([]zoneResponse, 0, len(zones))
	for i := range zones {
		out = append(out, zoneJSON(&zones[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleZonesGet(w http.ResponseWriter, r *http.Request) {
	zone, ok := a.loadZone(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, zoneJSON(zone))
}

func (a *API) handleZonesCreate(w http.ResponseWriter, r *http.Request) {
	plan, err := a.plans.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	channel, err := a.channelOf(r, plan.ChannelID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	zone := models.Zone{
		ID:        uuid.NewString(),
		PlanID:    plan.ID,
		PatternID: req.PatternID,
		Enabled:   true,
		Version:   1,
	}
	if ok := a.applyZoneRequest(w, &zone, &req); !ok {
		return
	}

	scheduling.NormalizeZone(&zone)
	if err := a.validator.ValidateZone(&zone, plan, channel); err != nil {
		a.writeDomainError(w, err)
		return
	}
	if err := a.db.WithContext(r.Context()).Create(&zone).Error; err != nil {
		a.logger.Error().Err(err).Msg("create zone failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.publishZoneEvent(r, &zone, "create")
	writeJSON(w, http.StatusCreated, zoneJSON(&zone))
}

func (a *API) handleZonesUpdate(w http.ResponseWriter, r *http.Request) {
	zone, ok := a.loadZone(w, r)
	if !ok {
		return
	}
	plan, err := a.plans.Get(r.Context(), zone.PlanID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	channel, err := a.channelOf(r, plan.ChannelID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if req.Version != 0 && req.Version != zone.Version {
		a.writeDomainError(w, &scheduling.ConflictError{
			Resource: "zone", ID: zone.ID, Version: req.Version,
		})
		return
	}

	if req.PatternID != "" {
		zone.PatternID = req.PatternID
	}
	if ok := a.applyZoneRequest(w, zone, &req); !ok {
		return
	}

	scheduling.NormalizeZone(zone)
	if err := a.validator.ValidateZone(zone, plan, channel); err != nil {
		a.writeDomainError(w, err)
		return
	}

	// The save and the coverage re-check share one transaction, so an
	// update that would open a gap in the plan's day never lands.
	zone.Version++
	err = a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(zone).Error; err != nil {
			return fmt.Errorf("save zone: %w", err)
		}
		return a.validator.WithDB(tx).CheckPlanCoverage(plan, channel, scheduling.CoverageWindowDays)
	})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.publishZoneEvent(r, zone, "update")
	writeJSON(w, http.StatusOK, zoneJSON(zone))
}

func (a *API) handleZonesDelete(w http.ResponseWriter, r *http.Request) {
	zone, ok := a.loadZone(w, r)
	if !ok {
		return
	}
	if !confirmDelete(w, r) {
		return
	}
	plan, err := a.plans.Get(r.Context(), zone.PlanID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	channel, err := a.channelOf(r, plan.ChannelID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	// Removing the zone must not strand the plan below whole-day
	// coverage; the delete rolls back when a gap would appear.
	err = a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Zone{}, "id = ?", zone.ID).Error; err != nil {
			return fmt.Errorf("delete zone: %w", err)
		}
		return a.validator.WithDB(tx).CheckPlanCoverage(plan, channel, scheduling.CoverageWindowDays)
	})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.publishZoneEvent(r, zone, "delete")
	w.WriteHeader(http.StatusNoContent)
}

// applyZoneRequest copies parsed request fields onto the zone, writing
// the validation error itself on bad input.
func (a *API) applyZoneRequest(w http.ResponseWriter, zone *models.Zone, req *zoneRequest) bool {
	zone.Name = req.Name
	zone.DayFilter = req.DayFilter
	if req.Enabled != nil {
		zone.Enabled = *req.Enabled
	}

	start, verr := scheduling.ParseZoneTime(req.Start)
	if verr != nil {
		a.writeDomainError(w, verr)
		return false
	}
	end, verr := scheduling.ParseZoneTime(req.End)
	if verr != nil {
		a.writeDomainError(w, verr)
		return false
	}
	zone.StartSeconds = start.Seconds()
	zone.EndSeconds = end.Seconds()

	var err error
	if zone.EffectiveFrom, err = parseOptionalDate(req.EffectiveFrom); err != nil {
		a.writeDomainError(w, err)
		return false
	}
	if zone.EffectiveTo, err = parseOptionalDate(req.EffectiveTo); err != nil {
		a.writeDomainError(w, err)
		return false
	}

	if req.DSTPolicy != nil {
		policy := models.DSTPolicy(*req.DSTPolicy)
		zone.DSTPolicy = &policy
	} else {
		zone.DSTPolicy = nil
	}
	return true
}

func (a *API) loadZone(w http.ResponseWriter, r *http.Request) (*models.Zone, bool) {
	zoneID := chi.URLParam(r, "zoneID")

	var zone models.Zone
	err := a.db.WithContext(r.Context()).First(&zone, "id = ?", zoneID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "zone "+zoneID+" not found")
		return nil, false
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load zone failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return nil, false
	}
	return &zone, true
}

func (a *API) channelOf(r *http.Request, channelID string) (*models.Channel, error) {
	var channel models.Channel
	err := a.db.WithContext(r.Context()).First(&channel, "id = ?", channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scheduling.NewNotFound("channel", channelID)
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (a *API) publishZoneEvent(r *http.Request, zone *models.Zone, op string) {
	a.publishAuditEvent(r, events.EventZoneUpdated, events.Payload{
		"resource_type": "zone",
		"resource_id":   zone.ID,
		"plan_id":       zone.PlanID,
		"name":          zone.Name,
		"operation":     op,
	})
}
