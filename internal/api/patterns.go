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

type patternRequest struct {
	Name        *string `json:"name,omitempty"`
	Description string  `json:"description"`
	Version     int     `json:"version,omitempty"`
}

// patternResponse carries the validator's warnings alongside the
// entity; an empty pattern is legal but worth telling the operator.
type patternResponse struct {
	models.Pattern
	Warnings []scheduling.Warning `json:"warnings,omitempty"`
}

func (a *API) handlePatternsList(w http.ResponseWriter, r *http.Request) {
	plan, err := a.plans.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	var patterns []models.Pattern
	if err := a.db.WithContext(r.Context()).
		Where("plan_id = ?", plan.ID).
		Order("created_at ASC").
		Find(&patterns).Error; err != nil {
		a.logger.Error().Err(err).Msg("list patterns failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, patterns)
}

func (a *API) handlePatternsGet(w http.ResponseWriter, r *http.Request) {
	pattern, ok := a.loadPattern(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pattern)
}

func (a *API) handlePatternsCreate(w http.ResponseWriter, r *http.Request) {
	plan, err := a.plans.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	var req patternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	pattern := models.Pattern{
		ID:          uuid.NewString(),
		PlanID:      plan.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     1,
	}

	warnings, err := a.validator.ValidatePattern(&pattern)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if err := a.db.WithContext(r.Context()).Create(&pattern).Error; err != nil {
		a.logger.Error().Err(err).Msg("create pattern failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.publishPatternEvent(r, &pattern, "create")
	writeJSON(w, http.StatusCreated, patternResponse{Pattern: pattern, Warnings: warnings})
}

func (a *API) handlePatternsUpdate(w http.ResponseWriter, r *http.Request) {
	pattern, ok := a.loadPattern(w, r)
	if !ok {
		return
	}

	var req patternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if req.Version != 0 && req.Version != pattern.Version {
		a.writeDomainError(w, &scheduling.ConflictError{
			Resource: "pattern", ID: pattern.ID, Version: req.Version,
		})
		return
	}

	pattern.Name = req.Name
	pattern.Description = req.Description

	warnings, err := a.validator.ValidatePattern(pattern)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	pattern.Version++
	if err := a.db.WithContext(r.Context()).Save(pattern).Error; err != nil {
		a.logger.Error().Err(err).Msg("update pattern failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.publishPatternEvent(r, pattern, "update")
	writeJSON(w, http.StatusOK, patternResponse{Pattern: *pattern, Warnings: warnings})
}

// handlePatternsDelete removes a pattern and its programs. Deletion is
// blocked while any zone still references the pattern.
func (a *API) handlePatternsDelete(w http.ResponseWriter, r *http.Request) {
	pattern, ok := a.loadPattern(w, r)
	if !ok {
		return
	}
	if !confirmDelete(w, r) {
		return
	}

	var zoneCount int64
	if err := a.db.WithContext(r.Context()).Model(&models.Zone{}).
		Where("pattern_id = ?", pattern.ID).Count(&zoneCount).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}
	if zoneCount > 0 {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "dependency_exists",
			"message": fmt.Sprintf(
				"%d zones reference this pattern; point them elsewhere or delete them first",
				zoneCount),
			"details": map[string]any{"zones": zoneCount},
		})
		return
	}

	err := a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pattern_id = ?", pattern.ID).Delete(&models.Program{}).Error; err != nil {
			return fmt.Errorf("delete programs: %w", err)
		}
		if err := tx.Delete(&models.Pattern{}, "id = ?", pattern.ID).Error; err != nil {
			return fmt.Errorf("delete pattern: %w", err)
		}
		return nil
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("delete pattern failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.publishPatternEvent(r, pattern, "delete")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) loadPattern(w http.ResponseWriter, r *http.Request) (*models.Pattern, bool) {
	patternID := chi.URLParam(r, "patternID")

	var pattern models.Pattern
	err := a.db.WithContext(r.Context()).First(&pattern, "id = ?", patternID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "pattern "+patternID+" not found")
		return nil, false
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load pattern failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return nil, false
	}
	return &pattern, true
}

func (a *API) publishPatternEvent(r *http.Request, pattern *models.Pattern, op string) {
	a.publishAuditEvent(r, events.EventPatternUpdated, events.Payload{
		"resource_type": "pattern",
		"resource_id":   pattern.ID,
		"plan_id":       pattern.PlanID,
		"operation":     op,
	})
}
