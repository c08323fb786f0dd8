/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

type programRequest struct {
	Position int                      `json:"position"`
	Kind     models.ProgramKind       `json:"kind"`
	SeriesID *string                  `json:"series_id,omitempty"`
	Rotation *models.RotationPolicy   `json:"rotation,omitempty"`
	AssetID  *string                  `json:"asset_id,omitempty"`
	Rule     *models.RuleSelector     `json:"rule,omitempty"`
	Virtual  *models.VirtualComposite `json:"virtual,omitempty"`
	Version  int                      `json:"version,omitempty"`
}

func (a *API) handleProgramsList(w http.ResponseWriter, r *http.Request) {
	pattern, ok := a.loadPattern(w, r)
	if !ok {
		return
	}

	var programs []models.Program
	if err := a.db.WithContext(r.Context()).
		Where("pattern_id = ?", pattern.ID).
		Order("position ASC, created_at ASC, id ASC").
		Find(&programs).Error; err != nil {
		a.logger.Error().Err(err).Msg("list programs failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, programs)
}

func (a *API) handleProgramsGet(w http.ResponseWriter, r *http.Request) {
	program, ok := a.loadProgram(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, program)
}

func (a *API) handleProgramsCreate(w http.ResponseWriter, r *http.Request) {
	pattern, ok := a.loadPattern(w, r)
	if !ok {
		return
	}

	var req programRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	program := models.Program{
		ID:        uuid.NewString(),
		PatternID: pattern.ID,
		Position:  req.Position,
		Kind:      req.Kind,
		SeriesID:  req.SeriesID,
		Rotation:  req.Rotation,
		AssetID:   req.AssetID,
		Rule:      req.Rule,
		Virtual:   req.Virtual,
		Version:   1,
	}

	if err := a.validator.ValidateProgram(&program); err != nil {
		a.writeDomainError(w, err)
		return
	}
	if err := a.db.WithContext(r.Context()).Create(&program).Error; err != nil {
		a.logger.Error().Err(err).Msg("create program failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.publishProgramEvent(r, &program, "create")
	writeJSON(w, http.StatusCreated, program)
}

func (a *API) handleProgramsUpdate(w http.ResponseWriter, r *http.Request) {
	program, ok := a.loadProgram(w, r)
	if !ok {
		return
	}

	var req programRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if req.Version != 0 && req.Version != program.Version {
		a.writeDomainError(w, &scheduling.ConflictError{
			Resource: "program", ID: program.ID, Version: req.Version,
		})
		return
	}

	program.Position = req.Position
	program.Kind = req.Kind
	program.SeriesID = req.SeriesID
	program.Rotation = req.Rotation
	program.AssetID = req.AssetID
	program.Rule = req.Rule
	program.Virtual = req.Virtual

	if err := a.validator.ValidateProgram(program); err != nil {
		a.writeDomainError(w, err)
		return
	}

	program.Version++
	if err := a.db.WithContext(r.Context()).Save(program).Error; err != nil {
		a.logger.Error().Err(err).Msg("update program failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.publishProgramEvent(r, program, "update")
	writeJSON(w, http.StatusOK, program)
}

func (a *API) handleProgramsDelete(w http.ResponseWriter, r *http.Request) {
	program, ok := a.loadProgram(w, r)
	if !ok {
		return
	}
	if !confirmDelete(w, r) {
		return
	}

	if err := a.db.WithContext(r.Context()).Delete(&models.Program{}, "id = ?", program.ID).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete program failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	a.publishProgramEvent(r, program, "delete")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) loadProgram(w http.ResponseWriter, r *http.Request) (*models.Program, bool) {
	programID := chi.URLParam(r, "programID")

	var program models.Program
	err := a.db.WithContext(r.Context()).First(&program, "id = ?", programID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "program "+programID+" not found")
		return nil, false
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("load program failed")
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return nil, false
	}
	return &program, true
}

func (a *API) publishProgramEvent(r *http.Request, program *models.Program, op string) {
	a.publishAuditEvent(r, events.EventPatternUpdated, events.Payload{
		"resource_type": "program",
		"resource_id":   program.ID,
		"pattern_id":    program.PatternID,
		"operation":     op,
	})
}
