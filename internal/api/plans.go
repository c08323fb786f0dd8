/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/priority"
	"github.com/friendsincode/saga_tv/internal/scheduling"
)

type planRequest struct {
	Name       string  `json:"name"`
	Priority   int     `json:"priority"`
	StartDate  *string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate    *string `json:"end_date,omitempty"`
	Recurrence string  `json:"recurrence,omitempty"`
	Active     bool    `json:"active"`
	Version    int     `json:"version,omitempty"`
}

func (a *API) handlePlansList(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	includeArchived := r.URL.Query().Get("include_archived") == "true"
	plans, err := a.plans.List(r.Context(), channel.ID, includeArchived)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (a *API) handlePlansGet(w http.ResponseWriter, r *http.Request) {
	plan, err := a.plans.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleActivePlan answers which plan governs the channel on a date.
// Defaults to the current broadcast day when no date is given.
func (a *API) handleActivePlan(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	date, ok := a.resolveDateParam(w, r, channel)
	if !ok {
		return
	}

	plan, err := a.plans.Resolver().ActivePlan(r.Context(), channel.ID, date)
	if err != nil {
		if priority.IsNoActivePlan(err) {
			writeError(w, http.StatusNotFound, scheduling.FailNoActivePlan,
				"no active plan covers "+date.String())
			return
		}
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date": date.String(),
		"plan": plan,
	})
}

func (a *API) handlePlansCreate(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	create := priority.CreateRequest{
		ChannelID:  channel.ID,
		Name:       req.Name,
		Priority:   req.Priority,
		Recurrence: req.Recurrence,
		Active:     req.Active,
	}
	var err error
	if create.StartDate, err = parseOptionalDate(req.StartDate); err != nil {
		a.writeDomainError(w, err)
		return
	}
	if create.EndDate, err = parseOptionalDate(req.EndDate); err != nil {
		a.writeDomainError(w, err)
		return
	}

	plan, err := a.plans.Create(r.Context(), create)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (a *API) handlePlansUpdate(w http.ResponseWriter, r *http.Request) {
	plan, err := a.plans.Get(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}
	if req.Version != 0 && req.Version != plan.Version {
		a.writeDomainError(w, &scheduling.ConflictError{
			Resource: "plan", ID: plan.ID, Version: req.Version,
		})
		return
	}

	plan.Name = req.Name
	plan.Priority = req.Priority
	plan.Recurrence = req.Recurrence
	if plan.StartDate, err = parseOptionalDate(req.StartDate); err != nil {
		a.writeDomainError(w, err)
		return
	}
	if plan.EndDate, err = parseOptionalDate(req.EndDate); err != nil {
		a.writeDomainError(w, err)
		return
	}

	updated, err := a.plans.Update(r.Context(), plan)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handlePlansValidate re-runs every check against the stored plan graph
// and returns the collected findings, gaps and empty-pattern warnings
// included, without stopping at the first.
func (a *API) handlePlansValidate(w http.ResponseWriter, r *http.Request) {
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

	result, err := a.validator.ValidatePlanGraph(plan, channel, scheduling.CoverageWindowDays)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handlePlansActivate(w http.ResponseWriter, r *http.Request) {
	a.setPlanActive(w, r, true)
}

func (a *API) handlePlansDeactivate(w http.ResponseWriter, r *http.Request) {
	a.setPlanActive(w, r, false)
}

func (a *API) setPlanActive(w http.ResponseWriter, r *http.Request, active bool) {
	plan, err := a.plans.SetActive(r.Context(), chi.URLParam(r, "planID"), active)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handlePlansArchive retires a plan. Plans archive instead of
// hard-deleting so resolved history keeps its provenance.
func (a *API) handlePlansArchive(w http.ResponseWriter, r *http.Request) {
	if !confirmDelete(w, r) {
		return
	}
	plan, err := a.plans.Archive(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// resolveDateParam parses ?date=YYYY-MM-DD, defaulting to the channel's
// current broadcast day.
func (a *API) resolveDateParam(w http.ResponseWriter, r *http.Request, channel *models.Channel) (broadcast.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		loc, err := channel.Location()
		if err != nil {
			a.writeDomainError(w, scheduling.NewValidationError(scheduling.CodeTimezoneInvalid, err.Error()))
			return broadcast.Date{}, false
		}
		return channel.Grid().BroadcastDayOf(a.clock.Now(), loc), true
	}
	date, err := broadcast.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, scheduling.CodeTimeFormat, "date must be YYYY-MM-DD")
		return broadcast.Date{}, false
	}
	return date, true
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDateField(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
