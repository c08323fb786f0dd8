/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/auth"
	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/cache"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/guide"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/resolution"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

// handleDayGet returns the current revision of a broadcast day with its
// segments. Failed days come back with their failure code so operators
// see why the guide has a hole.
func (a *API) handleDayGet(w http.ResponseWriter, r *http.Request) {
	channel, date, ok := a.channelAndDate(w, r)
	if !ok {
		return
	}

	day, segments, err := a.engine.Segments(r.Context(), channel.ID, date)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"day":      day,
		"segments": segments,
	})
}

func (a *API) handleCarryover(w http.ResponseWriter, r *http.Request) {
	channel, date, ok := a.channelAndDate(w, r)
	if !ok {
		return
	}

	carry, err := a.engine.Carryover(r.Context(), channel.ID, date)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	if carry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"carryover": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"carryover": carry})
}

// handleOnAir answers what a channel plays at an instant, with the
// offset into the item. Reads go through the redis cache when it is
// wired; a cold or unavailable cache falls back to the database.
func (a *API) handleOnAir(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	at := a.clock.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := timeauthority.ParseTimestamp(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, scheduling.CodeTimestampNaive,
				"at must be RFC 3339 with an explicit offset")
			return
		}
		at = parsed
	}

	if a.cache != nil {
		if cached, ok := a.cache.GetOnAir(r.Context(), channelID, at); ok {
			writeJSON(w, http.StatusOK, onAirFromCache(cached, at))
			return
		}
	}

	onAir, err := a.engine.OnAir(r.Context(), channelID, at)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	if a.cache != nil {
		_ = a.cache.SetOnAir(r.Context(), &cache.CachedOnAir{
			ChannelID:     onAir.ChannelID,
			At:            onAir.At,
			CatalogItemID: onAir.CatalogItemID,
			SegmentID:     onAir.SegmentID,
			Kind:          string(onAir.Kind),
			Title:         onAir.Title,
			StartsAt:      onAir.StartsAt,
			EndsAt:        onAir.EndsAt,
		})
	}

	writeJSON(w, http.StatusOK, onAir)
}

// onAirFromCache re-derives the live offsets from the cached event
// bounds; the cached At is whenever the entry was written.
func onAirFromCache(c *cache.CachedOnAir, at time.Time) *resolution.OnAir {
	return &resolution.OnAir{
		ChannelID:     c.ChannelID,
		At:            at,
		CatalogItemID: c.CatalogItemID,
		SegmentID:     c.SegmentID,
		Kind:          models.PlaylogKind(c.Kind),
		Title:         c.Title,
		StartsAt:      c.StartsAt,
		EndsAt:        c.EndsAt,
		OffsetMS:      at.Sub(c.StartsAt).Milliseconds(),
		RemainingMS:   c.EndsAt.Sub(at).Milliseconds(),
	}
}

func (a *API) handlePlaylog(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	from, err := timeauthority.ParseTimestamp(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, scheduling.CodeTimestampNaive,
			"from must be RFC 3339 with an explicit offset")
		return
	}
	to, err := timeauthority.ParseTimestamp(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, scheduling.CodeTimestampNaive,
			"to must be RFC 3339 with an explicit offset")
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, scheduling.CodeTimeOrder, "to must be after from")
		return
	}

	eventsOut, err := a.engine.Playlog(r.Context(), channelID, from, to)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": channelID,
		"from":       from,
		"to":         to,
		"events":     eventsOut,
		"count":      len(eventsOut),
	})
}

// handleDayResolve resolves (or re-resolves at the next revision) a
// broadcast day on operator demand.
func (a *API) handleDayResolve(w http.ResponseWriter, r *http.Request) {
	channel, date, ok := a.channelAndDate(w, r)
	if !ok {
		return
	}

	day, err := a.engine.ResolveDay(r.Context(), channel.ID, date)
	if err != nil {
		var sf *scheduling.SchedulingFailure
		if errors.As(err, &sf) && day != nil {
			// The failed day row is committed; return it with the failure.
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":   sf.Code,
				"message": sf.Message,
				"day":     day,
			})
			return
		}
		a.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, day)
}

func (a *API) handleDayOverride(w http.ResponseWriter, r *http.Request) {
	channel, date, ok := a.channelAndDate(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason  string         `json:"reason"`
		Details map[string]any `json:"details,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be JSON")
		return
	}

	var createdBy *string
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		createdBy = &claims.UserID
	}

	day, err := a.engine.Override(r.Context(), channel.ID, date, req.Reason, createdBy, req.Details)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	a.publishAuditEvent(r, events.EventAuditDayOverride, events.Payload{
		"channel_id":    channel.ID,
		"resource_type": "schedule_day",
		"resource_id":   day.ID,
		"date":          date.String(),
		"reason":        req.Reason,
	})

	writeJSON(w, http.StatusOK, day)
}

// handleGuideExport renders and archives the XMLTV and iCal guide for a
// resolved day.
func (a *API) handleGuideExport(w http.ResponseWriter, r *http.Request) {
	if a.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export_unavailable", "guide export is not configured")
		return
	}
	channel, date, ok := a.channelAndDate(w, r)
	if !ok {
		return
	}

	results, err := a.exporter.ExportDay(r.Context(), channel.ID, date)
	if err != nil {
		if errors.Is(err, guide.ErrDayNotResolved) {
			writeError(w, http.StatusConflict, "day_not_resolved", "resolve the day before exporting its guide")
			return
		}
		a.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"exports": results})
}

func (a *API) handleGuideXMLTV(w http.ResponseWriter, r *http.Request) {
	a.serveGuide(w, r, "xmltv")
}

func (a *API) handleGuideICal(w http.ResponseWriter, r *http.Request) {
	a.serveGuide(w, r, "ical")
}

func (a *API) serveGuide(w http.ResponseWriter, r *http.Request, format string) {
	if a.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export_unavailable", "guide export is not configured")
		return
	}

	slug := chi.URLParam(r, "slug")
	var channel models.Channel
	err := a.db.WithContext(r.Context()).First(&channel, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "channel "+slug+" not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "internal error")
		return
	}

	date, err := broadcast.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, scheduling.CodeTimeFormat, "date must be YYYY-MM-DD")
		return
	}

	var body []byte
	var contentType string
	switch format {
	case "xmltv":
		body, err = a.exporter.RenderXMLTV(r.Context(), channel.ID, date)
		contentType = "application/xml; charset=utf-8"
	default:
		body, err = a.exporter.RenderICal(r.Context(), channel.ID, date)
		contentType = "text/calendar; charset=utf-8"
	}
	if err != nil {
		if errors.Is(err, guide.ErrDayNotResolved) {
			writeError(w, http.StatusNotFound, "day_not_resolved", "no resolved schedule for "+date.String())
			return
		}
		a.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(body)
}

// channelAndDate resolves the channelID and date route params together.
func (a *API) channelAndDate(w http.ResponseWriter, r *http.Request) (*models.Channel, broadcast.Date, bool) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return nil, broadcast.Date{}, false
	}
	date, err := broadcast.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, scheduling.CodeTimeFormat, "date must be YYYY-MM-DD")
		return nil, broadcast.Date{}, false
	}
	return channel, date, true
}
