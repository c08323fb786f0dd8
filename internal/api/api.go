/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: a read-only query layer over
// resolved schedules and the playlog, admin CRUD for the programming
// entities, and a websocket feed of on-air changes. Every mutation runs
// through the same validator as the CLI and the importer, so a request
// that fails here fails identically everywhere.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/audit"
	"github.com/friendsincode/saga_tv/internal/auth"
	"github.com/friendsincode/saga_tv/internal/cache"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/guide"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/priority"
	"github.com/friendsincode/saga_tv/internal/resolution"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

// API carries the handler dependencies.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	engine    *resolution.Engine
	plans     *priority.Service
	validator *scheduling.Validator
	bus       *events.Bus
	clock     timeauthority.Clock
	logger    zerolog.Logger

	exporter *guide.Exporter
	cache    *cache.Cache
	audit    *audit.Service
}

// New creates the API.
func New(
	db *gorm.DB,
	jwtSecret []byte,
	engine *resolution.Engine,
	plans *priority.Service,
	validator *scheduling.Validator,
	bus *events.Bus,
	clock timeauthority.Clock,
	logger zerolog.Logger,
) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		engine:    engine,
		plans:     plans,
		validator: validator,
		bus:       bus,
		clock:     clock,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetExporter wires the guide exporter serving the XMLTV/iCal endpoints.
func (a *API) SetExporter(ex *guide.Exporter) { a.exporter = ex }

// SetCache wires the redis cache for on-air and channel-list reads.
func (a *API) SetCache(c *cache.Cache) { a.cache = c }

// SetAudit wires the audit service backing the audit query endpoint.
func (a *API) SetAudit(s *audit.Service) { a.audit = s }

// Routes registers all HTTP routes.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)
		r.Get("/guide/{slug}/{date}.xml", a.handleGuideXMLTV)
		r.Get("/guide/{slug}/{date}.ics", a.handleGuideICal)

		// Protected endpoints
		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Get("/me", a.handleMe)

			// API keys (self-service)
			pr.Get("/apikeys", a.handleAPIKeysList)
			pr.Post("/apikeys", a.handleAPIKeysCreate)
			pr.Post("/apikeys/{keyID}/revoke", a.handleAPIKeysRevoke)
			pr.Delete("/apikeys/{keyID}", a.handleAPIKeysDelete)

			// Read-only query surface (any authenticated role)
			pr.Get("/channels", a.handleChannelsList)
			pr.Get("/channels/{channelID}", a.handleChannelsGet)
			pr.Get("/channels/{channelID}/plans", a.handlePlansList)
			pr.Get("/channels/{channelID}/plans/active", a.handleActivePlan)
			pr.Get("/channels/{channelID}/days/{date}", a.handleDayGet)
			pr.Get("/channels/{channelID}/days/{date}/carryover", a.handleCarryover)
			pr.Get("/channels/{channelID}/on-air", a.handleOnAir)
			pr.Get("/channels/{channelID}/playlog", a.handlePlaylog)
			pr.Get("/plans/{planID}", a.handlePlansGet)
			pr.Post("/plans/{planID}/validate", a.handlePlansValidate)
			pr.Get("/plans/{planID}/zones", a.handleZonesList)
			pr.Get("/plans/{planID}/patterns", a.handlePatternsList)
			pr.Get("/zones/{zoneID}", a.handleZonesGet)
			pr.Get("/patterns/{patternID}", a.handlePatternsGet)
			pr.Get("/patterns/{patternID}/programs", a.handleProgramsList)
			pr.Get("/programs/{programID}", a.handleProgramsGet)

			// Websocket event feed
			pr.Get("/events", a.handleEvents)

			// Mutations (admin/editor)
			pr.Group(func(er chi.Router) {
				er.Use(a.requireRoles(models.RoleAdmin, models.RoleEditor))

				er.Post("/channels", a.handleChannelsCreate)
				er.Put("/channels/{channelID}", a.handleChannelsUpdate)
				er.Delete("/channels/{channelID}", a.handleChannelsDelete)

				er.Post("/channels/{channelID}/plans", a.handlePlansCreate)
				er.Put("/plans/{planID}", a.handlePlansUpdate)
				er.Post("/plans/{planID}/activate", a.handlePlansActivate)
				er.Post("/plans/{planID}/deactivate", a.handlePlansDeactivate)
				er.Delete("/plans/{planID}", a.handlePlansArchive)

				er.Post("/plans/{planID}/zones", a.handleZonesCreate)
				er.Put("/zones/{zoneID}", a.handleZonesUpdate)
				er.Delete("/zones/{zoneID}", a.handleZonesDelete)

				er.Post("/plans/{planID}/patterns", a.handlePatternsCreate)
				er.Put("/patterns/{patternID}", a.handlePatternsUpdate)
				er.Delete("/patterns/{patternID}", a.handlePatternsDelete)

				er.Post("/patterns/{patternID}/programs", a.handleProgramsCreate)
				er.Put("/programs/{programID}", a.handleProgramsUpdate)
				er.Delete("/programs/{programID}", a.handleProgramsDelete)

				er.Post("/channels/{channelID}/days/{date}/resolve", a.handleDayResolve)
				er.Post("/channels/{channelID}/days/{date}/override", a.handleDayOverride)
				er.Post("/channels/{channelID}/days/{date}/export", a.handleGuideExport)
			})

			// Audit trail (admin only)
			pr.Group(func(ar chi.Router) {
				ar.Use(a.requireRoles(models.RoleAdmin))
				ar.Get("/audit", a.handleAuditList)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.MiddlewareWithJWT(a.db, a.jwtSecret)
}

func (a *API) requireRoles(allowed ...models.RoleName) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[string(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			for _, role := range claims.Roles {
				if _, exists := allowedSet[role]; exists {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient_role", "your role does not permit this operation")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses with the
// domain code preserved, so clients match on codes instead of prose.
func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	var ve *scheduling.ValidationError
	var nf *scheduling.NotFoundError
	var ce *scheduling.ConflictError
	var sf *scheduling.SchedulingFailure

	switch {
	case errors.As(err, &ve):
		body := map[string]any{"error": ve.Code, "message": ve.Message}
		if len(ve.Details) > 0 {
			body["details"] = ve.Details
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, "not_found", nf.Error())
	case errors.As(err, &ce):
		writeError(w, http.StatusConflict, "version_conflict", ce.Error())
	case errors.As(err, &sf):
		writeError(w, http.StatusUnprocessableEntity, sf.Code, sf.Message)
	default:
		a.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// confirmDelete gates destructive endpoints behind ?confirm=true.
func confirmDelete(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "confirm_required",
			"destructive operation; repeat the request with ?confirm=true")
		return false
	}
	return true
}

// auditContext extracts user and request info for audit logging.
func (a *API) auditContext(r *http.Request) events.Payload {
	payload := events.Payload{
		"ip_address": r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}

	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		payload["user_id"] = claims.UserID

		var user models.User
		if err := a.db.Select("email").First(&user, "id = ?", claims.UserID).Error; err == nil {
			payload["user_email"] = user.Email
		}
	}

	return payload
}

// publishAuditEvent publishes an audit event with user and request context.
func (a *API) publishAuditEvent(r *http.Request, eventType events.EventType, data events.Payload) {
	payload := a.auditContext(r)
	for k, v := range data {
		payload[k] = v
	}
	a.bus.Publish(eventType, payload)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, events.EventType(strings.TrimSpace(part)))
	}
	return out
}
