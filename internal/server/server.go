/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/api"
	"github.com/friendsincode/saga_tv/internal/audit"
	"github.com/friendsincode/saga_tv/internal/cache"
	"github.com/friendsincode/saga_tv/internal/config"
	"github.com/friendsincode/saga_tv/internal/db"
	"github.com/friendsincode/saga_tv/internal/eventbus"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/guide"
	"github.com/friendsincode/saga_tv/internal/horizon"
	"github.com/friendsincode/saga_tv/internal/leadership"
	"github.com/friendsincode/saga_tv/internal/notifications"
	"github.com/friendsincode/saga_tv/internal/priority"
	"github.com/friendsincode/saga_tv/internal/resolution"
	"github.com/friendsincode/saga_tv/internal/scheduling"
	"github.com/friendsincode/saga_tv/internal/storage"
	"github.com/friendsincode/saga_tv/internal/telemetry"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
	"github.com/friendsincode/saga_tv/internal/version"
	"github.com/friendsincode/saga_tv/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db                 *gorm.DB
	cache              *cache.Cache
	api                *api.API
	engine             *resolution.Engine
	plans              *priority.Service
	exporter           *guide.Exporter
	horizon            *horizon.Orchestrator
	leaderAwareHorizon *horizon.LeaderAware
	bus                *events.Bus
	bridge             eventbus.Bridge
	auditSvc           *audit.Service
	notificationSvc    *notifications.Service
	webhookSvc         *webhooks.Service
	updateChecker      *version.Checker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("saga-tv-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Event stream subscribers hold the connection open indefinitely.
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Keep header deadline to protect against slowloris; handlers on the
		// websocket path manage their own deadlines.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	ctx := context.Background()

	tracerCfg := telemetry.TracerConfig{
		ServiceName:    "saga-tv",
		ServiceVersion: "dev",
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}
	tracer, err := telemetry.InitTracer(ctx, tracerCfg, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.DeferClose(func() error { return tracer.Shutdown(context.Background()) })

	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// The bridge fans the in-process bus out across instances; a failed
	// broker connection degrades to local-only events.
	switch s.cfg.EventBridge {
	case "nats":
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		bridge, err := eventbus.NewNATSBus(natsCfg, s.bus, s.logger)
		if err != nil {
			return fmt.Errorf("create NATS event bridge: %w", err)
		}
		s.bridge = bridge
		s.DeferClose(bridge.Close)
	case "redis":
		redisCfg := eventbus.DefaultRedisBusConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		bridge, err := eventbus.NewRedisBus(redisCfg, s.bus, s.logger)
		if err != nil {
			return fmt.Errorf("create Redis event bridge: %w", err)
		}
		s.bridge = bridge
		s.DeferClose(bridge.Close)
	}

	// Redis cache for on-air and channel lookups. Serving uncached is always
	// correct, so failure here is a warning, not an error.
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	entityCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
	} else {
		s.cache = entityCache
		s.DeferClose(func() error { return s.cache.Close() })
	}

	clk := timeauthority.SystemClock{}
	validator := scheduling.NewValidator(database, clk, s.logger)
	s.engine = resolution.NewEngine(database, clk, s.bus, s.logger)
	s.plans = priority.NewService(database, validator, s.bus, s.logger)

	store, err := storage.NewFromConfig(s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("init guide storage: %w", err)
	}
	s.exporter = guide.NewExporter(database, store, s.bus, s.logger)

	horizonCfg := horizon.Config{
		GuideHorizonDays:    s.cfg.GuideHorizonDays,
		PlaylogHorizonHours: s.cfg.PlaylogHorizonHours,
		TickInterval:        time.Duration(s.cfg.HorizonTickSeconds) * time.Second,
	}
	s.horizon = horizon.New(database, s.engine, clk, s.bus, horizonCfg, s.logger)
	if s.cache != nil {
		s.horizon.SetCache(s.cache)
	}
	s.horizon.SetExporter(s.exporter)

	// Leader election keeps exactly one orchestrator extending the horizon
	// when several instances share a database.
	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.ElectionConfig{
			RedisAddr:       s.cfg.RedisAddr,
			RedisPassword:   s.cfg.RedisPassword,
			RedisDB:         s.cfg.RedisDB,
			ElectionKey:     "saga:leader:horizon",
			LeaseDuration:   15 * time.Second,
			RenewalInterval: 5 * time.Second,
			RetryInterval:   2 * time.Second,
			InstanceID:      s.cfg.InstanceID,
		}

		election, err := leadership.NewElection(electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}

		s.leaderAwareHorizon = horizon.NewLeaderAware(s.horizon, election, s.logger)
		s.DeferClose(func() error { return s.leaderAwareHorizon.Stop() })

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", electionConfig.InstanceID).
			Msg("leader election enabled for horizon orchestrator")
	}

	s.auditSvc = audit.NewService(database, s.bus, s.logger)
	s.notificationSvc = notifications.NewService(s.bus, *s.cfg, s.logger)
	s.webhookSvc = webhooks.NewService(database, s.bus, s.logger)
	if !strings.EqualFold(s.cfg.Environment, "development") {
		s.updateChecker = version.NewChecker(s.logger)
	}

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.engine, s.plans, validator, s.bus, clk, s.logger)
	s.api.SetExporter(s.exporter)
	if s.cache != nil {
		s.api.SetCache(s.cache)
	}
	s.api.SetAudit(s.auditSvc)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Horizon orchestrator (leader-aware if configured, otherwise direct)
	if s.leaderAwareHorizon != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.leaderAwareHorizon.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("leader-aware horizon orchestrator exited")
			}
		}()
	} else if s.horizon != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.horizon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("horizon orchestrator exited")
			}
		}()
	}

	if s.auditSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.auditSvc.Start(ctx)
		}()
	}

	if s.notificationSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.notificationSvc.Start(ctx)
		}()
	}

	if s.webhookSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.webhookSvc.Start(ctx)
		}()
	}

	if s.updateChecker != nil {
		s.updateChecker.Start(ctx)
	}

	// Database pool metrics updater
	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}

	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener drops cached channel data when channels
// change. Subscriptions go through the event bridge when one is wired,
// so a mutation on any instance invalidates every instance's cache.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	subscribe := s.bus.Subscribe
	unsubscribe := s.bus.Unsubscribe
	if s.bridge != nil {
		subscribe = s.bridge.Subscribe
		unsubscribe = s.bridge.Unsubscribe
	}

	channelCreated := subscribe(events.EventChannelCreated)
	channelUpdated := subscribe(events.EventChannelUpdated)
	channelDeleted := subscribe(events.EventChannelDeleted)

	defer func() {
		unsubscribe(events.EventChannelCreated, channelCreated)
		unsubscribe(events.EventChannelUpdated, channelUpdated)
		unsubscribe(events.EventChannelDeleted, channelDeleted)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	invalidate := func(payload events.Payload, why string) {
		s.logger.Debug().Msg("invalidating channel cache (" + why + ")")
		if err := s.cache.InvalidateChannelList(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("channel list invalidation failed")
		}
		if channelID, ok := payload["channel_id"].(string); ok {
			if err := s.cache.InvalidateChannel(ctx, channelID); err != nil {
				s.logger.Warn().Err(err).Msg("channel invalidation failed")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return
		case payload := <-channelCreated:
			invalidate(payload, "channel created")
		case payload := <-channelUpdated:
			invalidate(payload, "channel updated")
		case payload := <-channelDeleted:
			invalidate(payload, "channel deleted")
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok","version":"` + version.Version + `"`
		if s.leaderAwareHorizon != nil {
			if s.leaderAwareHorizon.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
