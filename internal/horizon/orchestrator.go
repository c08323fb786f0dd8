/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package horizon keeps every active channel's schedule ahead of real
// time: a rolling guide horizon of resolved broadcast days and a
// playlog horizon of emitted events. It drives the resolution engine;
// it never touches playback.
package horizon

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/friendsincode/saga_tv/internal/broadcast"
	"github.com/friendsincode/saga_tv/internal/cache"
	"github.com/friendsincode/saga_tv/internal/events"
	"github.com/friendsincode/saga_tv/internal/guide"
	"github.com/friendsincode/saga_tv/internal/models"
	"github.com/friendsincode/saga_tv/internal/resolution"
	"github.com/friendsincode/saga_tv/internal/telemetry"
	"github.com/friendsincode/saga_tv/internal/timeauthority"
)

// failedRetryBackoff is the minimum wait before re-attempting a day that
// last failed to resolve.
const failedRetryBackoff = 5 * time.Minute

// playlogRetentionDays is how long emitted playlog history is kept
// before the nightly prune removes it.
const playlogRetentionDays = 30

// Config bounds the orchestrator's two horizons.
type Config struct {
	GuideHorizonDays    int           // resolved days ahead, including today
	PlaylogHorizonHours int           // emitted playlog ahead of now
	TickInterval        time.Duration // cadence of the extension loop
	MaxConcurrency      int           // channel fan-out bound, 0 = unbounded
}

// DefaultConfig returns the stock horizon configuration.
func DefaultConfig() Config {
	return Config{
		GuideHorizonDays:    3,
		PlaylogHorizonHours: 4,
		TickInterval:        30 * time.Second,
		MaxConcurrency:      8,
	}
}

// Orchestrator runs the horizon extension loop and nightly housekeeping.
type Orchestrator struct {
	db       *gorm.DB
	engine   *resolution.Engine
	exporter *guide.Exporter
	clock    timeauthority.Clock
	bus      *events.Bus
	cache    *cache.Cache
	cfg      Config
	logger   zerolog.Logger
	cron     *cron.Cron

	// Per-channel serialization: one writer per channel at a time.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// Retry bookkeeping for failed days.
	retryMu   sync.Mutex
	lastRetry map[string]time.Time
}

// New constructs the orchestrator. The cache and exporter are optional;
// a nil cache means channel lists always come from the database and a
// nil exporter disables the nightly guide export job.
func New(db *gorm.DB, engine *resolution.Engine, clock timeauthority.Clock, bus *events.Bus, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.GuideHorizonDays <= 0 {
		cfg.GuideHorizonDays = 3
	}
	if cfg.PlaylogHorizonHours <= 0 {
		cfg.PlaylogHorizonHours = 4
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Orchestrator{
		db:        db,
		engine:    engine,
		clock:     clock,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With().Str("component", "horizon").Logger(),
		locks:     make(map[string]*sync.Mutex),
		lastRetry: make(map[string]time.Time),
	}
}

// SetCache wires the redis channel-list cache.
func (o *Orchestrator) SetCache(c *cache.Cache) { o.cache = c }

// SetExporter wires the nightly guide export job.
func (o *Orchestrator) SetExporter(ex *guide.Exporter) { o.exporter = ex }

// Run executes the extension loop until ctx is cancelled. Housekeeping
// jobs run on their own cron schedule for the lifetime of the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startHousekeeping(ctx)
	defer o.stopHousekeeping()

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.logger.Info().
		Int("guide_days", o.cfg.GuideHorizonDays).
		Int("playlog_hours", o.cfg.PlaylogHorizonHours).
		Dur("tick", o.cfg.TickInterval).
		Msg("horizon loop started")

	// Extend immediately on startup rather than waiting a full tick.
	o.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("horizon loop stopped")
			return ctx.Err()
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick runs one horizon extension pass over all active channels.
func (o *Orchestrator) Tick(ctx context.Context) {
	telemetry.HorizonTicksTotal.Inc()

	channelIDs, err := o.activeChannelIDs(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to load channels")
		telemetry.HorizonErrorsTotal.WithLabelValues("", "load_channels").Inc()
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.MaxConcurrency > 0 {
		g.SetLimit(o.cfg.MaxConcurrency)
	}
	for _, id := range channelIDs {
		channelID := id
		g.Go(func() error {
			o.extendChannel(gctx, channelID)
			return nil
		})
	}
	_ = g.Wait()
}

// extendChannel guarantees the guide and playlog horizons for one
// channel. The per-channel lock serializes with explicit operator
// resolutions going through the same orchestrator.
func (o *Orchestrator) extendChannel(ctx context.Context, channelID string) {
	lock := o.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "horizon", "extendChannel")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"channel_id": channelID})

	var channel models.Channel
	if err := o.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		o.logger.Warn().Err(err).Str("channel_id", channelID).Msg("channel vanished mid-tick")
		return
	}
	loc, err := channel.Location()
	if err != nil {
		o.logger.Error().Err(err).Str("channel_id", channelID).Msg("invalid channel timezone")
		telemetry.HorizonErrorsTotal.WithLabelValues(channelID, "timezone").Inc()
		return
	}

	now := o.clock.Now()
	grid := channel.Grid()
	today := grid.BroadcastDayOf(now, loc)

	resolvedDays := 0
	for i := 0; i < o.cfg.GuideHorizonDays; i++ {
		if o.ensureDay(ctx, channelID, today.AddDays(i), now) {
			resolvedDays++
		}
	}

	if resolvedDays < o.cfg.GuideHorizonDays {
		o.reportShortfall(channelID, "guide",
			"resolved days behind target; see failed-day audit entries")
	}

	until := now.Add(time.Duration(o.cfg.PlaylogHorizonHours) * time.Hour)
	emitted, err := o.engine.EmitPlaylog(ctx, channelID, until)
	if err != nil {
		o.logger.Warn().Err(err).Str("channel_id", channelID).Msg("playlog extension failed")
		telemetry.HorizonErrorsTotal.WithLabelValues(channelID, "playlog").Inc()
		o.reportShortfall(channelID, "playlog", err.Error())
		return
	}
	if emitted > 0 {
		o.logger.Debug().
			Str("channel_id", channelID).
			Int("events", emitted).
			Msg("playlog horizon extended")
	}
}

// ensureDay resolves (channel, date) if needed and reports whether a
// resolved revision now exists. Failed days are retried with backoff;
// resolved days are left alone.
func (o *Orchestrator) ensureDay(ctx context.Context, channelID string, date broadcast.Date, now time.Time) bool {
	day, err := o.engine.Day(ctx, channelID, date)
	if err == nil {
		switch day.State {
		case models.DayResolved:
			return true
		case models.DayFailed:
			if !o.retryDue(channelID, date, now) {
				return false
			}
		}
	}

	resolved, err := o.engine.ResolveDay(ctx, channelID, date)
	if err != nil {
		o.logger.Warn().Err(err).
			Str("channel_id", channelID).
			Str("date", date.String()).
			Msg("day resolution failed")
		telemetry.HorizonErrorsTotal.WithLabelValues(channelID, "resolve").Inc()
		o.markRetry(channelID, date, now)
		return false
	}
	return resolved.State == models.DayResolved
}

func (o *Orchestrator) retryDue(channelID string, date broadcast.Date, now time.Time) bool {
	o.retryMu.Lock()
	defer o.retryMu.Unlock()
	last, ok := o.lastRetry[channelID+"/"+date.String()]
	return !ok || now.Sub(last) >= failedRetryBackoff
}

func (o *Orchestrator) markRetry(channelID string, date broadcast.Date, now time.Time) {
	o.retryMu.Lock()
	defer o.retryMu.Unlock()
	o.lastRetry[channelID+"/"+date.String()] = now
}

func (o *Orchestrator) reportShortfall(channelID, stage, detail string) {
	o.bus.Publish(events.EventHealth, events.Payload{
		"kind":       "horizon_shortfall",
		"channel_id": channelID,
		"stage":      stage,
		"detail":     detail,
	})
}

func (o *Orchestrator) channelLock(channelID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	if l, ok := o.locks[channelID]; ok {
		return l
	}
	l := &sync.Mutex{}
	o.locks[channelID] = l
	return l
}

// activeChannelIDs lists active channels, via the redis cache when warm.
func (o *Orchestrator) activeChannelIDs(ctx context.Context) ([]string, error) {
	if o.cache != nil {
		if cached, ok := o.cache.GetChannelList(ctx); ok {
			ids := make([]string, 0, len(cached))
			for _, ch := range cached {
				if ch.Active {
					ids = append(ids, ch.ID)
				}
			}
			return ids, nil
		}
	}

	var channels []models.Channel
	if err := o.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&channels).Error; err != nil {
		return nil, err
	}

	if o.cache != nil {
		cached := make([]cache.CachedChannel, len(channels))
		for i, ch := range channels {
			cached[i] = cache.CachedChannel{
				ID:               ch.ID,
				Name:             ch.Name,
				Slug:             ch.Slug,
				Timezone:         ch.Timezone,
				GridBlockMinutes: ch.GridBlockMinutes,
				DayStartMinutes:  ch.DayStartMinutes,
				Active:           ch.Active,
			}
		}
		if err := o.cache.SetChannelList(ctx, cached); err != nil {
			o.logger.Debug().Err(err).Msg("failed to cache channel list")
		}
	}

	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}
	return ids, nil
}

// startHousekeeping schedules the nightly jobs: playlog pruning at 04:10
// and guide export at 05:00, server-local time.
func (o *Orchestrator) startHousekeeping(ctx context.Context) {
	o.cron = cron.New()

	if _, err := o.cron.AddFunc("10 4 * * *", func() { o.prunePlaylog(ctx) }); err != nil {
		o.logger.Error().Err(err).Msg("failed to schedule playlog prune")
	}
	if o.exporter != nil {
		if _, err := o.cron.AddFunc("0 5 * * *", func() { o.exportGuides(ctx) }); err != nil {
			o.logger.Error().Err(err).Msg("failed to schedule guide export")
		}
	}

	o.cron.Start()
}

func (o *Orchestrator) stopHousekeeping() {
	if o.cron != nil {
		o.cron.Stop()
	}
}

func (o *Orchestrator) prunePlaylog(ctx context.Context) {
	cutoff := o.clock.Now().Add(-playlogRetentionDays * 24 * time.Hour)
	deleted, err := o.engine.PrunePlaylog(ctx, cutoff)
	if err != nil {
		o.logger.Warn().Err(err).Msg("playlog prune failed")
		return
	}
	if deleted > 0 {
		o.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned playlog history")
	}
}

// exportGuides archives the guide for every active channel across the
// guide horizon. Unresolved days are skipped quietly; the extension loop
// will have reported them already.
func (o *Orchestrator) exportGuides(ctx context.Context) {
	channelIDs, err := o.activeChannelIDs(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("guide export could not list channels")
		return
	}
	now := o.clock.Now()
	for _, channelID := range channelIDs {
		var channel models.Channel
		if err := o.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
			continue
		}
		loc, err := channel.Location()
		if err != nil {
			continue
		}
		today := channel.Grid().BroadcastDayOf(now, loc)
		for i := 0; i < o.cfg.GuideHorizonDays; i++ {
			date := today.AddDays(i)
			if _, err := o.exporter.ExportDay(ctx, channelID, date); err != nil {
				o.logger.Debug().Err(err).
					Str("channel_id", channelID).
					Str("date", date.String()).
					Msg("guide export skipped")
			}
		}
	}
}
